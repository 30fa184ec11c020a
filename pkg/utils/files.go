// Package utils holds path helpers shared by the commands.
package utils

import (
	"path/filepath"
	"strings"
)

// GetPathInfo resolves relPath to a clean absolute path and the directory
// containing it.
func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}
	return fullPath, filepath.Dir(fullPath), nil
}

// ReplaceExt swaps the extension of path for ext. A path without an
// extension gets ext appended.
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// Sibling returns the path of name in the same directory as path.
func Sibling(path, name string) (string, error) {
	_, dir, err := GetPathInfo(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
