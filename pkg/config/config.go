// Package config loads the optional sprig.yaml project file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

const (
	// LanguageVersion is the version of the language this compiler accepts.
	LanguageVersion = "1.0.0"

	DefaultExtension = ".sprig"
	DefaultEntry     = "main"
	DefaultFileName  = "sprig.yaml"
)

// ColorMode controls colouring of diagnostic prefixes.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// Config is the contents of sprig.yaml.
type Config struct {
	// Language is a semver constraint the compiler's LanguageVersion must
	// satisfy, e.g. ">= 1.0, < 2.0". Empty accepts any version.
	Language string `yaml:"language,omitempty"`

	// Extension is the required source file extension, dot included.
	Extension string `yaml:"extension,omitempty"`

	// Entry names the function the startup code calls.
	Entry string `yaml:"entry,omitempty"`

	Color ColorMode `yaml:"color,omitempty"`
}

var ErrUnsupportedLanguage = errors.New("unsupported language version")

// Default returns the configuration used when no sprig.yaml exists.
func Default() *Config {
	return &Config{
		Extension: DefaultExtension,
		Entry:     DefaultEntry,
		Color:     ColorAuto,
	}
}

// Load reads and validates a config file. Missing fields take their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOptional is Load, except that a missing file yields Default().
func LoadOptional(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values and the language constraint.
func (c *Config) Validate() error {
	if c.Extension == "" {
		c.Extension = DefaultExtension
	}
	if !strings.HasPrefix(c.Extension, ".") {
		return fmt.Errorf("extension %q must start with a dot", c.Extension)
	}
	if c.Entry == "" {
		c.Entry = DefaultEntry
	}
	switch c.Color {
	case "":
		c.Color = ColorAuto
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("color must be auto, always or never, got %q", c.Color)
	}

	if c.Language == "" {
		return nil
	}
	constraint, err := semver.NewConstraint(c.Language)
	if err != nil {
		return fmt.Errorf("invalid language constraint %q: %w", c.Language, err)
	}
	if !constraint.Check(semver.MustParse(LanguageVersion)) {
		return fmt.Errorf("%w: %s does not satisfy %q", ErrUnsupportedLanguage, LanguageVersion, c.Language)
	}
	return nil
}
