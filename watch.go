package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"

	"sprig/pkg/utils"
)

// settle is how long a burst of file events must go quiet before a rebuild.
const settle = 100 * time.Millisecond

// watchAndBuild builds once and then again after every change to one of
// paths, until ctx is done. Directories are watched rather than files so
// editors that save by renaming are still seen.
func watchAndBuild(ctx context.Context, paths []string, b *builder) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	inputs := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		full, dir, err := utils.GetPathInfo(p)
		if err != nil {
			return err
		}
		inputs[full] = true
		if !dirs[dir] {
			if err := w.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			dirs[dir] = true
		}
	}

	rebuild := func() {
		if err := b.build(ctx, paths); err != nil {
			fmt.Fprintf(os.Stderr, "compilation failed: %v\n", err)
		}
		fmt.Fprintln(os.Stderr, "watching for changes...")
	}
	rebuild()

	timer := time.NewTimer(settle)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			full, _, err := utils.GetPathInfo(ev.Name)
			if err != nil || !inputs[full] {
				continue
			}
			timer.Reset(settle)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		case <-timer.C:
			rebuild()
		}
	}
}
