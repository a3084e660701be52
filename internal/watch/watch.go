// Package watch re-runs a callback when braille table sources change on disk.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/FocuswithJustin/braille-lib/core/errors"
	"github.com/FocuswithJustin/braille-lib/internal/logging"
)

// DefaultDebounce is how long a file must stay quiet before fn runs. Editors
// often write a file in several steps.
const DefaultDebounce = 200 * time.Millisecond

// Options configures Watch.
type Options struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// Match selects the files that trigger fn. Nil matches every file.
	Match func(path string) bool
}

// Func handles one changed file. Its error is logged; watching continues.
type Func func(ctx context.Context, path string) error

// Watch watches paths (files or directories) and calls fn for each changed
// file after the debounce interval. Calls are serialized. Watch returns when
// ctx is done.
func Watch(ctx context.Context, paths []string, opts Options, fn Func) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}
	defer w.Close()

	// fsnotify reports files through their directory, which also survives
	// editors that replace the file on save.
	files := map[string]bool{}
	dirs := map[string]bool{}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return &errors.NotFoundError{Resource: "watch path", ID: p, Err: err}
			}
			return errors.NewIO("stat", p, err)
		}
		dir := filepath.Clean(p)
		if !info.IsDir() {
			files[filepath.Clean(p)] = true
			dir = filepath.Dir(p)
		}
		if !dirs[dir] {
			if err := w.Add(dir); err != nil {
				return errors.NewIO("watch", dir, err)
			}
			dirs[dir] = true
		}
	}

	wanted := func(name string) bool {
		if !files[filepath.Clean(name)] && !requestedDir(paths, filepath.Dir(name)) {
			return false
		}
		return opts.Match == nil || opts.Match(name)
	}

	logging.Info("watching for changes", "paths", paths, "debounce", opts.Debounce.String())

	pending := map[string]time.Time{}
	timer := time.NewTimer(opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if !wanted(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now()
			timer.Reset(opts.Debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logging.Warn("watch error", "error", err.Error())
		case <-timer.C:
			for _, name := range due(pending, opts.Debounce) {
				delete(pending, name)
				if _, err := os.Stat(name); err != nil {
					continue
				}
				if err := fn(ctx, name); err != nil {
					logging.Error("watch handler failed", "path", name, "error", err.Error())
				}
			}
			if len(pending) > 0 {
				timer.Reset(opts.Debounce)
			}
		}
	}
}

// due returns the pending files quiet for at least d, sorted.
func due(pending map[string]time.Time, d time.Duration) []string {
	now := time.Now()
	var names []string
	for name, at := range pending {
		if now.Sub(at) >= d {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func requestedDir(paths []string, dir string) bool {
	for _, p := range paths {
		if filepath.Clean(p) == filepath.Clean(dir) {
			return true
		}
	}
	return false
}
