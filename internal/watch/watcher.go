package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/l3aro/go-call-graph/internal/log"
)

// Handler is called with the changes of a debounced batch. Its error is
// logged; watching continues.
type Handler func(ctx context.Context, changes Changes) error

// Options configures a Watcher.
type Options struct {
	// Root is the directory watched recursively.
	Root string
	// List returns the complete current source file set.
	List func() ([]string, error)
	// Skip reports directories that are never watched. Hidden directories
	// are always skipped.
	Skip func(name string) bool
	// Debounce is how long to wait for more events before a run.
	// Default: 300ms
	Debounce time.Duration
	// Extensions filters the events that start a batch. Default: .java
	Extensions []string
	Tracker    *Tracker
	Logger     log.Logger
}

// Watcher runs a handler whenever the tracked sources change.
type Watcher struct {
	opts    Options
	watcher *fsnotify.Watcher
}

// New creates a watcher over opts.Root.
func New(opts Options) (*Watcher, error) {
	if opts.List == nil {
		return nil, fmt.Errorf("watch: List is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 300 * time.Millisecond
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = []string{".java"}
	}
	if opts.Tracker == nil {
		opts.Tracker = NewTracker()
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	w := &Watcher{opts: opts, watcher: fw}
	if err := w.addRecursive(opts.Root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run calls handler once for the initial file set, then after every
// debounced batch of events that changed file contents. It returns when
// ctx is done.
func (w *Watcher) Run(ctx context.Context, handler Handler) error {
	if err := w.sync(ctx, handler, true); err != nil {
		return err
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.opts.Logger.Warn("failed to watch directory", "dir", event.Name, "error", err)
					}
				}
			}
			if !w.relevant(event.Name) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			if err := w.sync(ctx, handler, false); err != nil {
				return err
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.opts.Logger.Warn("file watcher error", "error", err)
		}
	}
}

// sync re-lists and re-hashes the sources and runs handler when they
// changed, or unconditionally for the first run.
func (w *Watcher) sync(ctx context.Context, handler Handler, first bool) error {
	paths, err := w.opts.List()
	if err != nil {
		if first {
			return fmt.Errorf("listing sources: %w", err)
		}
		w.opts.Logger.Warn("failed to list sources", "error", err)
		return nil
	}
	changes, err := w.opts.Tracker.Sync(paths)
	if err != nil {
		if first {
			return err
		}
		w.opts.Logger.Warn("failed to hash sources", "error", err)
		return nil
	}
	if changes.Empty() && !first {
		w.opts.Logger.Debug("no content changes")
		return nil
	}

	w.opts.Logger.Info("sources changed",
		"added", len(changes.Added),
		"modified", len(changes.Modified),
		"removed", len(changes.Removed),
	)
	if err := handler(ctx, changes); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		w.opts.Logger.Error("run failed", "error", err)
	}
	return nil
}

func (w *Watcher) relevant(path string) bool {
	ext := filepath.Ext(path)
	if ext == "" {
		// Directory removals and renames carry no extension.
		return true
	}
	for _, e := range w.opts.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// addRecursive adds a directory and all subdirectories to the watch list.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || (w.opts.Skip != nil && w.opts.Skip(name))) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
