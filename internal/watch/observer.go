// Package watch observes a local directory and emits paths of files that
// settle after being created or written, so the watch loop can upload
// them. Events are debounced per path — editors fire many writes for one
// save — and a path is only emitted once it has been quiet for the full
// debounce window.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must stay quiet before it is emitted.
const DefaultDebounce = 2 * time.Second

// flushResolution is how often pending paths are checked for settledness.
const flushResolution = 500 * time.Millisecond

// EmitFunc receives a settled file path. Errors are logged and do not stop
// the observer — the file will be picked up again on its next change.
type EmitFunc func(ctx context.Context, path string) error

// Observer watches one directory (non-recursive) for new and modified
// files.
type Observer struct {
	dir      string
	debounce time.Duration
	logger   *slog.Logger
}

// NewObserver creates an observer for dir. A non-positive debounce uses
// DefaultDebounce.
func NewObserver(dir string, debounce time.Duration, logger *slog.Logger) *Observer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Observer{dir: dir, debounce: debounce, logger: logger}
}

// Run watches until ctx is canceled, calling emit for every settled file.
func (o *Observer) Run(ctx context.Context, emit EmitFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(o.dir); err != nil {
		return fmt.Errorf("watch: watching %s: %w", o.dir, err)
	}

	o.logger.Info("watching directory", slog.String("dir", o.dir))

	flush := time.NewTicker(flushResolution)
	defer flush.Stop()

	// Paths seen recently, with the time of their last event.
	pending := make(map[string]time.Time)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			o.handleEvent(ev, pending)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			o.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
			)

		case <-flush.C:
			o.flushSettled(ctx, pending, emit)
		}
	}
}

// handleEvent records create/write events for eligible files.
func (o *Observer) handleEvent(ev fsnotify.Event, pending map[string]time.Time) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		// Removes and renames drop the path — nothing left to upload.
		delete(pending, ev.Name)
		return
	}

	name := filepath.Base(ev.Name)
	if isExcluded(name) {
		o.logger.Debug("skipping excluded file", slog.String("name", name))
		return
	}

	pending[ev.Name] = time.Now()
}

// flushSettled emits every pending path whose last event is older than the
// debounce window.
func (o *Observer) flushSettled(ctx context.Context, pending map[string]time.Time, emit EmitFunc) {
	now := time.Now()

	for path, last := range pending {
		if now.Sub(last) < o.debounce {
			continue
		}

		delete(pending, path)

		if err := emit(ctx, path); err != nil {
			o.logger.Warn("emit failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

// isExcluded reports whether a file name should never be uploaded:
// dotfiles and the usual editor temp patterns.
func isExcluded(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}

	if strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".swp") || strings.HasSuffix(name, ".tmp") {
		return true
	}

	return false
}
