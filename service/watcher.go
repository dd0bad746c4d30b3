package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Growity-ai-lab/joseph-mews-dashboard/pkg/logger"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// FileWatcher calls onChange once a watched workbook has stopped changing
// for the debounce window. Editors save by rename, so the parent directory
// is watched rather than the file itself.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	key      string
	onChange func(key string)
	debounce time.Duration

	mu        sync.Mutex
	lastEvent time.Time
	pending   bool
}

// NewFileWatcher starts watching the file at key. The returned watcher is
// already registered; call Run to deliver events.
func NewFileWatcher(key string, onChange func(key string)) (*FileWatcher, error) {
	abs, err := filepath.Abs(key)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", key, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &FileWatcher{
		watcher:  w,
		path:     abs,
		key:      key,
		onChange: onChange,
		debounce: defaultDebounce,
	}, nil
}

// Run delivers debounced change notifications until ctx is done, then
// closes the watcher.
func (w *FileWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	ticker := time.NewTicker(w.debounce / 5)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn(ctx, "Workbook watcher error", "path", w.path, "error", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *FileWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}

	logger.Debug(ctx, "Workbook changed", "path", w.path, "op", event.Op.String())
	w.mu.Lock()
	w.lastEvent = time.Now()
	w.pending = true
	w.mu.Unlock()
}

func (w *FileWatcher) flush(ctx context.Context) {
	w.mu.Lock()
	if !w.pending || time.Since(w.lastEvent) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	logger.Info(ctx, "Workbook settled, invalidating snapshot", "path", w.path)
	w.onChange(w.key)
}

// WatchFile invalidates the snapshot for path whenever the workbook on disk
// changes. It blocks until ctx is done.
func (s *SnapshotService) WatchFile(ctx context.Context, path string) error {
	w, err := NewFileWatcher(path, s.Invalidate)
	if err != nil {
		return err
	}
	w.Run(ctx)
	return nil
}
