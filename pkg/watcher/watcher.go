// Package watcher reports saves of a project file. Editors often replace a
// file instead of writing it in place, so the containing directory is
// watched and events are filtered down to the one file.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/hesiod/pkg/logging"
)

// relevantOps are the operations that can change the file's contents
const relevantOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// ChangeEvent is one or more coalesced changes to the watched file
type ChangeEvent struct {
	Path      string
	Count     int
	Timestamp time.Time
}

// FileWatcher watches a single file through its directory
type FileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan ChangeEvent
}

// NewFileWatcher creates a watcher for path. Nothing is watched until Start.
func NewFileWatcher(path string) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	return &FileWatcher{
		watcher: w,
		path:    abs,
		events:  make(chan ChangeEvent, 16),
	}, nil
}

// Start watches the file's directory until ctx is done. The Events channel
// is closed when watching stops.
func (fw *FileWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(fw.path)
	if err := fw.watcher.Add(dir); err != nil {
		fw.watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Info("watching project file", "path", fw.path)

	go fw.processEvents(ctx)
	return nil
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	defer close(fw.events)
	defer fw.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(relevantOps) || filepath.Clean(event.Name) != fw.path {
				continue
			}
			logging.Trace("project file event", "path", event.Name, "op", event.Op.String())

			select {
			case fw.events <- ChangeEvent{Path: fw.path, Count: 1, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("watcher error", "error", err)
		}
	}
}

// Path is the absolute path being watched
func (fw *FileWatcher) Path() string {
	return fw.path
}

// Events returns the channel of raw change events
func (fw *FileWatcher) Events() <-chan ChangeEvent {
	return fw.events
}
