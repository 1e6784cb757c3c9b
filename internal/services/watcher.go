package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// ArtifactWatcher reports when the artifact file is deleted or moved by something other than this process.
type ArtifactWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onRemove func(reason string)
	logger   *log.Logger
}

// WatchArtifact starts watching the directory holding path. onRemove runs on the watcher goroutine.
func WatchArtifact(path string, onRemove func(reason string), logger *log.Logger) (*ArtifactWatcher, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact path: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	if logger == nil {
		logger = log.Default()
	}
	return &ArtifactWatcher{path: path, watcher: w, onRemove: onRemove, logger: logger.WithPrefix("artifact-watcher")}, nil
}

// Run processes events until ctx is done or the watcher is closed.
func (a *ArtifactWatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-a.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != a.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Remove):
				a.logger.Warn("artifact removed", "path", a.path)
				a.onRemove("artifact removed")
			case event.Has(fsnotify.Rename):
				a.logger.Warn("artifact moved", "path", a.path)
				a.onRemove("artifact moved")
			}
		case err, ok := <-a.watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Error("watch error", "err", err)
		}
	}
}

func (a *ArtifactWatcher) Close() error { return a.watcher.Close() }
