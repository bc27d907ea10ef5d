package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/seantiz/modreg/internal/model"
)

// debounce collapses the burst of events editors produce for one save.
const debounce = 200 * time.Millisecond

// Watch calls fn with the reloaded manifest whenever the file at path is
// written, created or replaced. The parent directory is watched so that
// atomic renames are seen. Files that fail to parse are logged and skipped.
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, logger *slog.Logger, fn func([]model.Descriptor)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve manifest path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("manifest watcher error", "error", err)
		case <-timer.C:
			descriptors, err := Load(abs)
			if err != nil {
				logger.Error("manifest reload failed", "path", abs, "error", err)
				continue
			}
			logger.Info("manifest changed", "path", abs, "modules", len(descriptors))
			fn(descriptors)
		}
	}
}
