package labels

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDelay = 100 * time.Millisecond

// Watch reloads the store whenever the label file is written or replaced.
// It watches the parent directory so editors that save via rename are
// picked up too. Returns once the watcher is registered.
func (s *Store) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("unable to create label watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("unable to watch %s: %w", path, err)
	}

	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				time.Sleep(reloadDelay)

				if err := s.Reload(path); err != nil {
					logger.Warn("Label reload failed, keeping previous labels", "path", path, "error", err)
					continue
				}
				logger.Info("Labels reloaded", "path", path, "classes", len(s.Map()))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Label watcher error", "error", err)
			}
		}
	}()

	return nil
}
