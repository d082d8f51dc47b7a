package alias

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the store whenever the backing file is replaced or written
// by another process. It only applies to a FileBackend and returns when ctx
// is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	fb, ok := s.backend.(*FileBackend)
	if !ok {
		return fmt.Errorf("backend %T cannot be watched", s.backend)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic saves replace the file, which drops a
	// watch held on the file itself.
	dir, name := filepath.Split(fb.Path())
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	s.logger.Info("Watching device names file", "path", fb.Path())

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if err := s.Reload(ctx); err != nil {
				s.logger.Error(err, "Failed to reload device names", "path", fb.Path())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error(err, "File watcher error", "path", fb.Path())
		}
	}
}
