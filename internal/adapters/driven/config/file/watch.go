package file

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/sercha-mirror/internal/logger"
)

// Watch reloads the configuration whenever the file is written, created or
// renamed into place, then calls onChange. An invalid file is logged and the
// previous configuration stays active. Watch blocks until ctx is done.
func (s *ConfigStore) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	// Editors replace files atomically, so watch the directory.
	if err := w.Add(filepath.Dir(s.filePath)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(s.filePath), err)
	}

	log := logger.Default().With("path", s.filePath)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !s.isConfigEvent(ev) {
				continue
			}
			if err := s.Load(); err != nil {
				log.Warn("config reload failed", logger.ErrAttr(err))
				continue
			}
			log.Info("config reloaded")
			if onChange != nil {
				onChange()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watcher error", logger.ErrAttr(err))
		}
	}
}

func (s *ConfigStore) isConfigEvent(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != filepath.Clean(s.filePath) {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
