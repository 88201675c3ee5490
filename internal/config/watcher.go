package config

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// AdminsWatcher monitors the admins file for changes and pushes reloaded
// admin groups to a callback.
type AdminsWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	onReload func([]Admin)
}

// NewAdminsWatcher creates a watcher for the given admins file.
func NewAdminsWatcher(path string, onReload func([]Admin)) (*AdminsWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AdminsWatcher{
		path:     path,
		watcher:  watcher,
		stopChan: make(chan struct{}),
		onReload: onReload,
	}, nil
}

// Start begins watching. Editors replace files rather than write in place,
// so the parent directory is watched and events are filtered by name.
func (w *AdminsWatcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	go w.loop()
	log.Info().Str("file", w.path).Msg("Watching admins file for changes")
	return nil
}

// Stop stops watching.
func (w *AdminsWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
	})
}

func (w *AdminsWatcher) loop() {
	// Debounce timer: editors fire several events per save.
	var pending *time.Timer
	for {
		select {
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.EqualFold(filepath.Clean(event.Name), filepath.Clean(w.path)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(250*time.Millisecond, w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Admins watcher error")
		}
	}
}

func (w *AdminsWatcher) reload() {
	admins, err := LoadAdmins(w.path)
	if err != nil {
		log.Error().Err(err).Str("file", w.path).Msg("Failed to reload admins file, keeping previous admins")
		return
	}
	log.Info().Int("adminGroups", len(admins)).Msg("Admins file reloaded")
	w.onReload(admins)
}
