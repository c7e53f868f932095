package config

import (
	"errors"
	"log"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives a freshly loaded configuration
type ReloadFunc func(*Config) error

// Watcher watches server.yml for changes and triggers a reload
type Watcher struct {
	watcher    *fsnotify.Watcher
	configPath string
	reloadFunc ReloadFunc
	debounce   time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewWatcher creates a config file watcher. The file must exist.
func NewWatcher(configPath string, reloadFunc ReloadFunc) (*Watcher, error) {
	if configPath == "" {
		return nil, errors.New("no config file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:    watcher,
		configPath: filepath.Clean(configPath),
		reloadFunc: reloadFunc,
		debounce:   500 * time.Millisecond,
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching the config file's directory. Editors often replace
// the file instead of writing it, so the directory is watched, not the file.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.configPath)); err != nil {
		return err
	}

	log.Printf("Watching for config file changes: %s", w.configPath)

	w.started.Store(true)
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Config watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.configPath)
	if err != nil {
		log.Printf("Failed to load new config: %v", err)
		return
	}

	if err := w.reloadFunc(cfg); err != nil {
		log.Printf("Failed to apply new config: %v", err)
		return
	}

	log.Printf("Configuration reloaded from %s", w.configPath)
}

// Stop stops watching and waits for the watch loop to exit
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopChan)
		err = w.watcher.Close()
		if w.started.Load() {
			<-w.done
		}
	})
	return err
}
