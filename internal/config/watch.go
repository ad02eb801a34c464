package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/quillhq/quill/internal/logging"
)

var (
	configWatcher   *fsnotify.Watcher
	reloadCallbacks []func(*Config)
	callbacksMu     sync.Mutex
)

// OnReload registers a callback to be called when config.yaml is reloaded
func OnReload(callback func(*Config)) {
	callbacksMu.Lock()
	defer callbacksMu.Unlock()
	reloadCallbacks = append(reloadCallbacks, callback)
}

// StartWatcher starts watching the data directory for config.yaml changes
func StartWatcher(dataDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	configWatcher = watcher

	// Watch the directory rather than the file: editors replace files on
	// save, which would detach a direct file watch.
	if err := watcher.Add(dataDir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dataDir, err)
	}

	go func() {
		var debounceTimer *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != "config.yaml" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// Debounce: editors may write multiple times per save
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
						cfg, err := Load()
						if err != nil {
							logging.Errorf("[config] reload failed: %v", err)
							return
						}
						logging.Info("[config] config.yaml reloaded")
						callbacksMu.Lock()
						callbacks := append([]func(*Config){}, reloadCallbacks...)
						callbacksMu.Unlock()
						for _, cb := range callbacks {
							cb(cfg)
						}
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Errorf("[config] watcher error: %v", err)
			}
		}
	}()

	return nil
}

// StopWatcher stops the file watcher
func StopWatcher() {
	if configWatcher != nil {
		configWatcher.Close()
		configWatcher = nil
	}
}
