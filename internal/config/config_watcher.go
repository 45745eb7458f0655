package config

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

func (cm *ConfigManager) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Warn("failed to create file watcher, falling back to polling")
		cm.startPollingWatcher()
		return
	}

	// Watch the config file
	if err := watcher.Add(cm.configPath); err != nil {
		log.WithError(err).WithField("path", cm.configPath).Warn("failed to watch config file, falling back to polling")
		watcher.Close()
		cm.startPollingWatcher()
		return
	}

	// Also watch the directory to catch atomic writes (rename operations)
	configDir := filepath.Dir(cm.configPath)
	if err := watcher.Add(configDir); err != nil {
		log.WithError(err).WithField("dir", configDir).Warn("failed to watch config directory")
	}

	log.WithField("path", cm.configPath).Info("file watcher started using fsnotify")

	go func() {
		defer watcher.Close()

		// Debounce timer to avoid multiple reloads on rapid changes
		var debounceTimer *time.Timer
		debounceDuration := 100 * time.Millisecond

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				// Only react to Write and Create events on our config file
				if event.Name == cm.configPath && (event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create) {
					// Reset debounce timer
					if debounceTimer != nil {
						debounceTimer.Stop()
					}
					debounceTimer = time.AfterFunc(debounceDuration, func() {
						cm.checkAndReload()
					})
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("file watcher error")

			case <-cm.stopCh:
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				return
			}
		}
	}()
}

// startPollingWatcher is a fallback when fsnotify is not available
func (cm *ConfigManager) startPollingWatcher() {
	ticker := time.NewTicker(5 * time.Second)
	log.WithField("interval", "5s").Info("file watcher started using polling")

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cm.checkAndReload()
			case <-cm.stopCh:
				return
			}
		}
	}()
}

func (cm *ConfigManager) checkAndReload() {
	if cm.configPath == "" {
		return
	}

	info, err := os.Stat(cm.configPath)
	if err != nil {
		return
	}

	cm.mu.RLock()
	lastMod := cm.lastMod
	cm.mu.RUnlock()

	if info.ModTime().After(lastMod) {
		oldConfig := cm.Get()

		if err := cm.load(); err != nil {
			log.WithError(err).WithField("path", cm.configPath).Warn("failed to reload config")
			return
		}

		newConfig := cm.Get()
		if res := newConfig.Validate(); !res.Valid {
			log.WithError(res.Err()).WithField("path", cm.configPath).Warn("reloaded config is invalid")
		}

		cm.emitChange(oldConfig, newConfig)
		cm.logConfigChanges(oldConfig, newConfig)
	}
}

func (cm *ConfigManager) logConfigChanges(old, new *Config) {
	for _, domain := range changedDomains(old, new) {
		log.WithField("domain", domain).Info("config changed")
	}
}

// changedDomains lists the top-level sections that differ.
func changedDomains(old, new *Config) []string {
	pairs := []struct {
		name     string
		old, new interface{}
	}{
		{"server", old.Server, new.Server},
		{"security", old.Security, new.Security},
		{"upstream", old.Upstream, new.Upstream},
		{"retry", old.Retry, new.Retry},
		{"pool", old.Pool, new.Pool},
		{"rate_limit", old.RateLimit, new.RateLimit},
		{"storage", old.Storage, new.Storage},
		{"mailbox", old.Mailbox, new.Mailbox},
		{"tracing", old.Tracing, new.Tracing},
	}
	var out []string
	for _, p := range pairs {
		if !reflect.DeepEqual(p.old, p.new) {
			out = append(out, p.name)
		}
	}
	return out
}
