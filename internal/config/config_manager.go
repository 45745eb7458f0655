package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"neuromail-go/internal/events"

	log "github.com/sirupsen/logrus"
)

// ConfigManager manages configuration file and hot reload
type ConfigManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	stopCh     chan struct{}
	stopOnce   sync.Once
	onChange   []func(*Config)
	lastMod    time.Time
	publisher  events.Publisher
}

// NewConfigManager creates a new configuration manager. With an empty path the
// usual locations are searched; if none exists defaults plus env are used.
func NewConfigManager(configPath string) (*ConfigManager, error) {
	if configPath == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			"config.json",
			filepath.Join(os.Getenv("HOME"), ".neuromail", "config.yaml"),
			"/etc/neuromail/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				configPath = loc
				break
			}
		}
	}

	if strings.HasPrefix(configPath, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(homeDir, configPath[1:])
	}

	cm := &ConfigManager{
		configPath: configPath,
		stopCh:     make(chan struct{}),
	}

	if err := cm.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := cfg.ValidateAndExpandPaths(); err != nil {
			return nil, err
		}
		cm.config = cfg
		log.WithField("path", configPath).Warn("using default configuration (no config file found)")
	}

	if cm.configPath != "" {
		if _, err := os.Stat(cm.configPath); err == nil {
			cm.startWatcher()
		}
	}

	return cm, nil
}

// Path returns the backing file, empty when running on defaults.
func (cm *ConfigManager) Path() string { return cm.configPath }

// OnChange registers a callback for configuration changes
func (cm *ConfigManager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.onChange = append(cm.onChange, fn)
}

// SetEventPublisher wires the event hub used to broadcast config updates.
func (cm *ConfigManager) SetEventPublisher(p events.Publisher) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.publisher = p
}

// Get returns a copy of the current configuration
func (cm *ConfigManager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.config == nil {
		return Default()
	}
	return cm.config.Clone()
}

// Update applies fn to a copy of the configuration, validates it, persists it
// when file backed and notifies listeners.
func (cm *ConfigManager) Update(fn func(*Config)) error {
	cm.mu.Lock()
	if cm.config == nil {
		cm.config = Default()
	}
	oldCopy := cm.config.Clone()
	next := cm.config.Clone()
	fn(next)

	if res := next.Validate(); !res.Valid {
		cm.mu.Unlock()
		return res.Err()
	}

	var err error
	if cm.configPath != "" {
		err = cm.save(next)
	}
	if err == nil {
		cm.config = next
	}
	cm.mu.Unlock()
	if err != nil {
		return err
	}

	cm.emitChange(oldCopy, next.Clone())
	return nil
}

// Close stops the configuration manager
func (cm *ConfigManager) Close() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

func (cm *ConfigManager) listenersSnapshot() ([]func(*Config), events.Publisher, string) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	callbacks := make([]func(*Config), len(cm.onChange))
	copy(callbacks, cm.onChange)
	return callbacks, cm.publisher, cm.configPath
}

func (cm *ConfigManager) emitChange(oldCfg, newCfg *Config) {
	callbacks, publisher, path := cm.listenersSnapshot()

	for _, fn := range callbacks {
		fn(newCfg)
	}

	if publisher != nil && newCfg != nil {
		event := ConfigChangeEvent{
			Path:      path,
			UpdatedAt: time.Now().UTC(),
		}
		if oldCfg != nil {
			event.Changed = changedDomains(oldCfg, newCfg)
		}
		publisher.Publish(context.Background(), events.TopicConfigUpdated, event, nil)
	}
}

// ConfigChangeEvent is the payload broadcast when configuration changes.
// Secrets never travel on the bus, only the names of the domains that moved.
type ConfigChangeEvent struct {
	Path      string    `json:"path"`
	UpdatedAt time.Time `json:"updated_at"`
	Changed   []string  `json:"changed,omitempty"`
}
