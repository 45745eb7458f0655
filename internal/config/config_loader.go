package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads path (YAML or JSON) over the defaults and applies env overrides.
// An empty or missing path yields defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := readInto(path, cfg); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.ValidateAndExpandPaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readInto(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("failed to parse config file (tried YAML and JSON)")
			}
		}
	}
	return nil
}

func (cm *ConfigManager) load() error {
	if cm.configPath == "" {
		return os.ErrNotExist
	}

	cfg := Default()
	if err := readInto(cm.configPath, cfg); err != nil {
		return err
	}
	applyEnvOverrides(cfg)
	if err := cfg.ValidateAndExpandPaths(); err != nil {
		return err
	}

	cm.mu.Lock()
	if info, err := os.Stat(cm.configPath); err == nil {
		cm.lastMod = info.ModTime()
	}
	cm.config = cfg
	cm.mu.Unlock()
	log.WithField("path", cm.configPath).Info("configuration loaded")

	return nil
}

// save writes cfg to the config path. Callers hold cm.mu.
func (cm *ConfigManager) save(cfg *Config) error {
	if cm.configPath == "" {
		return fmt.Errorf("no config file path set")
	}

	dir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)

	ext := strings.ToLower(filepath.Ext(cm.configPath))
	switch ext {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		data, err = yaml.Marshal(cfg)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	if info, err := os.Stat(cm.configPath); err == nil {
		cm.lastMod = info.ModTime()
	}

	log.WithField("path", cm.configPath).Info("configuration saved")

	return nil
}
