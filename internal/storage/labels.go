package storage

import (
	"context"
	"fmt"
	"strings"

	"neuromail-go/internal/config"

	log "github.com/sirupsen/logrus"
)

// DetectBackendLabel returns a normalized label for a backend.
func DetectBackendLabel(backend Backend) string {
	if u, ok := backend.(interface{ Unwrap() Backend }); ok {
		backend = u.Unwrap()
	}
	switch backend.(type) {
	case *RedisBackend:
		return "redis"
	case *SQLiteBackend:
		return "sqlite"
	case *FileBackend:
		return "file"
	default:
		return "unknown"
	}
}

// Open builds, initializes and instruments the configured backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Backend, error) {
	var backend Backend
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "file":
		backend = NewFileBackend(cfg.BaseDir)
	case "redis":
		rb, err := NewRedisBackend(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		backend = rb
	case "sqlite":
		backend = NewSQLiteBackend(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}

	if err := backend.Initialize(ctx); err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("initialize %s storage: %w", DetectBackendLabel(backend), err)
	}

	label := DetectBackendLabel(backend)
	log.WithField("backend", label).Info("storage backend ready")
	return WithInstrumentation(backend, label), nil
}
