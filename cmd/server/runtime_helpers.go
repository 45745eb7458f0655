package main

import (
	"context"
	"slices"
	"strings"

	"neuromail-go/internal/config"
	"neuromail-go/internal/credential"
	"neuromail-go/internal/events"
	"neuromail-go/internal/logging"
	"neuromail-go/internal/mailbox"
	"neuromail-go/internal/settings"
	"neuromail-go/internal/storage"
	"neuromail-go/internal/upstream"

	log "github.com/sirupsen/logrus"
)

// openStorage opens the configured backend and falls back to the file backend
// when a remote backend cannot be reached.
func openStorage(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	backend, err := storage.Open(ctx, cfg.Storage)
	if err == nil {
		return backend, nil
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Storage.Backend), "file") || cfg.Storage.Backend == "" {
		return nil, err
	}

	// 存储后端初始化失败时降级为文件后端，避免服务无法启动
	log.WithError(err).WithField("backend", cfg.Storage.Backend).Warn("storage backend unavailable; falling back to file backend")
	fallback := cfg.Storage
	fallback.Backend = "file"
	return storage.Open(ctx, fallback)
}

// upstreamOptions maps configuration onto the client. Mode, personal key,
// retry limit and timeout are later overridden by the persisted settings.
func upstreamOptions(cfg *config.Config) upstream.Options {
	mode, err := upstream.ParseMode(cfg.Upstream.Mode)
	if err != nil {
		mode = upstream.ModePublic
	}
	return upstream.Options{
		BaseURL:     cfg.Upstream.BaseURL,
		Mode:        mode,
		PersonalKey: cfg.Upstream.PersonalKey,
		RetryLimit:  cfg.Retry.Limit,
		BaseDelay:   cfg.Retry.BaseDelay(),
		MaxDelay:    cfg.Retry.MaxDelay(),
		Timeout:     cfg.Retry.Timeout(),
		AuthHeader:  cfg.Upstream.AuthHeader,
		RateLimit:   cfg.RateLimit.OutboundRPS,
		RateBurst:   cfg.RateLimit.OutboundBurst,
	}
}

// settingsDefaults seeds the runtime settings from the file configuration.
func settingsDefaults(cfg *config.Config) settings.Settings {
	s := settings.Defaults()
	if mode, err := upstream.ParseMode(cfg.Upstream.Mode); err == nil {
		s.Mode = string(mode)
	}
	s.PersonalKey = strings.TrimSpace(cfg.Upstream.PersonalKey)
	if cfg.Retry.Limit > 0 {
		s.MaxRetries = cfg.Retry.Limit
	}
	if cfg.Retry.TimeoutMs > 0 {
		s.TimeoutMs = cfg.Retry.TimeoutMs
	}
	return s
}

func mailboxOptions(cfg *config.Config, pub events.Publisher) mailbox.Options {
	return mailbox.Options{
		AutoDelete:              cfg.Mailbox.AutoDelete,
		PollInterval:            cfg.Mailbox.PollInterval(),
		ConnectionCheckInterval: cfg.Mailbox.ConnectionCheckInterval(),
		CacheTTL:                cfg.Mailbox.CacheTTL(),
		Publisher:               pub,
	}
}

// reloadHandler reacts to hot config reloads. Logging follows the new
// configuration; a changed key roster or threshold only takes effect after a restart.
func reloadHandler(initial *config.Config, pool *credential.Pool) func(*config.Config) {
	keys := append([]string(nil), initial.Upstream.PublicKeys...)
	return func(next *config.Config) {
		if err := logging.Setup(next); err != nil {
			log.WithError(err).Warn("failed to reapply logging configuration")
		}
		maxUsage, maxErrors := pool.Thresholds()
		if !slices.Equal(keys, next.Upstream.PublicKeys) ||
			maxUsage != next.Pool.MaxUsage || maxErrors != next.Pool.MaxErrors {
			log.WithFields(log.Fields{
				"keys":       len(next.Upstream.PublicKeys),
				"max_usage":  next.Pool.MaxUsage,
				"max_errors": next.Pool.MaxErrors,
			}).Warn("credential pool configuration changed; restart required to apply")
		}
	}
}
