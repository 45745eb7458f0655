package config

import "strings"

// EnvPrefix is prepended to every override variable.
const EnvPrefix = "NEUROMAIL_"

func env(name string) string { return EnvPrefix + name }

// applyEnvOverrides layers NEUROMAIL_* variables over cfg.
func applyEnvOverrides(cfg *Config) {
	setIntFromEnv(env("PORT"), func(v int) { cfg.Server.Port = v })
	setToggleFromEnv(env("DEBUG"), func(v bool) { cfg.Server.Debug = v })
	cfg.Server.LogFile = getenv(env("LOG_FILE"), cfg.Server.LogFile)
	cfg.Server.BasePath = normalizeBasePath(getenv(env("BASE_PATH"), cfg.Server.BasePath))
	if v := getenv(env("CORS_ORIGINS"), ""); v != "" {
		cfg.Server.CORSOrigins = splitAndTrim(v, ",")
	}

	cfg.Security.ManagementKey = getenv(env("MANAGEMENT_KEY"), cfg.Security.ManagementKey)
	cfg.Security.ManagementKeyHash = getenv(env("MANAGEMENT_KEY_HASH"), cfg.Security.ManagementKeyHash)
	setToggleFromEnv(env("MANAGEMENT_ALLOW_REMOTE"), func(v bool) { cfg.Security.ManagementAllowRemote = v })
	if v := getenv(env("MANAGEMENT_ALLOW_IPS"), ""); v != "" {
		cfg.Security.ManagementAllowIPs = splitAndTrim(v, ",")
	}

	cfg.Upstream.BaseURL = getenv(env("UPSTREAM_URL"), cfg.Upstream.BaseURL)
	if v := getenv(env("PUBLIC_KEYS"), ""); v != "" {
		cfg.Upstream.PublicKeys = splitAndTrim(v, ",")
	}
	cfg.Upstream.Mode = strings.ToLower(getenv(env("API_MODE"), cfg.Upstream.Mode))
	cfg.Upstream.PersonalKey = getenv(env("PERSONAL_KEY"), cfg.Upstream.PersonalKey)
	cfg.Upstream.AuthHeader = getenv(env("AUTH_HEADER"), cfg.Upstream.AuthHeader)

	setIntFromEnv(env("RETRY_LIMIT"), func(v int) { cfg.Retry.Limit = v })
	setIntFromEnv(env("RETRY_BASE_DELAY_MS"), func(v int) { cfg.Retry.BaseDelayMs = v })
	setIntFromEnv(env("RETRY_MAX_DELAY_MS"), func(v int) { cfg.Retry.MaxDelayMs = v })
	setIntFromEnv(env("TIMEOUT_MS"), func(v int) { cfg.Retry.TimeoutMs = v })

	setIntFromEnv(env("POOL_MAX_USAGE"), func(v int) { cfg.Pool.MaxUsage = v })
	setIntFromEnv(env("POOL_MAX_ERRORS"), func(v int) { cfg.Pool.MaxErrors = v })

	setToggleFromEnv(env("RATE_LIMIT_ENABLED"), func(v bool) { cfg.RateLimit.Enabled = v })
	setIntFromEnv(env("RATE_LIMIT_RPS"), func(v int) { cfg.RateLimit.RPS = v })
	setIntFromEnv(env("RATE_LIMIT_BURST"), func(v int) { cfg.RateLimit.Burst = v })
	setFloatFromEnv(env("OUTBOUND_RPS"), func(v float64) { cfg.RateLimit.OutboundRPS = v })
	setIntFromEnv(env("OUTBOUND_BURST"), func(v int) { cfg.RateLimit.OutboundBurst = v })

	cfg.Storage.Backend = strings.ToLower(getenv(env("STORAGE_BACKEND"), cfg.Storage.Backend))
	cfg.Storage.BaseDir = getenv(env("STORAGE_DIR"), cfg.Storage.BaseDir)
	cfg.Storage.RedisAddr = getenv(env("REDIS_ADDR"), cfg.Storage.RedisAddr)
	cfg.Storage.RedisPassword = getenv(env("REDIS_PASSWORD"), cfg.Storage.RedisPassword)
	setIntFromEnv(env("REDIS_DB"), func(v int) { cfg.Storage.RedisDB = v })
	cfg.Storage.RedisPrefix = getenv(env("REDIS_PREFIX"), cfg.Storage.RedisPrefix)
	cfg.Storage.SQLitePath = getenv(env("SQLITE_PATH"), cfg.Storage.SQLitePath)

	setIntFromEnv(env("INBOX_LIFETIME_SEC"), func(v int) { cfg.Mailbox.InboxLifetimeSec = v })
	setToggleFromEnv(env("AUTO_DELETE"), func(v bool) { cfg.Mailbox.AutoDelete = v })
	setIntFromEnv(env("POLL_INTERVAL_SEC"), func(v int) { cfg.Mailbox.PollIntervalSec = v })
	setToggleFromEnv(env("NOTIFICATIONS"), func(v bool) { cfg.Mailbox.Notifications = v })

	cfg.Tracing.Endpoint = getenv(env("OTLP_ENDPOINT"), cfg.Tracing.Endpoint)
	setToggleFromEnv(env("OTLP_INSECURE"), func(v bool) { cfg.Tracing.Insecure = v })
}
