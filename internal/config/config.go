package config

import (
	"time"

	"neuromail-go/internal/constants"
)

// Config 主配置结构体，按功能域划分
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Security  SecurityConfig  `yaml:"security" json:"security"`
	Upstream  UpstreamConfig  `yaml:"upstream" json:"upstream"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Pool      PoolConfig      `yaml:"pool" json:"pool"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Storage   StorageConfig   `yaml:"storage" json:"storage"`
	Mailbox   MailboxConfig   `yaml:"mailbox" json:"mailbox"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
}

// DefaultUpstreamURL is the mail service root.
const DefaultUpstreamURL = "https://api.mailslurp.com"

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		Upstream: UpstreamConfig{
			BaseURL:    DefaultUpstreamURL,
			Mode:       "public",
			AuthHeader: "x-api-key",
		},
		Retry: RetryConfig{
			Limit:       constants.DefaultRetryLimit,
			BaseDelayMs: int(constants.DefaultBaseDelay / time.Millisecond),
			MaxDelayMs:  int(constants.DefaultMaxDelay / time.Millisecond),
			TimeoutMs:   int(constants.DefaultAttemptTimeout / time.Millisecond),
		},
		Pool: PoolConfig{
			MaxUsage:  constants.DefaultMaxUsagePerCredential,
			MaxErrors: constants.DefaultMaxErrorsPerCredential,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     20,
			Burst:   40,
		},
		Storage: StorageConfig{
			Backend:     "file",
			BaseDir:     "./data",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "neuromail:",
			SQLitePath:  "./data/neuromail.db",
		},
		Mailbox: MailboxConfig{
			InboxLifetimeSec:   int(constants.DefaultInboxLifetime / time.Second),
			AutoDelete:         true,
			PollIntervalSec:    int(constants.DefaultNewMailPollInterval / time.Second),
			ConnectionCheckSec: int(constants.DefaultConnectionCheckInterval / time.Second),
			CacheTTLSec:        int(constants.DefaultEmailCacheTTL / time.Second),
		},
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	out.Upstream.PublicKeys = append([]string(nil), c.Upstream.PublicKeys...)
	out.Security.ManagementAllowIPs = append([]string(nil), c.Security.ManagementAllowIPs...)
	return &out
}

func (r RetryConfig) BaseDelay() time.Duration { return time.Duration(r.BaseDelayMs) * time.Millisecond }
func (r RetryConfig) MaxDelay() time.Duration  { return time.Duration(r.MaxDelayMs) * time.Millisecond }
func (r RetryConfig) Timeout() time.Duration   { return time.Duration(r.TimeoutMs) * time.Millisecond }

func (m MailboxConfig) InboxLifetime() time.Duration {
	return time.Duration(m.InboxLifetimeSec) * time.Second
}

func (m MailboxConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSec) * time.Second
}

func (m MailboxConfig) ConnectionCheckInterval() time.Duration {
	return time.Duration(m.ConnectionCheckSec) * time.Second
}

func (m MailboxConfig) CacheTTL() time.Duration {
	return time.Duration(m.CacheTTLSec) * time.Second
}
