package constants

import "time"

const (
	// ServerShutdownTimeout bounds graceful HTTP server shutdown.
	ServerShutdownTimeout = 30 * time.Second
	// ServerGracefulWait defines post-shutdown wait window for cleanup.
	ServerGracefulWait = 2 * time.Second
)

// 邮箱自动任务
const (
	DefaultInboxLifetime           = 5 * time.Minute
	DefaultNewMailPollInterval     = 30 * time.Second
	DefaultConnectionCheckInterval = 5 * time.Minute
	DefaultEmailCacheTTL           = 5 * time.Minute
	DefaultCacheSweepInterval      = 10 * time.Minute
	// WaitForLatestPollTimeout is the server-side wait used by background polling.
	WaitForLatestPollTimeout = 1 * time.Second
	DefaultInboxPageSize     = 50
)

// WebSocket feed
const (
	FeedHistoryCap      = 200
	FeedMaxConnections  = 100
	FeedIdleTimeout     = 30 * time.Minute
	FeedCleanupInterval = 2 * time.Minute
)
