package constants

import "time"

// 重试策略常量
const (
	DefaultRetryLimit = 3
	DefaultBaseDelay  = 1 * time.Second
	// DefaultMaxDelay of zero caps backoff at MaxBackoffDelay only.
	DefaultMaxDelay = 0
	// MaxBackoffDelay is the hard ceiling for a single backoff wait.
	MaxBackoffDelay = 5 * time.Minute
	// MaxRetryLimit bounds attempts per request.
	MaxRetryLimit = 10
	// DefaultAttemptTimeout bounds a single upstream attempt.
	DefaultAttemptTimeout = 10 * time.Second
	// ProbeTimeout bounds personal key validation calls.
	ProbeTimeout = 5 * time.Second
)

// 凭证池阈值
const (
	DefaultMaxUsagePerCredential  = 100
	DefaultMaxErrorsPerCredential = 5
)

// 错误处理配置
const (
	MaxErrorMessageLength = 200
)
