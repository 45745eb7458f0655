package config

// ServerConfig 服务监听与日志配置
type ServerConfig struct {
	Port        int      `yaml:"port" json:"port"`
	BasePath    string   `yaml:"base_path" json:"base_path"`
	Debug       bool     `yaml:"debug" json:"debug"`
	LogFile     string   `yaml:"log_file" json:"log_file"`
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`
}

// SecurityConfig 管理接口访问配置
type SecurityConfig struct {
	ManagementKey     string `yaml:"management_key" json:"management_key"`
	ManagementKeyHash string `yaml:"management_key_hash" json:"management_key_hash"`

	// 默认仅允许本机访问管理接口
	ManagementAllowRemote bool     `yaml:"management_allow_remote" json:"management_allow_remote"`
	ManagementAllowIPs    []string `yaml:"management_allow_ips" json:"management_allow_ips"`
}

// UpstreamConfig 邮件服务与 API Key 配置
type UpstreamConfig struct {
	BaseURL     string   `yaml:"base_url" json:"base_url"`
	PublicKeys  []string `yaml:"public_keys" json:"public_keys"`
	Mode        string   `yaml:"mode" json:"mode"`
	PersonalKey string   `yaml:"personal_key" json:"personal_key"`
	AuthHeader  string   `yaml:"auth_header" json:"auth_header"`
}

// RetryConfig 重试与超时设置（毫秒）
type RetryConfig struct {
	Limit       int `yaml:"limit" json:"limit"`
	BaseDelayMs int `yaml:"base_delay_ms" json:"base_delay_ms"`
	MaxDelayMs  int `yaml:"max_delay_ms" json:"max_delay_ms"`
	TimeoutMs   int `yaml:"timeout_ms" json:"timeout_ms"`
}

// PoolConfig 凭证池阈值
type PoolConfig struct {
	MaxUsage  int `yaml:"max_usage" json:"max_usage"`
	MaxErrors int `yaml:"max_errors" json:"max_errors"`
}

// RateLimitConfig 入站与出站速率限制
type RateLimitConfig struct {
	Enabled       bool    `yaml:"enabled" json:"enabled"`
	RPS           int     `yaml:"rps" json:"rps"`
	Burst         int     `yaml:"burst" json:"burst"`
	OutboundRPS   float64 `yaml:"outbound_rps" json:"outbound_rps"`
	OutboundBurst int     `yaml:"outbound_burst" json:"outbound_burst"`
}

// StorageConfig 设置存储后端
type StorageConfig struct {
	Backend       string `yaml:"backend" json:"backend"` // file, redis, sqlite
	BaseDir       string `yaml:"base_dir" json:"base_dir"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"redis_password"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix" json:"redis_prefix"`
	SQLitePath    string `yaml:"sqlite_path" json:"sqlite_path"`
}

// MailboxConfig 邮箱生命周期与后台任务
type MailboxConfig struct {
	InboxLifetimeSec   int  `yaml:"inbox_lifetime_sec" json:"inbox_lifetime_sec"`
	AutoDelete         bool `yaml:"auto_delete" json:"auto_delete"`
	PollIntervalSec    int  `yaml:"poll_interval_sec" json:"poll_interval_sec"`
	ConnectionCheckSec int  `yaml:"connection_check_sec" json:"connection_check_sec"`
	CacheTTLSec        int  `yaml:"cache_ttl_sec" json:"cache_ttl_sec"`
	Notifications      bool `yaml:"notifications" json:"notifications"`
}

// TracingConfig OTLP 导出配置
type TracingConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Insecure bool   `yaml:"insecure" json:"insecure"`
}
