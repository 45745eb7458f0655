package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"neuromail-go/internal/constants"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s=%s]: %s", e.Field, e.Value, e.Message)
}

// ValidationResult holds the results of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
	Valid    bool
}

// AddError adds a validation error
func (r *ValidationResult) AddError(field, value, message string) {
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	})
	r.Valid = false
}

// AddWarning adds a validation warning
func (r *ValidationResult) AddWarning(field, value, message string) {
	r.Warnings = append(r.Warnings, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// Err joins all validation errors; nil when the result is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// Validate validates the configuration and returns validation results
func (c *Config) Validate() ValidationResult {
	result := ValidationResult{Valid: true}

	if err := validatePort(c.Server.Port); err != nil {
		result.AddError("server.port", strconv.Itoa(c.Server.Port), err.Error())
	}

	// Upstream
	if u, err := url.Parse(c.Upstream.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		result.AddError("upstream.base_url", c.Upstream.BaseURL, "must be an absolute URL")
	}
	validModes := []string{"public", "personal", "combined"}
	if !contains(validModes, c.Upstream.Mode) {
		result.AddError("upstream.mode", c.Upstream.Mode,
			fmt.Sprintf("must be one of: %s", strings.Join(validModes, ", ")))
	}
	if len(c.Upstream.PublicKeys) == 0 {
		if c.Upstream.Mode == "public" || c.Upstream.PersonalKey == "" {
			result.AddWarning("upstream.public_keys", "", "no public keys configured, requests will fail until a personal key is set")
		}
	}
	if strings.TrimSpace(c.Upstream.AuthHeader) == "" {
		result.AddError("upstream.auth_header", c.Upstream.AuthHeader, "cannot be empty")
	}

	// Retry / pool thresholds
	if c.Retry.Limit < 1 {
		result.AddError("retry.limit", strconv.Itoa(c.Retry.Limit), "must be at least 1")
	} else if c.Retry.Limit > constants.MaxRetryLimit {
		result.AddError("retry.limit", strconv.Itoa(c.Retry.Limit), fmt.Sprintf("cannot exceed %d", constants.MaxRetryLimit))
	}
	if c.Retry.BaseDelayMs < 0 {
		result.AddError("retry.base_delay_ms", strconv.Itoa(c.Retry.BaseDelayMs), "cannot be negative")
	}
	if c.Retry.MaxDelayMs < 0 {
		result.AddError("retry.max_delay_ms", strconv.Itoa(c.Retry.MaxDelayMs), "cannot be negative")
	}
	if c.Retry.TimeoutMs <= 0 {
		result.AddError("retry.timeout_ms", strconv.Itoa(c.Retry.TimeoutMs), "must be positive")
	}
	if c.Pool.MaxUsage <= 0 {
		result.AddError("pool.max_usage", strconv.Itoa(c.Pool.MaxUsage), "must be positive")
	}
	if c.Pool.MaxErrors <= 0 {
		result.AddError("pool.max_errors", strconv.Itoa(c.Pool.MaxErrors), "must be positive")
	}

	// Rate limiting
	if c.RateLimit.Enabled {
		if c.RateLimit.RPS <= 0 {
			result.AddError("rate_limit.rps", strconv.Itoa(c.RateLimit.RPS),
				"must be positive when rate limiting is enabled")
		}
		if c.RateLimit.Burst <= 0 {
			result.AddError("rate_limit.burst", strconv.Itoa(c.RateLimit.Burst),
				"must be positive when rate limiting is enabled")
		}
	}

	// Storage backend
	validBackends := []string{"file", "redis", "sqlite"}
	if !contains(validBackends, c.Storage.Backend) {
		result.AddError("storage.backend", c.Storage.Backend,
			fmt.Sprintf("must be one of: %s", strings.Join(validBackends, ", ")))
	}
	switch c.Storage.Backend {
	case "redis":
		if c.Storage.RedisAddr == "" {
			result.AddError("storage.redis_addr", c.Storage.RedisAddr, "required when using redis backend")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			result.AddError("storage.sqlite_path", c.Storage.SQLitePath, "required when using sqlite backend")
		}
	case "file":
		if c.Storage.BaseDir == "" {
			result.AddWarning("storage.base_dir", c.Storage.BaseDir, "using default directory")
		}
	}

	// Mailbox
	if c.Mailbox.InboxLifetimeSec <= 0 {
		result.AddError("mailbox.inbox_lifetime_sec", strconv.Itoa(c.Mailbox.InboxLifetimeSec), "must be positive")
	}
	if c.Mailbox.PollIntervalSec < 0 || c.Mailbox.ConnectionCheckSec < 0 || c.Mailbox.CacheTTLSec < 0 {
		result.AddError("mailbox", "", "intervals cannot be negative")
	}

	if c.Security.ManagementKey == "" && c.Security.ManagementKeyHash == "" {
		result.AddWarning("security.management_key", "", "no management key set, management API will be disabled")
	}
	for _, entry := range c.Security.ManagementAllowIPs {
		entry = strings.TrimSpace(entry)
		if net.ParseIP(entry) == nil {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				result.AddError("security.management_allow_ips", entry, "must be an IP address or CIDR")
			}
		}
	}

	return result
}

// validatePort validates a port number
func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// contains checks if a slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// ValidateAndExpandPaths validates and expands file paths in configuration
func (c *Config) ValidateAndExpandPaths() error {
	var err error

	if c.Storage.BaseDir != "" {
		c.Storage.BaseDir, err = expandPath(c.Storage.BaseDir)
		if err != nil {
			return fmt.Errorf("invalid storage.base_dir path: %v", err)
		}
	}

	if c.Storage.SQLitePath != "" {
		c.Storage.SQLitePath, err = expandPath(c.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("invalid storage.sqlite_path path: %v", err)
		}
	}

	if c.Server.LogFile != "" {
		c.Server.LogFile, err = expandPath(c.Server.LogFile)
		if err != nil {
			return fmt.Errorf("invalid server.log_file path: %v", err)
		}
	}

	return nil
}

// expandPath expands ~ and environment variables in file paths
func expandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot get home directory: %v", err)
		}
		path = filepath.Join(home, path[2:])
	}

	// Expand environment variables
	path = os.ExpandEnv(path)

	// Convert to absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot convert to absolute path: %v", err)
	}

	return absPath, nil
}
