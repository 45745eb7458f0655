package config

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// ManagementEnabled reports whether any management credential is configured.
func (s SecurityConfig) ManagementEnabled() bool {
	return s.ManagementKey != "" || s.ManagementKeyHash != ""
}

// CheckManagementKey verifies whether the provided key matches the configured management credential.
func CheckManagementKey(cfg *Config, candidate string) bool {
	if cfg == nil || candidate == "" {
		return false
	}
	sec := cfg.Security
	if sec.ManagementKey != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(sec.ManagementKey)) == 1 {
		return true
	}
	if sec.ManagementKeyHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(sec.ManagementKeyHash), []byte(candidate)); err == nil {
			return true
		}
	}
	return false
}

// ManagementKeyValidator returns a closure suitable for middleware validation.
// It reads the live configuration so hot reloads take effect.
func ManagementKeyValidator(get func() *Config) func(string) bool {
	return func(candidate string) bool {
		return CheckManagementKey(get(), candidate)
	}
}
