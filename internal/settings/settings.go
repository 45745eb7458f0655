package settings

import (
	"fmt"
	"strings"

	"neuromail-go/internal/constants"
	"neuromail-go/internal/credential"
)

// StorageKey is the backend key holding the settings blob.
const StorageKey = "api_settings"

// Mode names accepted by SetMode.
const (
	ModePublic   = "public"
	ModePersonal = "personal"
	ModeCombined = "combined"
)

var validModes = []string{ModePublic, ModePersonal, ModeCombined}

// Settings is the persisted runtime API configuration.
type Settings struct {
	Mode           string `json:"apiMode"`
	PersonalKey    string `json:"personalApiKey,omitempty"`
	AutoRotateKeys bool   `json:"autoRotateKeys"`
	MaxRetries     int    `json:"maxRetries"`
	TimeoutMs      int    `json:"timeout"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Mode:           ModePublic,
		AutoRotateKeys: true,
		MaxRetries:     3,
		TimeoutMs:      10000,
	}
}

// Validate checks the mode name and numeric bounds.
func (s Settings) Validate() error {
	if err := validateMode(s.Mode); err != nil {
		return err
	}
	if s.MaxRetries < 1 || s.MaxRetries > constants.MaxRetryLimit {
		return fmt.Errorf("maxRetries must be between 1 and %d, got %d", constants.MaxRetryLimit, s.MaxRetries)
	}
	if s.TimeoutMs <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", s.TimeoutMs)
	}
	return nil
}

// Masked returns a copy safe for logs and API responses.
func (s Settings) Masked() Settings {
	out := s
	if out.PersonalKey != "" {
		out.PersonalKey = credential.MaskSecret(out.PersonalKey)
	}
	return out
}

// Patch is a partial update; nil fields are left untouched.
type Patch struct {
	Mode           *string `json:"apiMode,omitempty"`
	PersonalKey    *string `json:"personalApiKey,omitempty"`
	AutoRotateKeys *bool   `json:"autoRotateKeys,omitempty"`
	MaxRetries     *int    `json:"maxRetries,omitempty"`
	TimeoutMs      *int    `json:"timeout,omitempty"`
}

func (p Patch) apply(s Settings) Settings {
	if p.Mode != nil {
		s.Mode = strings.ToLower(strings.TrimSpace(*p.Mode))
	}
	if p.PersonalKey != nil {
		s.PersonalKey = strings.TrimSpace(*p.PersonalKey)
	}
	if p.AutoRotateKeys != nil {
		s.AutoRotateKeys = *p.AutoRotateKeys
	}
	if p.MaxRetries != nil {
		s.MaxRetries = *p.MaxRetries
	}
	if p.TimeoutMs != nil {
		s.TimeoutMs = *p.TimeoutMs
	}
	return s
}

// Recommended returns the suggested preset for mode; unknown modes get the
// public preset. The personal key is never part of a preset.
func Recommended(mode string) Patch {
	var (
		m      string
		rotate bool
		tries  int
		ms     int
	)
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModePersonal:
		m, rotate, tries, ms = ModePersonal, false, 2, 15000
	case ModeCombined:
		m, rotate, tries, ms = ModeCombined, true, 3, 10000
	default:
		m, rotate, tries, ms = ModePublic, true, 3, 10000
	}
	return Patch{Mode: &m, AutoRotateKeys: &rotate, MaxRetries: &tries, TimeoutMs: &ms}
}

// KeyStats summarizes the key configuration without exposing the key.
type KeyStats struct {
	CurrentMode       string   `json:"currentMode"`
	HasPersonalKey    bool     `json:"hasPersonalKey"`
	PersonalKeyLength int      `json:"personalKeyLength"`
	Settings          Settings `json:"settings"`
}

func validateMode(mode string) error {
	for _, m := range validModes {
		if mode == m {
			return nil
		}
	}
	return fmt.Errorf("invalid API mode %q (available: %s)", mode, strings.Join(validModes, ", "))
}
