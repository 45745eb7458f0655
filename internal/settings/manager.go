package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"neuromail-go/internal/events"
	"neuromail-go/internal/storage"

	log "github.com/sirupsen/logrus"
)

// Prober validates an API key against the mail service.
type Prober interface {
	Probe(ctx context.Context, key string) (bool, error)
}

// ChangeEvent is published on events.TopicSettingsChanged. The key is masked.
type ChangeEvent struct {
	Reason   string   `json:"reason"`
	Settings Settings `json:"settings"`
}

// Manager owns the persisted settings and notifies listeners on change.
type Manager struct {
	mu        sync.RWMutex
	store     storage.Backend
	defaults  Settings
	current   Settings
	prober    Prober
	listeners []func(Settings)
	publisher events.Publisher
}

// Options configure a Manager.
type Options struct {
	// Defaults replace the built-in defaults when non-zero.
	Defaults  *Settings
	Prober    Prober
	Publisher events.Publisher
}

// NewManager loads stored settings merged over the defaults. A missing or
// unreadable blob falls back to the defaults.
func NewManager(ctx context.Context, store storage.Backend, opts Options) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("settings: storage backend is required")
	}
	defaults := Defaults()
	if opts.Defaults != nil {
		defaults = *opts.Defaults
	}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("settings defaults: %w", err)
	}

	m := &Manager{
		store:     store,
		defaults:  defaults,
		current:   defaults,
		prober:    opts.Prober,
		publisher: opts.Publisher,
	}
	m.current = m.load(ctx)
	return m, nil
}

func (m *Manager) load(ctx context.Context) Settings {
	raw, err := m.store.Get(ctx, StorageKey)
	if err != nil {
		if !storage.IsNotFound(err) {
			log.WithError(err).Warn("failed to read stored API settings, using defaults")
		}
		return m.defaults
	}
	s, err := m.decode(raw)
	if err != nil {
		log.WithError(err).Warn("stored API settings are invalid, using defaults")
		return m.defaults
	}
	return s
}

// decode merges raw JSON over the defaults.
func (m *Manager) decode(raw []byte) (Settings, error) {
	s := m.defaults
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	s.Mode = strings.ToLower(strings.TrimSpace(s.Mode))
	s.PersonalKey = strings.TrimSpace(s.PersonalKey)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SetProber wires key validation.
func (m *Manager) SetProber(p Prober) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prober = p
}

// SetPublisher wires the event hub.
func (m *Manager) SetPublisher(p events.Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
}

// OnChange registers a listener called with the new settings after each change.
func (m *Manager) OnChange(fn func(Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Get returns the current settings.
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// SetMode switches the API mode; unknown modes are rejected.
func (m *Manager) SetMode(ctx context.Context, mode string) (Settings, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if err := validateMode(mode); err != nil {
		return m.Get(), err
	}
	return m.commit(ctx, "mode", func(s Settings) Settings {
		s.Mode = mode
		return s
	})
}

// SetPersonalKey stores the trimmed key; an empty key clears it.
func (m *Manager) SetPersonalKey(ctx context.Context, key string) (Settings, error) {
	return m.commit(ctx, "personal_key", func(s Settings) Settings {
		s.PersonalKey = strings.TrimSpace(key)
		return s
	})
}

// Update applies a partial update.
func (m *Manager) Update(ctx context.Context, p Patch) (Settings, error) {
	return m.commit(ctx, "update", p.apply)
}

// Reset restores the defaults.
func (m *Manager) Reset(ctx context.Context) (Settings, error) {
	return m.commit(ctx, "reset", func(Settings) Settings { return m.defaults })
}

// ApplyRecommended applies the preset for mode.
func (m *Manager) ApplyRecommended(ctx context.Context, mode string) (Settings, error) {
	return m.commit(ctx, "recommended", Recommended(mode).apply)
}

// Export returns the settings as indented JSON.
func (m *Manager) Export() ([]byte, error) {
	return json.MarshalIndent(m.Get(), "", "  ")
}

// Import replaces the settings with raw merged over the defaults.
func (m *Manager) Import(ctx context.Context, raw []byte) (Settings, error) {
	imported, err := m.decode(raw)
	if err != nil {
		return m.Get(), err
	}
	return m.commit(ctx, "import", func(Settings) Settings { return imported })
}

// ClearAll deletes the stored blob and returns to the defaults.
func (m *Manager) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	if err := m.store.Delete(ctx, StorageKey); err != nil && !storage.IsNotFound(err) {
		m.mu.Unlock()
		return fmt.Errorf("clear settings: %w", err)
	}
	m.current = m.defaults
	s := m.current
	m.mu.Unlock()

	log.Info("API settings cleared")
	m.notify(ctx, "clear", s)
	return nil
}

// KeyStats summarizes the key configuration.
func (m *Manager) KeyStats() KeyStats {
	s := m.Get()
	return KeyStats{
		CurrentMode:       s.Mode,
		HasPersonalKey:    s.PersonalKey != "",
		PersonalKeyLength: len(s.PersonalKey),
		Settings:          s.Masked(),
	}
}

// ValidateKey probes key without touching the stored settings. Blank keys
// are invalid without a network call.
func (m *Manager) ValidateKey(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	m.mu.RLock()
	p := m.prober
	m.mu.RUnlock()
	if p == nil {
		return false, fmt.Errorf("key validation is not configured")
	}
	return p.Probe(ctx, key)
}

// commit validates, persists and publishes next. Memory is only updated once
// the backend accepted the write.
func (m *Manager) commit(ctx context.Context, reason string, mutate func(Settings) Settings) (Settings, error) {
	m.mu.Lock()
	next := mutate(m.current)
	if err := next.Validate(); err != nil {
		cur := m.current
		m.mu.Unlock()
		return cur, err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		cur := m.current
		m.mu.Unlock()
		return cur, fmt.Errorf("encode settings: %w", err)
	}
	if err := m.store.Set(ctx, StorageKey, raw); err != nil {
		cur := m.current
		m.mu.Unlock()
		return cur, fmt.Errorf("save settings: %w", err)
	}
	m.current = next
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"reason":       reason,
		"mode":         next.Mode,
		"personal_key": next.PersonalKey != "",
		"max_retries":  next.MaxRetries,
		"timeout_ms":   next.TimeoutMs,
	}).Info("API settings updated")
	m.notify(ctx, reason, next)
	return next, nil
}

func (m *Manager) notify(ctx context.Context, reason string, s Settings) {
	m.mu.RLock()
	listeners := make([]func(Settings), len(m.listeners))
	copy(listeners, m.listeners)
	pub := m.publisher
	m.mu.RUnlock()

	for _, fn := range listeners {
		fn(s)
	}
	if pub != nil {
		pub.Publish(ctx, events.TopicSettingsChanged, ChangeEvent{Reason: reason, Settings: s.Masked()}, nil)
	}
}
