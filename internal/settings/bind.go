package settings

import (
	"time"

	"neuromail-go/internal/upstream"
)

// Apply pushes s into the client's runtime policy.
func Apply(c *upstream.Client, s Settings) {
	if c == nil {
		return
	}
	c.SetMode(upstream.Mode(s.Mode))
	c.SetPersonalKey(s.PersonalKey)
	c.SetRotation(s.AutoRotateKeys)
	c.SetRetryPolicy(s.MaxRetries, time.Duration(s.TimeoutMs)*time.Millisecond)
}

// Bind applies the current settings to c and keeps it in sync.
func Bind(m *Manager, c *upstream.Client) {
	Apply(c, m.Get())
	m.OnChange(func(s Settings) { Apply(c, s) })
}
