package credential

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrEmptyPool is returned by Acquire when the roster holds no credentials.
	ErrEmptyPool = errors.New("credential pool is empty")
	// ErrSlotOutOfRange is returned when a lease index does not address a roster slot.
	ErrSlotOutOfRange = errors.New("credential slot out of range")
)

// Credential is one roster slot: an opaque API key plus its usage bookkeeping.
type Credential struct {
	Secret     string
	UsageCount int
	ErrorCount int
	Exhausted  bool
	LastUsed   time.Time
}

// Lease identifies the slot handed out by Acquire. Outcomes should be recorded
// against Index so concurrent callers never charge each other's credential.
type Lease struct {
	Index  int
	Secret string
	// Reset is true when producing this lease required a full pool reset.
	Reset bool
}

// CredentialStatus is a read-only snapshot of one slot, safe for display.
type CredentialStatus struct {
	Index      int        `json:"index"`
	Key        string     `json:"key"`
	UsageCount int        `json:"usage_count"`
	ErrorCount int        `json:"error_count"`
	Exhausted  bool       `json:"exhausted"`
	LastUsed   *time.Time `json:"last_used,omitempty"`
	Current    bool       `json:"current"`
}

// PoolStatus summarizes the roster.
type PoolStatus struct {
	Total        int                `json:"total"`
	Available    int                `json:"available"`
	Exhausted    int                `json:"exhausted"`
	CurrentIndex int                `json:"current_index"`
	Resets       int64              `json:"resets"`
	Credentials  []CredentialStatus `json:"credentials"`
}

// UsageStats aggregates counters across the roster.
type UsageStats struct {
	TotalUsage       int              `json:"total_usage"`
	TotalErrors      int              `json:"total_errors"`
	AverageUsage     float64          `json:"average_usage_per_key"`
	AverageErrors    float64          `json:"average_errors_per_key"`
	MostUsed         CredentialStatus `json:"most_used"`
	LeastUsed        CredentialStatus `json:"least_used"`
	ResetCount       int64            `json:"reset_count"`
	ExhaustedCurrent bool             `json:"exhausted_current"`
}

// CurrentInfo describes the slot under the cursor.
type CurrentInfo struct {
	Index           int        `json:"index"`
	UsageCount      int        `json:"usage_count"`
	ErrorCount      int        `json:"error_count"`
	Exhausted       bool       `json:"exhausted"`
	LastUsed        *time.Time `json:"last_used,omitempty"`
	RemainingUsage  int        `json:"remaining_usage"`
	RemainingErrors int        `json:"remaining_errors"`
}

// ResetEvent is published on events.TopicPoolReset.
type ResetEvent struct {
	Automatic bool      `json:"automatic"`
	Resets    int64     `json:"resets"`
	At        time.Time `json:"at"`
}

// ExhaustedEvent is published on events.TopicCredentialSpent.
type ExhaustedEvent struct {
	Index      int    `json:"index"`
	Key        string `json:"key"`
	UsageCount int    `json:"usage_count"`
	ErrorCount int    `json:"error_count"`
}

// MaskSecret shortens a key for logs and status payloads.
func MaskSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func (c *Credential) snapshot(index int, current bool) CredentialStatus {
	st := CredentialStatus{
		Index:      index,
		Key:        MaskSecret(c.Secret),
		UsageCount: c.UsageCount,
		ErrorCount: c.ErrorCount,
		Exhausted:  c.Exhausted,
		Current:    current,
	}
	if !c.LastUsed.IsZero() {
		ts := c.LastUsed
		st.LastUsed = &ts
	}
	return st
}
