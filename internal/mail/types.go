package mail

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Timestamp accepts the ISO-8601 variants the mail service emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		// epoch millis
		var ms int64
		if err2 := json.Unmarshal(b, &ms); err2 != nil {
			return err
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Inbox is a disposable mailbox.
type Inbox struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Description  string    `json:"description,omitempty"`
	EmailAddress string    `json:"emailAddress"`
	CreatedAt    Timestamp `json:"createdAt"`
	ExpiresAt    Timestamp `json:"expiresAt"`
}

// Email is a received message. List endpoints return previews without Body.
type Email struct {
	ID          string    `json:"id"`
	InboxID     string    `json:"inboxId"`
	From        string    `json:"from"`
	To          []string  `json:"to,omitempty"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body,omitempty"`
	BodyExcerpt string    `json:"bodyExcerpt,omitempty"`
	IsHTML      bool      `json:"isHTML"`
	Read        bool      `json:"read"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// CreateInboxOptions customize CreateInbox. Zero fields use defaults; Extra
// is merged last and may override them.
type CreateInboxOptions struct {
	Name        string
	Description string
	ExpiresAt   time.Time
	Extra       map[string]interface{}
}

// ListOptions page through inboxes or emails.
type ListOptions struct {
	Page int
	Size int
	Sort string
}

// SendOptions describe an outgoing message. Extra is merged last.
type SendOptions struct {
	To      []string               `json:"to"`
	Subject string                 `json:"subject"`
	Body    string                 `json:"body"`
	IsHTML  bool                   `json:"isHTML"`
	Extra   map[string]interface{} `json:"extra,omitempty"`
}

// Attachment is a downloaded attachment.
type Attachment struct {
	ID          string
	ContentType string
	Data        []byte
}

// Filename returns name with an extension derived from the content type,
// unless name already has one.
func (a Attachment) Filename(name string) string {
	if name == "" {
		name = "attachment"
	}
	if strings.Contains(name, ".") {
		return name
	}
	return name + ExtensionForMIME(a.ContentType)
}
