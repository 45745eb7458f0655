package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"neuromail-go/internal/constants"
	"neuromail-go/internal/credential"
	"neuromail-go/internal/upstream"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// API exposes the mail-service endpoints on top of an upstream client.
type API struct {
	client   *upstream.Client
	lifetime time.Duration
	now      func() time.Time
}

// New wraps client. lifetime is the default inbox expiry; zero uses the built-in default.
func New(client *upstream.Client, lifetime time.Duration) *API {
	if lifetime <= 0 {
		lifetime = constants.DefaultInboxLifetime
	}
	return &API{client: client, lifetime: lifetime, now: time.Now}
}

// Client returns the underlying upstream client.
func (a *API) Client() *upstream.Client { return a.client }

// InboxLifetime is the expiry applied when CreateInbox gets no ExpiresAt.
func (a *API) InboxLifetime() time.Duration { return a.lifetime }

func escape(id string) string { return url.PathEscape(strings.TrimSpace(id)) }

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s id is required", kind)
	}
	return nil
}

// CreateInbox creates a new disposable inbox.
func (a *API) CreateInbox(ctx context.Context, opts CreateInboxOptions) (*Inbox, error) {
	now := a.now()
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("NeuroMail-%d", now.UnixMilli())
	}
	desc := opts.Description
	if desc == "" {
		desc = "Temporary inbox"
	}
	expires := opts.ExpiresAt
	if expires.IsZero() {
		expires = now.Add(a.lifetime)
	}

	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "name", name); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "description", desc); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "expiresAt", expires.UTC().Format(time.RFC3339)); err != nil {
		return nil, err
	}
	for k, v := range opts.Extra {
		if body, err = sjson.SetBytes(body, k, v); err != nil {
			return nil, fmt.Errorf("inbox option %s: %w", k, err)
		}
	}

	res, err := a.client.Execute(ctx, upstream.RequestSpec{Method: http.MethodPost, Path: "/inboxes", Body: body})
	if err != nil {
		return nil, err
	}
	var inbox Inbox
	if err := res.Decode(&inbox); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"inbox_id": inbox.ID, "address": inbox.EmailAddress}).Info("inbox created")
	return &inbox, nil
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Size > 0 {
		q.Set("size", strconv.Itoa(o.Size))
	}
	if o.Sort != "" {
		q.Set("sort", o.Sort)
	}
	return q
}

// content unwraps paged responses; plain arrays pass through.
func content(res *upstream.Result) []byte {
	doc := res.JSON()
	if page := doc.Get("content"); page.IsArray() {
		return []byte(page.Raw)
	}
	if doc.IsArray() {
		return res.Body
	}
	return []byte(`[]`)
}

// ListInboxes returns one page of inboxes.
func (a *API) ListInboxes(ctx context.Context, opts ListOptions) ([]Inbox, error) {
	res, err := a.client.Execute(ctx, upstream.RequestSpec{Path: "/inboxes", Query: opts.query()})
	if err != nil {
		return nil, err
	}
	var inboxes []Inbox
	if err := json.Unmarshal(content(res), &inboxes); err != nil {
		return nil, fmt.Errorf("decode inboxes: %w", err)
	}
	return inboxes, nil
}

// DeleteInbox removes an inbox and its mail.
func (a *API) DeleteInbox(ctx context.Context, inboxID string) error {
	if err := requireID("inbox", inboxID); err != nil {
		return err
	}
	_, err := a.client.Execute(ctx, upstream.RequestSpec{Method: http.MethodDelete, Path: "/inboxes/" + escape(inboxID)})
	if err != nil {
		return err
	}
	log.WithField("inbox_id", inboxID).Info("inbox deleted")
	return nil
}

// ListEmails returns previews for one inbox.
func (a *API) ListEmails(ctx context.Context, inboxID string, opts ListOptions) ([]Email, error) {
	if err := requireID("inbox", inboxID); err != nil {
		return nil, err
	}
	q := opts.query()
	q.Set("inboxId", strings.TrimSpace(inboxID))
	res, err := a.client.Execute(ctx, upstream.RequestSpec{Path: "/emails", Query: q})
	if err != nil {
		return nil, err
	}
	var emails []Email
	if err := json.Unmarshal(content(res), &emails); err != nil {
		return nil, fmt.Errorf("decode emails: %w", err)
	}
	return emails, nil
}

// GetEmail fetches a full message.
func (a *API) GetEmail(ctx context.Context, emailID string) (*Email, error) {
	if err := requireID("email", emailID); err != nil {
		return nil, err
	}
	res, err := a.client.Execute(ctx, upstream.RequestSpec{Path: "/emails/" + escape(emailID)})
	if err != nil {
		return nil, err
	}
	var email Email
	if err := res.Decode(&email); err != nil {
		return nil, err
	}
	return &email, nil
}

// DeleteEmail removes one message.
func (a *API) DeleteEmail(ctx context.Context, emailID string) error {
	if err := requireID("email", emailID); err != nil {
		return err
	}
	_, err := a.client.Execute(ctx, upstream.RequestSpec{Method: http.MethodDelete, Path: "/emails/" + escape(emailID)})
	return err
}

// SendEmail sends a message from inboxID. The upstream reply, possibly empty, is returned as-is.
func (a *API) SendEmail(ctx context.Context, inboxID string, opts SendOptions) (json.RawMessage, error) {
	if err := requireID("inbox", inboxID); err != nil {
		return nil, err
	}
	if len(opts.To) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	body := []byte(`{}`)
	var err error
	fields := []struct {
		path  string
		value interface{}
	}{
		{"to", opts.To},
		{"subject", opts.Subject},
		{"body", opts.Body},
		{"isHTML", opts.IsHTML},
	}
	for _, f := range fields {
		if body, err = sjson.SetBytes(body, f.path, f.value); err != nil {
			return nil, err
		}
	}
	for k, v := range opts.Extra {
		if body, err = sjson.SetBytes(body, k, v); err != nil {
			return nil, fmt.Errorf("send option %s: %w", k, err)
		}
	}

	res, err := a.client.Execute(ctx, upstream.RequestSpec{Method: http.MethodPost, Path: "/inboxes/" + escape(inboxID), Body: body})
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"inbox_id": inboxID, "recipients": len(opts.To)}).Info("email sent")
	return json.RawMessage(res.Body), nil
}

// WaitForLatestEmail asks the service to hold the request until mail arrives
// or timeout elapses. The client's per-attempt deadline still applies.
func (a *API) WaitForLatestEmail(ctx context.Context, inboxID string, timeout time.Duration) (*Email, error) {
	if err := requireID("inbox", inboxID); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("inboxId", strings.TrimSpace(inboxID))
	q.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	res, err := a.client.Execute(ctx, upstream.RequestSpec{Path: "/waitForLatestEmail", Query: q})
	if err != nil {
		return nil, err
	}
	var email Email
	if err := res.Decode(&email); err != nil {
		return nil, err
	}
	return &email, nil
}

// GetAttachment downloads attachment bytes.
func (a *API) GetAttachment(ctx context.Context, attachmentID string) (*Attachment, error) {
	if err := requireID("attachment", attachmentID); err != nil {
		return nil, err
	}
	res, err := a.client.Execute(ctx, upstream.RequestSpec{Path: "/attachments/" + escape(attachmentID), Raw: true})
	if err != nil {
		return nil, err
	}
	ct := res.ContentType()
	if ct == "" {
		ct = "application/octet-stream"
	}
	return &Attachment{ID: attachmentID, ContentType: ct, Data: res.Body}, nil
}

// UserInfo returns the account document for the active key.
func (a *API) UserInfo(ctx context.Context) (json.RawMessage, error) {
	res, err := a.client.Execute(ctx, upstream.RequestSpec{Path: "/user/info"})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(res.Body), nil
}

// ConnectionStatus reports reachability plus the key state.
type ConnectionStatus struct {
	Connected bool                    `json:"connected"`
	Error     string                  `json:"error,omitempty"`
	UserInfo  json.RawMessage         `json:"userInfo,omitempty"`
	Mode      upstream.Mode           `json:"mode"`
	KeyInfo   *credential.CurrentInfo `json:"currentKeyInfo,omitempty"`
	Pool      *credential.PoolStatus  `json:"poolStatus,omitempty"`
	CheckedAt time.Time               `json:"checkedAt"`
}

// CheckConnection calls /user/info and never returns an error; failures are reported in the status.
func (a *API) CheckConnection(ctx context.Context) ConnectionStatus {
	st := ConnectionStatus{Mode: a.client.Policy().Mode, CheckedAt: a.now()}
	info, err := a.UserInfo(ctx)
	if err != nil {
		st.Error = err.Error()
		log.WithError(err).Warn("connection check failed")
	} else {
		st.Connected = true
		st.UserInfo = info
	}
	if pool := a.client.Pool(); pool != nil {
		if cur, ok := pool.CurrentInfo(); ok {
			st.KeyInfo = &cur
		}
		ps := pool.Status()
		st.Pool = &ps
	}
	return st
}

// AccountEmail extracts the address from a /user/info document.
func AccountEmail(info json.RawMessage) string {
	return gjson.GetBytes(info, "emailAddress").String()
}
