package mailbox

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"neuromail-go/internal/constants"
	"neuromail-go/internal/events"
	"neuromail-go/internal/mail"

	log "github.com/sirupsen/logrus"
)

// Mail is the subset of the mail API the service drives.
type Mail interface {
	CreateInbox(ctx context.Context, opts mail.CreateInboxOptions) (*mail.Inbox, error)
	ListInboxes(ctx context.Context, opts mail.ListOptions) ([]mail.Inbox, error)
	DeleteInbox(ctx context.Context, inboxID string) error
	ListEmails(ctx context.Context, inboxID string, opts mail.ListOptions) ([]mail.Email, error)
	GetEmail(ctx context.Context, emailID string) (*mail.Email, error)
	DeleteEmail(ctx context.Context, emailID string) error
	SendEmail(ctx context.Context, inboxID string, opts mail.SendOptions) (json.RawMessage, error)
	WaitForLatestEmail(ctx context.Context, inboxID string, timeout time.Duration) (*mail.Email, error)
	GetAttachment(ctx context.Context, attachmentID string) (*mail.Attachment, error)
	CheckConnection(ctx context.Context) mail.ConnectionStatus
	InboxLifetime() time.Duration
}

// Options tune background work. Zero values use the package defaults.
type Options struct {
	AutoDelete              bool
	PollInterval            time.Duration
	ConnectionCheckInterval time.Duration
	CacheTTL                time.Duration
	SweepInterval           time.Duration
	WaitTimeout             time.Duration
	Publisher               events.Publisher
}

func (o *Options) normalize() {
	if o.PollInterval <= 0 {
		o.PollInterval = constants.DefaultNewMailPollInterval
	}
	if o.ConnectionCheckInterval <= 0 {
		o.ConnectionCheckInterval = constants.DefaultConnectionCheckInterval
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = constants.DefaultEmailCacheTTL
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = constants.DefaultCacheSweepInterval
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = constants.WaitForLatestPollTimeout
	}
}

type cacheEntry struct {
	emails   []mail.Email
	storedAt time.Time
}

// NewEmailEvent is published on events.TopicNewEmail.
type NewEmailEvent struct {
	InboxID string     `json:"inboxId"`
	Email   mail.Email `json:"email"`
}

// InboxEvent is published on inbox creation and deletion.
type InboxEvent struct {
	InboxID   string `json:"inboxId"`
	Address   string `json:"emailAddress,omitempty"`
	Automatic bool   `json:"automatic,omitempty"`
}

// Service keeps inbox state between requests: an email cache, watched
// inboxes and scheduled deletions.
type Service struct {
	api  Mail
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	pub      events.Publisher
	inboxes  map[string]mail.Inbox
	cache    map[string]*cacheEntry
	watched  map[string]map[string]struct{}
	timers   map[string]*time.Timer
	lastConn *mail.ConnectionStatus
	closed   bool
}

// New builds a service over api.
func New(api Mail, opts Options) *Service {
	opts.normalize()
	return &Service{
		api:     api,
		opts:    opts,
		now:     time.Now,
		pub:     opts.Publisher,
		inboxes: make(map[string]mail.Inbox),
		cache:   make(map[string]*cacheEntry),
		watched: make(map[string]map[string]struct{}),
		timers:  make(map[string]*time.Timer),
	}
}

// SetPublisher swaps the event sink.
func (s *Service) SetPublisher(pub events.Publisher) {
	s.mu.Lock()
	s.pub = pub
	s.mu.Unlock()
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	s.mu.Lock()
	pub := s.pub
	s.mu.Unlock()
	if pub != nil {
		pub.Publish(ctx, topic, payload, nil)
	}
}

// CreateInbox creates an inbox and, with auto-delete on, schedules its
// removal once the lifetime elapses.
func (s *Service) CreateInbox(ctx context.Context, opts mail.CreateInboxOptions) (*mail.Inbox, error) {
	inbox, err := s.api.CreateInbox(ctx, opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.inboxes[inbox.ID] = *inbox
	if s.opts.AutoDelete && !s.closed {
		lifetime := s.api.InboxLifetime()
		if !opts.ExpiresAt.IsZero() {
			lifetime = opts.ExpiresAt.Sub(s.now())
		}
		s.scheduleDeletionLocked(inbox.ID, lifetime)
	}
	s.mu.Unlock()

	s.publish(ctx, events.TopicInboxCreated, InboxEvent{InboxID: inbox.ID, Address: inbox.EmailAddress})
	return inbox, nil
}

func (s *Service) scheduleDeletionLocked(inboxID string, after time.Duration) {
	if after < 0 {
		after = 0
	}
	if t, ok := s.timers[inboxID]; ok {
		t.Stop()
	}
	s.timers[inboxID] = time.AfterFunc(after, func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.DefaultAttemptTimeout*time.Duration(constants.DefaultRetryLimit))
		defer cancel()
		if err := s.deleteInbox(ctx, inboxID, true); err != nil {
			log.WithError(err).WithField("inbox_id", inboxID).Warn("auto-delete failed")
			s.mu.Lock()
			delete(s.timers, inboxID)
			s.mu.Unlock()
			return
		}
		log.WithField("inbox_id", inboxID).Info("inbox auto-deleted")
	})
}

// Inboxes lists the first page of inboxes and remembers them.
func (s *Service) Inboxes(ctx context.Context) ([]mail.Inbox, error) {
	inboxes, err := s.api.ListInboxes(ctx, mail.ListOptions{Size: constants.DefaultInboxPageSize})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	for _, in := range inboxes {
		s.inboxes[in.ID] = in
	}
	s.mu.Unlock()
	return inboxes, nil
}

// DeleteInbox removes an inbox and forgets its cached mail and watch state.
func (s *Service) DeleteInbox(ctx context.Context, inboxID string) error {
	return s.deleteInbox(ctx, inboxID, false)
}

func (s *Service) deleteInbox(ctx context.Context, inboxID string, automatic bool) error {
	if err := s.api.DeleteInbox(ctx, inboxID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.inboxes, inboxID)
	delete(s.cache, inboxID)
	delete(s.watched, inboxID)
	if t, ok := s.timers[inboxID]; ok {
		t.Stop()
		delete(s.timers, inboxID)
	}
	s.mu.Unlock()

	s.publish(ctx, events.TopicInboxDeleted, InboxEvent{InboxID: inboxID, Automatic: automatic})
	return nil
}

// Emails returns an inbox's messages newest first. A fresh cache entry is
// served unless force is set; fetched mail is merged with what was cached.
func (s *Service) Emails(ctx context.Context, inboxID string, force bool) ([]mail.Email, error) {
	if !force {
		if cached, ok := s.cached(inboxID); ok {
			return cached, nil
		}
	}

	fetched, err := s.api.ListEmails(ctx, inboxID, mail.ListOptions{Size: constants.DefaultInboxPageSize})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var merged []mail.Email
	if prev, ok := s.cache[inboxID]; ok {
		merged = append(merged, prev.emails...)
	}
	merged = append(merged, fetched...)
	unique, dropped := Deduplicate(merged)
	if dropped > 0 {
		log.WithFields(log.Fields{"inbox_id": inboxID, "duplicates": dropped}).Debug("dropped duplicate emails")
	}
	s.cache[inboxID] = &cacheEntry{emails: unique, storedAt: s.now()}
	if seen, ok := s.watched[inboxID]; ok {
		for _, e := range unique {
			seen[EmailKey(e)] = struct{}{}
		}
	}
	return append([]mail.Email(nil), unique...), nil
}

func (s *Service) cached(inboxID string) ([]mail.Email, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[inboxID]
	if !ok || s.now().Sub(entry.storedAt) >= s.opts.CacheTTL {
		return nil, false
	}
	return append([]mail.Email(nil), entry.emails...), true
}

// InvalidateCache drops the cached mail for one inbox, or all inboxes when id is empty.
func (s *Service) InvalidateCache(inboxID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inboxID == "" {
		s.cache = make(map[string]*cacheEntry)
		return
	}
	delete(s.cache, inboxID)
}

// SweepExpired removes stale cache entries and returns how many were dropped.
func (s *Service) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, entry := range s.cache {
		if now.Sub(entry.storedAt) > s.opts.CacheTTL {
			delete(s.cache, id)
			n++
		}
	}
	return n
}

// Email fetches one message.
func (s *Service) Email(ctx context.Context, emailID string) (*mail.Email, error) {
	return s.api.GetEmail(ctx, emailID)
}

// DeleteEmail removes a message upstream and from every cache entry.
func (s *Service) DeleteEmail(ctx context.Context, emailID string) error {
	if err := s.api.DeleteEmail(ctx, emailID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range s.cache {
		kept := entry.emails[:0]
		for _, e := range entry.emails {
			if e.ID != emailID {
				kept = append(kept, e)
			}
		}
		entry.emails = kept
	}
	return nil
}

// SendEmail sends from inboxID.
func (s *Service) SendEmail(ctx context.Context, inboxID string, opts mail.SendOptions) (json.RawMessage, error) {
	return s.api.SendEmail(ctx, inboxID, opts)
}

// WaitForEmail blocks on the service until mail arrives in inboxID.
func (s *Service) WaitForEmail(ctx context.Context, inboxID string, timeout time.Duration) (*mail.Email, error) {
	return s.api.WaitForLatestEmail(ctx, inboxID, timeout)
}

// Attachment downloads an attachment.
func (s *Service) Attachment(ctx context.Context, attachmentID string) (*mail.Attachment, error) {
	return s.api.GetAttachment(ctx, attachmentID)
}

// Connection checks the service now, records and publishes the result.
func (s *Service) Connection(ctx context.Context) mail.ConnectionStatus {
	st := s.api.CheckConnection(ctx)
	s.mu.Lock()
	s.lastConn = &st
	s.mu.Unlock()
	s.publish(ctx, events.TopicConnection, st)
	return st
}

// LastConnection returns the most recent check, if any.
func (s *Service) LastConnection() (mail.ConnectionStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastConn == nil {
		return mail.ConnectionStatus{}, false
	}
	return *s.lastConn, true
}

// Stats summarizes in-memory state.
type Stats struct {
	KnownInboxes     int  `json:"knownInboxes"`
	CachedInboxes    int  `json:"cachedInboxes"`
	CachedEmails     int  `json:"cachedEmails"`
	Watched          int  `json:"watched"`
	PendingDeletions int  `json:"pendingDeletions"`
	Connected        bool `json:"connected"`
}

// Stats reports counts of cached, watched and scheduled state.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		KnownInboxes:     len(s.inboxes),
		CachedInboxes:    len(s.cache),
		Watched:          len(s.watched),
		PendingDeletions: len(s.timers),
	}
	for _, entry := range s.cache {
		st.CachedEmails += len(entry.emails)
	}
	if s.lastConn != nil {
		st.Connected = s.lastConn.Connected
	}
	return st
}

// Close cancels scheduled deletions.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
