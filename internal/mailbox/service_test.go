package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"neuromail-go/internal/events"
	"neuromail-go/internal/mail"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMail struct {
	mu       sync.Mutex
	lifetime time.Duration
	emails   map[string][]mail.Email
	latest   map[string]*mail.Email
	deleted  []string
	lists    int
	conn     mail.ConnectionStatus
	failList error
}

func newFakeMail() *fakeMail {
	return &fakeMail{
		lifetime: time.Hour,
		emails:   make(map[string][]mail.Email),
		latest:   make(map[string]*mail.Email),
	}
}

func (f *fakeMail) CreateInbox(_ context.Context, opts mail.CreateInboxOptions) (*mail.Inbox, error) {
	name := opts.Name
	if name == "" {
		name = "auto"
	}
	return &mail.Inbox{ID: "in-" + name, EmailAddress: name + "@example.com"}, nil
}

func (f *fakeMail) ListInboxes(context.Context, mail.ListOptions) ([]mail.Inbox, error) {
	return []mail.Inbox{{ID: "in-a"}, {ID: "in-b"}}, nil
}

func (f *fakeMail) DeleteInbox(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMail) ListEmails(_ context.Context, id string, _ mail.ListOptions) ([]mail.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.failList != nil {
		return nil, f.failList
	}
	return append([]mail.Email(nil), f.emails[id]...), nil
}

func (f *fakeMail) GetEmail(_ context.Context, id string) (*mail.Email, error) {
	return &mail.Email{ID: id}, nil
}

func (f *fakeMail) DeleteEmail(context.Context, string) error { return nil }

func (f *fakeMail) SendEmail(context.Context, string, mail.SendOptions) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (f *fakeMail) WaitForLatestEmail(_ context.Context, id string, _ time.Duration) (*mail.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.latest[id]
	if !ok {
		return nil, fmt.Errorf("request timed out")
	}
	cp := *e
	return &cp, nil
}

func (f *fakeMail) GetAttachment(_ context.Context, id string) (*mail.Attachment, error) {
	return &mail.Attachment{ID: id}, nil
}

func (f *fakeMail) CheckConnection(context.Context) mail.ConnectionStatus { return f.conn }

func (f *fakeMail) InboxLifetime() time.Duration { return f.lifetime }

func (f *fakeMail) setLatest(inboxID string, e mail.Email) {
	f.mu.Lock()
	f.latest[inboxID] = &e
	f.mu.Unlock()
}

func (f *fakeMail) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists
}

func at(min int) mail.Timestamp {
	return mail.Timestamp{Time: time.Date(2026, 5, 1, 12, min, 0, 0, time.UTC)}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time      { return c.t }
func (c *clock) add(d time.Duration) { c.t = c.t.Add(d) }

func newService(t *testing.T, f *fakeMail, opts Options) (*Service, *clock) {
	t.Helper()
	s := New(f, opts)
	c := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	s.now = c.now
	t.Cleanup(s.Close)
	return s, c
}

func TestDeduplicate(t *testing.T) {
	in := []mail.Email{
		{ID: "1", CreatedAt: at(1)},
		{ID: "2", CreatedAt: at(3)},
		{ID: "1", CreatedAt: at(1), Subject: "again"},
		{From: "a", Subject: "s", Body: "b", CreatedAt: at(2)},
		{From: "a", Subject: "s", Body: "b", CreatedAt: at(2)},
		{From: "a", Subject: "s", Body: "other", CreatedAt: at(0)},
	}
	out, dropped := Deduplicate(in)
	assert.Equal(t, 2, dropped)
	require.Len(t, out, 4)
	assert.Equal(t, "2", out[0].ID)
	assert.Equal(t, "b", out[1].Body)
	assert.Equal(t, "1", out[2].ID)
	assert.Empty(t, out[2].Subject)
	assert.Equal(t, "other", out[3].Body)
}

func TestEmailKey(t *testing.T) {
	assert.Equal(t, "id:abc", EmailKey(mail.Email{ID: "abc", Subject: "x"}))

	a := EmailKey(mail.Email{From: "a", Subject: "s"})
	b := EmailKey(mail.Email{From: "a", Subject: "t"})
	assert.Contains(t, a, "content:")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, EmailKey(mail.Email{From: "a", Subject: "s"}))
}

func TestEmailsServedFromCacheUntilExpired(t *testing.T) {
	f := newFakeMail()
	f.emails["in-1"] = []mail.Email{{ID: "e1", CreatedAt: at(1)}}
	s, c := newService(t, f, Options{CacheTTL: time.Minute})
	ctx := context.Background()

	got, err := s.Emails(ctx, "in-1", false)
	require.NoError(t, err)
	require.Len(t, got, 1)

	f.emails["in-1"] = append(f.emails["in-1"], mail.Email{ID: "e2", CreatedAt: at(2)})
	got, err = s.Emails(ctx, "in-1", false)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, f.listCalls())

	c.add(2 * time.Minute)
	got, err = s.Emails(ctx, "in-1", false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].ID)
	assert.Equal(t, 2, f.listCalls())
}

func TestEmailsForceRefreshMerges(t *testing.T) {
	f := newFakeMail()
	f.emails["in-1"] = []mail.Email{{ID: "e1", CreatedAt: at(1)}}
	s, _ := newService(t, f, Options{})
	ctx := context.Background()

	_, err := s.Emails(ctx, "in-1", false)
	require.NoError(t, err)

	f.emails["in-1"] = []mail.Email{{ID: "e1", CreatedAt: at(1)}, {ID: "e3", CreatedAt: at(5)}}
	got, err := s.Emails(ctx, "in-1", true)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "e3", got[0].ID)
	assert.Equal(t, 2, s.Stats().CachedEmails)
}

func TestEmailsError(t *testing.T) {
	f := newFakeMail()
	f.failList = fmt.Errorf("boom")
	s, _ := newService(t, f, Options{})
	_, err := s.Emails(context.Background(), "in-1", false)
	require.Error(t, err)
	assert.Zero(t, s.Stats().CachedInboxes)
}

func TestSweepExpired(t *testing.T) {
	f := newFakeMail()
	s, c := newService(t, f, Options{CacheTTL: time.Minute})
	ctx := context.Background()

	_, err := s.Emails(ctx, "in-1", false)
	require.NoError(t, err)
	c.add(30 * time.Second)
	_, err = s.Emails(ctx, "in-2", false)
	require.NoError(t, err)

	c.add(45 * time.Second)
	assert.Equal(t, 1, s.SweepExpired())
	assert.Equal(t, 1, s.Stats().CachedInboxes)

	s.InvalidateCache("")
	assert.Zero(t, s.Stats().CachedInboxes)
}

func TestDeleteEmailDropsFromCache(t *testing.T) {
	f := newFakeMail()
	f.emails["in-1"] = []mail.Email{{ID: "e1"}, {ID: "e2"}}
	s, _ := newService(t, f, Options{})
	ctx := context.Background()

	_, err := s.Emails(ctx, "in-1", false)
	require.NoError(t, err)
	require.NoError(t, s.DeleteEmail(ctx, "e1"))

	got, err := s.Emails(ctx, "in-1", false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e2", got[0].ID)
}

func TestPollOncePublishesOnlyNewMail(t *testing.T) {
	f := newFakeMail()
	f.emails["in-1"] = []mail.Email{{ID: "old", CreatedAt: at(1)}}
	hub := events.NewHub()
	var got []NewEmailEvent
	hub.Subscribe(events.TopicNewEmail, func(_ context.Context, evt events.Event) {
		got = append(got, evt.Payload.(NewEmailEvent))
	})
	s, _ := newService(t, f, Options{Publisher: hub})
	ctx := context.Background()

	require.NoError(t, s.Watch(ctx, "in-1"))
	assert.Equal(t, []string{"in-1"}, s.Watched())

	f.setLatest("in-1", mail.Email{ID: "old", CreatedAt: at(1)})
	assert.Zero(t, s.PollOnce(ctx))

	f.setLatest("in-1", mail.Email{ID: "new", CreatedAt: at(9)})
	assert.Equal(t, 1, s.PollOnce(ctx))
	assert.Zero(t, s.PollOnce(ctx))

	require.Len(t, got, 1)
	assert.Equal(t, "in-1", got[0].InboxID)
	assert.Equal(t, "new", got[0].Email.ID)

	cached, err := s.Emails(ctx, "in-1", false)
	require.NoError(t, err)
	require.Len(t, cached, 2)
	assert.Equal(t, "new", cached[0].ID)

	s.Unwatch("in-1")
	f.setLatest("in-1", mail.Email{ID: "newer"})
	assert.Zero(t, s.PollOnce(ctx))
}

func TestPollOnceIgnoresWaitErrors(t *testing.T) {
	f := newFakeMail()
	s, _ := newService(t, f, Options{})
	require.NoError(t, s.Watch(context.Background(), "quiet"))
	assert.Zero(t, s.PollOnce(context.Background()))
}

func TestCreateInboxSchedulesDeletion(t *testing.T) {
	f := newFakeMail()
	f.lifetime = 20 * time.Millisecond
	hub := events.NewHub()
	deleted := make(chan InboxEvent, 1)
	hub.Subscribe(events.TopicInboxDeleted, func(_ context.Context, evt events.Event) {
		deleted <- evt.Payload.(InboxEvent)
	})
	s := New(f, Options{AutoDelete: true, Publisher: hub})
	defer s.Close()

	inbox, err := s.CreateInbox(context.Background(), mail.CreateInboxOptions{Name: "tmp"})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Stats().PendingDeletions)

	select {
	case evt := <-deleted:
		assert.Equal(t, inbox.ID, evt.InboxID)
		assert.True(t, evt.Automatic)
	case <-time.After(2 * time.Second):
		t.Fatal("inbox was not auto-deleted")
	}
	assert.Eventually(t, func() bool { return s.Stats().PendingDeletions == 0 }, time.Second, 10*time.Millisecond)
}

func TestCreateInboxWithoutAutoDelete(t *testing.T) {
	f := newFakeMail()
	s, _ := newService(t, f, Options{})
	_, err := s.CreateInbox(context.Background(), mail.CreateInboxOptions{})
	require.NoError(t, err)
	assert.Zero(t, s.Stats().PendingDeletions)
	assert.Equal(t, 1, s.Stats().KnownInboxes)
}

func TestDeleteInboxForgetsState(t *testing.T) {
	f := newFakeMail()
	f.emails["in-x"] = []mail.Email{{ID: "e1"}}
	s, _ := newService(t, f, Options{AutoDelete: true})
	ctx := context.Background()

	_, err := s.CreateInbox(ctx, mail.CreateInboxOptions{Name: "x"})
	require.NoError(t, err)
	require.NoError(t, s.Watch(ctx, "in-x"))

	require.NoError(t, s.DeleteInbox(ctx, "in-x"))
	st := s.Stats()
	assert.Zero(t, st.KnownInboxes)
	assert.Zero(t, st.CachedInboxes)
	assert.Zero(t, st.Watched)
	assert.Zero(t, st.PendingDeletions)
	assert.Equal(t, []string{"in-x"}, f.deleted)
}

func TestConnectionPublishesAndRecords(t *testing.T) {
	f := newFakeMail()
	f.conn = mail.ConnectionStatus{Connected: true}
	hub := events.NewHub()
	var seen int
	hub.Subscribe(events.TopicConnection, func(context.Context, events.Event) { seen++ })
	s, _ := newService(t, f, Options{Publisher: hub})

	_, ok := s.LastConnection()
	assert.False(t, ok)

	st := s.Connection(context.Background())
	assert.True(t, st.Connected)
	last, ok := s.LastConnection()
	require.True(t, ok)
	assert.True(t, last.Connected)
	assert.True(t, s.Stats().Connected)
	assert.Equal(t, 1, seen)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFakeMail()
	f.conn = mail.ConnectionStatus{Connected: true}
	s, _ := newService(t, f, Options{
		PollInterval:            5 * time.Millisecond,
		ConnectionCheckInterval: 5 * time.Millisecond,
		SweepInterval:           5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, ok := s.LastConnection()
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
