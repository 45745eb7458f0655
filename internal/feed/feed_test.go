package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"neuromail-go/internal/events"
	"neuromail-go/internal/mail"
	"neuromail-go/internal/mailbox"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/feed" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newFeedServer(t *testing.T, opts Options) (*Broadcaster, *httptest.Server) {
	t.Helper()
	b := NewBroadcaster(opts)
	b.Start()
	t.Cleanup(b.Stop)
	mux := http.NewServeMux()
	mux.Handle("/feed", b.Handler(nil))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func TestBroadcastsHubEvents(t *testing.T) {
	b, srv := newFeedServer(t, Options{})
	hub := events.NewHub()
	detach := b.Attach(hub, events.TopicNewEmail, events.TopicPoolReset)
	defer detach()

	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return b.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(context.Background(), events.TopicSettingsChanged, "ignored", nil)
	hub.Publish(context.Background(), events.TopicPoolReset, map[string]bool{"automatic": true}, nil)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, events.TopicPoolReset, msg.Topic)
	assert.Equal(t, uint64(1), msg.ID)
	assert.Equal(t, map[string]any{"automatic": true}, msg.Payload)
}

func TestReplaySince(t *testing.T) {
	b, srv := newFeedServer(t, Options{})
	for i := 0; i < 3; i++ {
		b.broadcast(events.Event{Topic: events.TopicConnection, Payload: i})
	}

	conn := dial(t, srv, "?since=1")
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first, second Message
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, uint64(2), first.ID)
	assert.Equal(t, uint64(3), second.ID)
}

func TestMaxConnections(t *testing.T) {
	b, srv := newFeedServer(t, Options{MaxConnections: 1})
	dial(t, srv, "")
	require.Eventually(t, func() bool { return b.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	second := dial(t, srv, "")
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply map[string]string
	require.NoError(t, second.ReadJSON(&reply))
	assert.Equal(t, "Maximum connections reached", reply["error"])
	assert.Equal(t, 1, b.ConnectionCount())
}

func TestClientDisconnectRemoves(t *testing.T) {
	b, srv := newFeedServer(t, Options{})
	conn := dial(t, srv, "")
	require.Eventually(t, func() bool { return b.ConnectionCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return b.ConnectionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFetchSince(t *testing.T) {
	b := NewBroadcaster(Options{HistoryCap: 3})
	for i := 0; i < 5; i++ {
		b.broadcast(events.Event{Topic: "t", Payload: i})
	}

	msgs, next, more := b.FetchSince(0, 0)
	require.Len(t, msgs, 3)
	assert.Equal(t, uint64(3), msgs[0].ID)
	assert.Equal(t, uint64(5), next)
	assert.False(t, more)

	msgs, next, more = b.FetchSince(3, 1)
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(4), next)
	assert.True(t, more)

	msgs, next, _ = b.FetchSince(5, 10)
	assert.Empty(t, msgs)
	assert.Equal(t, uint64(5), next)
}

func TestHistoryIDsAscendUnderConcurrentBroadcast(t *testing.T) {
	b := NewBroadcaster(Options{HistoryCap: 400})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.broadcast(events.Event{Topic: "t", Payload: i})
			}
		}()
	}
	wg.Wait()

	msgs, next, more := b.FetchSince(0, 400)
	require.Len(t, msgs, 400)
	assert.False(t, more)
	assert.Equal(t, uint64(400), next)
	for i, msg := range msgs {
		assert.Equal(t, uint64(i+1), msg.ID)
	}

	msgs, _, _ = b.FetchSince(200, 400)
	require.Len(t, msgs, 200)
	assert.Equal(t, uint64(201), msgs[0].ID)
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"https://app.example.com", "tools.local:3000"})
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "http://gateway:8080/api/feed", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	assert.True(t, check(req("")))
	assert.True(t, check(req("http://gateway:8080")))
	assert.True(t, check(req("https://app.example.com")))
	assert.True(t, check(req("http://tools.local:3000")))
	assert.False(t, check(req("https://evil.example.com")))
}

func TestDesktopNotifier(t *testing.T) {
	hub := events.NewHub()
	var titles, bodies []string
	n := NewDesktopNotifier(func(title, message string) error {
		titles = append(titles, title)
		bodies = append(bodies, message)
		return nil
	})
	detach := n.Attach(hub)

	hub.Publish(context.Background(), events.TopicNewEmail, mailbox.NewEmailEvent{
		InboxID: "in-1",
		Email:   mail.Email{ID: "e1", From: "a@example.com", Subject: "Welcome"},
	}, nil)
	hub.Publish(context.Background(), events.TopicNewEmail, "not an email", nil)
	hub.Publish(context.Background(), events.TopicNewEmail, mailbox.NewEmailEvent{InboxID: "in-1"}, nil)

	assert.Equal(t, []string{"New email: Welcome", "New email: (no subject)"}, titles)
	assert.Equal(t, []string{"From a@example.com", "From unknown sender"}, bodies)

	detach()
	hub.Publish(context.Background(), events.TopicNewEmail, mailbox.NewEmailEvent{}, nil)
	assert.Len(t, titles, 2)
}
