package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"neuromail-go/internal/constants"
	"neuromail-go/internal/events"
	"neuromail-go/internal/monitoring"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// ErrMaxConnectionsReached is returned when the feed is full.
var ErrMaxConnectionsReached = errors.New("maximum feed connections reached")

const (
	clientQueue  = 32
	writeTimeout = 10 * time.Second
	pongWait     = 90 * time.Second
	pingPeriod   = 30 * time.Second
)

// Message is one feed entry as sent to clients.
type Message struct {
	ID        uint64            `json:"id"`
	Timestamp string            `json:"timestamp"`
	Topic     string            `json:"topic"`
	Payload   any               `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Options size the broadcaster. Zero values use the package defaults.
type Options struct {
	HistoryCap      int
	MaxConnections  int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

type client struct {
	conn         *websocket.Conn
	send         chan Message
	connected    time.Time
	lastActivity atomic.Int64
}

func (c *client) touch() { c.lastActivity.Store(time.Now().UnixNano()) }

func (c *client) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, c.lastActivity.Load()))
}

// Broadcaster fans hub events out to websocket clients and keeps a bounded
// history for replay.
type Broadcaster struct {
	mu              sync.RWMutex
	clients         map[*websocket.Conn]*client
	maxConnections  int
	idleTimeout     time.Duration
	cleanupInterval time.Duration

	historyMu  sync.RWMutex
	history    []Message
	historyCap int
	seq        uint64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewBroadcaster creates a broadcaster; call Start to run idle cleanup.
func NewBroadcaster(opts Options) *Broadcaster {
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = constants.FeedHistoryCap
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = constants.FeedMaxConnections
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = constants.FeedIdleTimeout
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = constants.FeedCleanupInterval
	}
	return &Broadcaster{
		clients:         make(map[*websocket.Conn]*client),
		maxConnections:  opts.MaxConnections,
		idleTimeout:     opts.IdleTimeout,
		cleanupInterval: opts.CleanupInterval,
		history:         make([]Message, 0, opts.HistoryCap),
		historyCap:      opts.HistoryCap,
		stopCh:          make(chan struct{}),
	}
}

// Start runs the idle-connection sweeper.
func (b *Broadcaster) Start() {
	go func() {
		ticker := time.NewTicker(b.cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				b.cleanupIdle()
			case <-b.stopCh:
				return
			}
		}
	}()
}

// Stop closes every client and halts the sweeper.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		b.mu.Lock()
		defer b.mu.Unlock()
		for conn, c := range b.clients {
			close(c.send)
			_ = conn.Close()
		}
		b.clients = make(map[*websocket.Conn]*client)
		monitoring.FeedClients.Set(0)
	})
}

// Attach subscribes to topics on sub and broadcasts every event received.
// The returned function detaches.
func (b *Broadcaster) Attach(sub events.Subscriber, topics ...string) func() {
	var cancels []func()
	for _, topic := range topics {
		cancels = append(cancels, sub.Subscribe(topic, func(_ context.Context, evt events.Event) {
			b.broadcast(evt)
		}))
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (b *Broadcaster) broadcast(evt events.Event) Message {
	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	msg := Message{
		Timestamp: ts.Format(time.RFC3339),
		Topic:     evt.Topic,
		Payload:   evt.Payload,
		Metadata:  evt.Metadata,
	}
	msg = b.appendHistory(msg)

	var slow []*websocket.Conn
	b.mu.RLock()
	for conn, c := range b.clients {
		select {
		case c.send <- msg:
		default:
			slow = append(slow, conn)
		}
	}
	b.mu.RUnlock()

	for _, conn := range slow {
		log.Debug("feed client too slow, disconnecting")
		b.RemoveClient(conn)
	}
	return msg
}

// AddClient registers conn and starts its writer.
func (b *Broadcaster) AddClient(conn *websocket.Conn) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case <-b.stopCh:
		return ErrMaxConnectionsReached
	default:
	}
	if len(b.clients) >= b.maxConnections {
		log.Warnf("feed connection limit reached (%d), rejecting new connection", b.maxConnections)
		return ErrMaxConnectionsReached
	}

	c := &client{conn: conn, send: make(chan Message, clientQueue), connected: time.Now()}
	c.touch()
	b.clients[conn] = c
	monitoring.FeedClients.Set(float64(len(b.clients)))
	go b.writePump(c)
	log.Infof("feed client connected (total: %d)", len(b.clients))
	return nil
}

// RemoveClient unregisters and closes conn.
func (b *Broadcaster) RemoveClient(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.clients[conn]
	if !ok {
		return
	}
	delete(b.clients, conn)
	close(c.send)
	_ = conn.Close()
	monitoring.FeedClients.Set(float64(len(b.clients)))
	log.Infof("feed client disconnected (remaining: %d)", len(b.clients))
}

func (b *Broadcaster) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Debugf("feed write failed: %v", err)
				go b.RemoveClient(c.conn)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				go b.RemoveClient(c.conn)
				return
			}
		}
	}
}

func (b *Broadcaster) cleanupIdle() {
	now := time.Now()
	var idle []*websocket.Conn
	b.mu.RLock()
	for conn, c := range b.clients {
		if c.idleFor(now) > b.idleTimeout {
			idle = append(idle, conn)
		}
	}
	b.mu.RUnlock()

	for _, conn := range idle {
		b.RemoveClient(conn)
	}
	if len(idle) > 0 {
		log.Infof("cleaned up %d idle feed connections", len(idle))
	}
}

// ConnectionCount returns the number of connected clients.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) touch(conn *websocket.Conn) {
	b.mu.RLock()
	if c, ok := b.clients[conn]; ok {
		c.touch()
	}
	b.mu.RUnlock()
}

// appendHistory numbers msg under the history lock so IDs in history stay ascending.
func (b *Broadcaster) appendHistory(msg Message) Message {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.seq++
	msg.ID = b.seq
	b.history = append(b.history, msg)
	if len(b.history) > b.historyCap {
		excess := len(b.history) - b.historyCap
		b.history = append([]Message(nil), b.history[excess:]...)
	}
	return msg
}

// FetchSince returns messages newer than cursor, at most limit of them, the
// next cursor and whether more remain. A zero cursor returns the latest limit messages.
func (b *Broadcaster) FetchSince(cursor uint64, limit int) ([]Message, uint64, bool) {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()

	if limit <= 0 || limit > b.historyCap {
		limit = b.historyCap
	}
	total := len(b.history)
	if total == 0 {
		return []Message{}, cursor, false
	}

	start := 0
	if cursor == 0 {
		if total > limit {
			start = total - limit
		}
	} else {
		start = total
		for i, msg := range b.history {
			if msg.ID > cursor {
				start = i
				break
			}
		}
		if start >= total {
			return []Message{}, cursor, false
		}
	}

	end := start + limit
	if end > total {
		end = total
	}
	out := make([]Message, end-start)
	copy(out, b.history[start:end])
	return out, out[len(out)-1].ID, end < total
}
