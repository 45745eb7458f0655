package events

import (
	"context"
	"sync"
	"time"
)

// Topic names for mailbox gateway events.
const (
	TopicPoolReset       = "pool.reset"
	TopicCredentialSpent = "pool.credential_exhausted"
	TopicSettingsChanged = "settings.changed"
	TopicConfigUpdated   = "config.updated"
	TopicNewEmail        = "mailbox.new_email"
	TopicInboxCreated    = "mailbox.inbox_created"
	TopicInboxDeleted    = "mailbox.inbox_deleted"
	TopicConnection      = "mailbox.connection"

	// TopicAll receives every published event regardless of topic.
	TopicAll = "*"
)

// Event represents a published message on the event bus.
type Event struct {
	Topic     string            `json:"topic"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   any               `json:"payload,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Handler processes an incoming event.
type Handler func(context.Context, Event)

// Publisher exposes the ability to publish events to the hub.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any, metadata map[string]string)
}

// Subscriber exposes subscription capabilities.
type Subscriber interface {
	Subscribe(topic string, handler Handler) func()
}

// Hub is a lightweight in-process pub/sub event bus.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]Handler
	nextID int64
}

// NewHub constructs a new empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[string]map[int64]Handler),
	}
}

// Subscribe registers a handler for the given topic (or TopicAll).
// The returned function unsubscribes the handler.
func (h *Hub) Subscribe(topic string, handler Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID

	if _, ok := h.subs[topic]; !ok {
		h.subs[topic] = make(map[int64]Handler)
	}
	h.subs[topic][id] = handler

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if listeners, ok := h.subs[topic]; ok {
			delete(listeners, id)
			if len(listeners) == 0 {
				delete(h.subs, topic)
			}
		}
	}
}

// Publish dispatches an event to topic and wildcard subscribers synchronously.
func (h *Hub) Publish(ctx context.Context, topic string, payload any, metadata map[string]string) {
	if h == nil {
		return
	}
	event := Event{
		Topic:     topic,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  metadata,
	}

	for _, handler := range h.snapshotHandlers(topic) {
		handler(ctx, event)
	}
}

func (h *Hub) snapshotHandlers(topic string) []Handler {
	h.mu.RLock()
	defer h.mu.RUnlock()

	direct := h.subs[topic]
	wildcard := h.subs[TopicAll]
	if topic == TopicAll {
		wildcard = nil
	}
	out := make([]Handler, 0, len(direct)+len(wildcard))
	for _, handler := range direct {
		out = append(out, handler)
	}
	for _, handler := range wildcard {
		out = append(out, handler)
	}
	return out
}

// PublisherFunc adapts a plain function to the Publisher interface.
type PublisherFunc func(ctx context.Context, topic string, payload any, metadata map[string]string)

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, topic string, payload any, metadata map[string]string) {
	f(ctx, topic, payload, metadata)
}
