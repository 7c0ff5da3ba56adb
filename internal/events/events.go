package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventUpdateQueued     = "update_queued"
	EventUpdateSynced     = "update_synced"
	EventUpdateFailed     = "update_failed"
	EventUpdateStalled    = "update_stalled"
	EventVersionWaiting   = "cache_version_waiting"
	EventVersionActivated = "cache_version_activated"
	EventCacheCleared     = "cache_cleared"
)

// UpdateEventPayload describes a queue entry transition for event consumers
// (UI surfaces, hot-cache invalidation).
type UpdateEventPayload struct {
	UpdateID int64  `json:"update_id"`
	JobID    int64  `json:"job_id"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

// VersionEventPayload describes a cache version transition.
type VersionEventPayload struct {
	Version  string `json:"version"`
	Previous string `json:"previous,omitempty"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
