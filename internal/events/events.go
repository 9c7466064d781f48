package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// Event types published by the calendar components.
const (
	TypeClockSynced      = "clock.synced"
	TypeServeDateRolled  = "serve_date.rolled"
	TypeOrderCachePurged = "order_cache.purged"
	TypeOrderSubmitted   = "order.submitted"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the JSON payload into out.
func (e Event) Decode(out any) error {
	return json.Unmarshal(e.Payload, out)
}

// ClockSynced is published after an authoritative server instant was observed.
type ClockSynced struct {
	ServerTime time.Time     `json:"server_time"`
	Offset     time.Duration `json:"offset"`
}

// ServeDateRolled is published when the business day changes.
type ServeDateRolled struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// OrderCachePurged is published when a stale or corrupt cached order was removed.
type OrderCachePurged struct {
	ServeDate string `json:"serve_date,omitempty"`
	Reason    string `json:"reason"`
}

// OrderSubmitted is published after an order was accepted for a serve date.
type OrderSubmitted struct {
	SubmissionID string `json:"submission_id"`
	ServeDate    string `json:"serve_date"`
	Slot         string `json:"slot"`
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

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

// Publish notifies subscribers of the event type. Handler errors are
// collected; every handler runs regardless.
func (b *EventBus) Publish(event Event) []error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// PublishJSON marshals payload and publishes it under evType. Handler
// errors are joined into the result.
func (b *EventBus) PublishJSON(evType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return errors.Join(b.Publish(Event{Type: evType, Payload: data})...)
}
