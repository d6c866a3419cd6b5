// Package events provides in-process pub/sub for storage writes. The
// cache invalidator and the audit recorder subscribe; publishers fire
// after the write has committed, never before.
package events

import (
	"sync"
	"time"
)

// Event types published by the coordinator and the admin handlers.
const (
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCanceled  = "booking.canceled"
	RuleChanged      = "rule.changed"
	HolidayChanged   = "holiday.changed"
	ServiceChanged   = "service.changed"
)

// Types lists every event type, for subscribers that want all of them.
var Types = []string{
	BookingCreated, BookingConfirmed, BookingCanceled,
	RuleChanged, HolidayChanged, ServiceChanged,
}

// Event is a lightweight domain event.
type Event struct {
	Type      string
	ServiceID int64
	BookingID int64
	CreatedAt time.Time
}

// Handler reacts to an event.
type Handler func(event Event)

// Bus provides in-process pub/sub.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for several event types at once.
func (b *Bus) SubscribeAll(eventTypes []string, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

// Publish notifies subscribers of the event type. Handlers run
// synchronously; the caller decides the concurrency model.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		handler(event)
	}
}
