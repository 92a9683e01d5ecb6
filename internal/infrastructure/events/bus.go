// Package events provides a typed publish-subscribe event bus using Go
// channels. Every event carries a concrete payload struct; consumers either
// receive on a subscription channel or register a handler callback.
package events

import (
	"sync"

	"github.com/cortexos/cortex-go/internal/shared"
)

// Handler is a function that handles events. Handlers run synchronously in
// the emitter's goroutine, in registration order.
type Handler func(event shared.Event)

// Bus is a multi-consumer broadcast bus. Channel sends are non-blocking: a
// subscriber that stops draining loses events rather than stalling emitters.
// The core's correctness never depends on a subscriber existing.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[shared.EventType][]chan shared.Event
	handlers    map[shared.EventType][]Handler
	bufferSize  int
	closed      bool
}

// Option configures the Bus.
type Option func(*Bus)

// WithBufferSize sets the subscription channel buffer size.
func WithBufferSize(size int) Option {
	return func(b *Bus) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// New creates a new Bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscribers: make(map[shared.EventType][]chan shared.Event),
		handlers:    make(map[shared.EventType][]Handler),
		bufferSize:  100,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Subscribe creates a channel receiving events of the given type. Subscribing
// to shared.EventAny receives every event.
func (b *Bus) Subscribe(eventType shared.EventType) <-chan shared.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan shared.Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a channel receiving all events.
func (b *Bus) SubscribeAll() <-chan shared.Event {
	return b.Subscribe(shared.EventAny)
}

// On registers a handler for events of the given type. shared.EventAny
// matches every event.
func (b *Bus) On(eventType shared.EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit publishes a payload as an event to all subscribers and handlers. A nil
// bus drops events, so emitters never need a nil check.
func (b *Bus) Emit(payload shared.EventPayload) {
	if b == nil || payload == nil {
		return
	}

	event := shared.Event{
		Type:      payload.EventType(),
		Timestamp: shared.Now(),
		Payload:   payload,
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			// Subscriber full, drop.
		}
	}
	for _, ch := range b.subscribers[shared.EventAny] {
		select {
		case ch <- event:
		default:
		}
	}

	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.handlers[shared.EventAny]))
	handlers = append(handlers, b.handlers[event.Type]...)
	handlers = append(handlers, b.handlers[shared.EventAny]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// Close closes all subscriber channels and stops the bus. Emit after Close is
// a no-op.
func (b *Bus) Close() {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subscribers = make(map[shared.EventType][]chan shared.Event)
	b.handlers = make(map[shared.EventType][]Handler)
}
