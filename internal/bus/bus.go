// Package bus is the typed in-process event bus shared by the core services.
//
// Publications are enqueued onto a single dispatcher goroutine. That gives two
// guarantees the services rely on: events are delivered in publish order, and
// a handler never runs on the publisher's goroutine, so emitting an event from
// inside a store write can never re-enter the active write transaction.
package bus

import (
	"log/slog"
	"sync"

	"github.com/vietddude/walletd/internal/core/domain"
)

// Handler consumes a single event. Handlers run on the dispatcher goroutine
// and should hand off long work.
type Handler func(evt domain.Event)

// Bus routes events to subscribers by type.
type Bus struct {
	mu       sync.RWMutex
	handlers map[domain.EventType][]Handler

	queue  chan domain.Event
	done   chan struct{}
	closed bool
	log    *slog.Logger
}

const defaultQueueSize = 256

// New creates a bus and starts its dispatcher.
func New() *Bus {
	b := &Bus{
		handlers: make(map[domain.EventType][]Handler),
		queue:    make(chan domain.Event, defaultQueueSize),
		done:     make(chan struct{}),
		log:      slog.Default().With("component", "bus"),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(t domain.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish enqueues an event for delivery on the dispatcher goroutine. It never
// blocks the caller for handler execution; if the queue is full the event is
// dropped with a warning rather than deadlocking a store transaction.
func (b *Bus) Publish(evt domain.Event) {
	// The lock is held across the send so Close cannot close the queue
	// between the check and the enqueue.
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	select {
	case b.queue <- evt:
	default:
		b.log.Warn("event queue full, dropping event", "type", evt.Type)
	}
}

// PublishWait delivers an event synchronously on the caller's goroutine.
// Test helper: bypasses the queue, so never call it from inside a store write.
func (b *Bus) PublishWait(evt domain.Event) {
	b.deliver(evt)
}

// Close stops the dispatcher after draining queued events.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.queue)
	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)
	for evt := range b.queue {
		b.deliver(evt)
	}
}

func (b *Bus) deliver(evt domain.Event) {
	b.mu.RLock()
	hs := make([]Handler, len(b.handlers[evt.Type]))
	copy(hs, b.handlers[evt.Type])
	b.mu.RUnlock()

	for _, h := range hs {
		h(evt)
	}
}
