package bus

import (
	"sync"
	"sync/atomic"
	"time"
)

type subscriber struct {
	ch      chan<- Event
	sent    atomic.Uint64
	dropped atomic.Uint64
}

type bus struct {
	mu             sync.RWMutex
	subscribers    map[string]*subscriber
	totalPublished atomic.Uint64
	closed         bool
}

// New creates a new event bus
func New() Bus {
	return &bus{
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a channel. Events are dropped for this subscriber
// whenever its channel is full.
func (b *bus) Subscribe(id string, ch chan<- Event) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber{ch: ch}
	return nil
}

// Unsubscribe removes a subscriber
func (b *bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}

	delete(b.subscribers, id)
	return nil
}

// Publish distributes event to all subscribers without blocking.
// Publishing on a closed bus is a no-op.
func (b *bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	b.totalPublished.Add(1)

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- event:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// Stats returns a snapshot of global and per-subscriber counters.
func (b *bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := Stats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}

	for id, sub := range b.subscribers {
		s := SubscriberStats{Sent: sub.sent.Load(), Dropped: sub.dropped.Load()}
		result.TotalSent += s.Sent
		result.TotalDropped += s.Dropped
		result.Subscribers[id] = s
	}

	return result
}

// Close shuts down the bus. Subscriber channels are not closed; their
// owners manage that. Idempotent.
func (b *bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	b.subscribers = nil
}
