// Package pubsub provides the in-process event broker that wakes indexing
// workers when new jobs land, so they react immediately instead of waiting
// for the next poll tick.
package pubsub

import (
	"context"
	"sync"
)

// EventType labels the lifecycle moment an event describes.
type EventType string

const (
	Enqueued  EventType = "enqueued"
	Requeued  EventType = "requeued"
	Completed EventType = "completed"
)

// Event wraps a typed payload with its lifecycle label.
type Event[T any] struct {
	Type    EventType
	Payload T
}

// subscriberBufferSize bounds each subscriber's channel. The broker is a
// wakeup signal, not a durable queue: the database holds the jobs, so a
// dropped event only delays pickup until the poll backstop.
const subscriberBufferSize = 64

// Broker is a generic, thread-safe publish/subscribe fan-out.
type Broker[T any] struct {
	mu   sync.RWMutex
	subs map[chan Event[T]]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker[T any]() *Broker[T] {
	return &Broker[T]{
		subs: make(map[chan Event[T]]struct{}),
	}
}

// Subscribe registers a new subscriber. The returned channel receives events
// until ctx is cancelled; cancellation removes the subscription and closes
// the channel.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	ch := make(chan Event[T], subscriberBufferSize)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, ch)
		b.mu.Unlock()
		close(ch)
	}()

	return ch
}

// Publish broadcasts an event to every active subscriber without blocking.
// A subscriber whose buffer is full misses the event.
func (b *Broker[T]) Publish(eventType EventType, payload T) {
	evt := Event[T]{Type: eventType, Payload: payload}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
