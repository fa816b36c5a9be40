package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/oshokin/appshell/internal/logger"
)

// DefaultBufferSize is the per-subscriber buffer used when none is given.
const DefaultBufferSize = 64

// Broker fans events out to subscribers.
type Broker struct {
	// bufferSize is the capacity of every subscriber channel.
	bufferSize int
	// mu guards subscribers.
	mu sync.RWMutex
	// subscribers are the live subscriptions keyed by ID.
	subscribers map[string]*Subscription
}

// Subscription receives events published after it was created.
type Subscription struct {
	id     string
	events chan Event
	done   chan struct{}
	once   sync.Once
	broker *Broker
}

// NewBroker creates a broker whose subscribers buffer up to bufferSize events.
func NewBroker(bufferSize int) *Broker {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Broker{
		bufferSize:  bufferSize,
		subscribers: make(map[string]*Subscription),
	}
}

// Subscribe registers a new subscription. Close it when done.
func (b *Broker) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.NewString(),
		events: make(chan Event, b.bufferSize),
		done:   make(chan struct{}),
		broker: b,
	}

	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	return sub
}

// Len returns the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subscribers)
}

// Emit delivers the event to every live subscriber. It blocks while a
// subscriber's buffer is full, until that subscriber accepts the event,
// unsubscribes, or ctx ends.
func (b *Broker) Emit(ctx context.Context, event Event) error {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subscribers))

	for _, sub := range b.subscribers {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case sub.events <- event:
		case <-sub.done:
			logger.DebugKV(ctx, "Subscriber left before receiving event",
				"subscriber", sub.id, "event", event.Name)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Events returns the channel events are delivered on. It is never closed; use Done.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close unregisters the subscription and releases a publisher blocked on it.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subscribers, s.id)
		s.broker.mu.Unlock()

		close(s.done)
	})
}
