// Package events carries domain events from the write path to the
// asynchronous score update dispatcher.
package events

import (
	"context"
	"sync"

	"github.com/pacelane/stride/pkg/logger"
	"github.com/pacelane/stride/pkg/metrics"
)

// Default bus configuration constants.
const (
	defaultSubscriberBuffer = 1024
)

// ActivityRecorded fires after an activity is persisted to the source of
// truth.
type ActivityRecorded struct {
	ActivityID   string
	MemberID     string
	ActivityType string
}

// ProgressUpdated fires after a challenge participant's progress is
// persisted.
type ProgressUpdated struct {
	ChallengeID  string
	MemberID     string
	CurrentValue float64
}

// Event is the union of payloads the bus carries.
type Event struct {
	Activity *ActivityRecorded
	Progress *ProgressUpdated
}

// Unsubscribe detaches a subscriber and closes its channel.
type Unsubscribe func()

// Bus is a fan-out channel bus. Publishing never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
	buffer int

	log logger.Logger
}

// NewBus creates an event bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[int]chan Event),
		buffer: defaultSubscriberBuffer,
		log:    logger.Get().Named("event-bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a consumer. The returned channel closes when the
// subscription or the bus is closed.
func (b *Bus) Subscribe() (<-chan Event, Unsubscribe) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub <- e:
		default:
			metrics.RecordErrorByComponent("event_bus", "subscriber_full")
			b.log.Warn(ctx, "dropping event for slow subscriber")
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub)
	}
	return nil
}
