package realtime

import (
	"context"
	"sync"

	"github.com/utafrali/PriceTracker/internal/domain"
)

// subscriberBuffer bounds the events queued per subscriber. Events past the
// bound are dropped; a subscriber that already has events queued loses
// nothing it needs, since each event only signals that a reload is due.
const subscriberBuffer = 64

type memorySubscriber struct {
	collection string
	mask       domain.EventMask
	events     chan domain.ChangeEvent
}

// MemoryBus implements Bus within one process.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*memorySubscriber
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]*memorySubscriber)}
}

// Publish queues the event for every matching subscriber without blocking.
func (b *MemoryBus) Publish(_ context.Context, event domain.ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if s.collection != event.Collection || !s.mask.Matches(event.Type) {
			continue
		}
		select {
		case s.events <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers handler for the collection.
func (b *MemoryBus) Subscribe(_ context.Context, collection string, mask domain.EventMask, handler Handler) (*Subscription, error) {
	sub := &memorySubscriber{
		collection: collection,
		mask:       mask,
		events:     make(chan domain.ChangeEvent, subscriberBuffer),
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for event := range sub.events {
			handler(event)
		}
	}()

	return newSubscription(func() {
		b.mu.Lock()
		delete(b.subs, id)
		close(sub.events)
		b.mu.Unlock()
		<-done
	}), nil
}

// Subscribers returns the number of active subscriptions.
func (b *MemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
