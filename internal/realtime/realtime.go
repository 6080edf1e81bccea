// Package realtime delivers row change events of the data collections to
// subscribers. RedisBus fans out across service instances via Redis pub/sub;
// MemoryBus serves a single process.
package realtime

import (
	"context"
	"sync"

	"github.com/utafrali/PriceTracker/internal/domain"
)

// ChannelPrefix prefixes the pub/sub channel of each collection.
const ChannelPrefix = "realtime:"

// Handler receives change events. Handlers run on the subscription's own
// goroutine and are never invoked after Unsubscribe returns.
type Handler func(domain.ChangeEvent)

// Bus publishes change events and manages subscriptions.
type Bus interface {
	Publish(ctx context.Context, event domain.ChangeEvent) error
	Subscribe(ctx context.Context, collection string, mask domain.EventMask, handler Handler) (*Subscription, error)
}

// Channel returns the pub/sub channel name for a collection.
func Channel(collection string) string {
	return ChannelPrefix + collection
}

// Subscription is an active change stream.
type Subscription struct {
	stop func()
	once sync.Once
}

func newSubscription(stop func()) *Subscription {
	return &Subscription{stop: stop}
}

// Unsubscribe stops delivery and waits for an in-flight handler call to
// finish. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.stop)
}
