package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/PriceTracker/internal/domain"
)

// RedisBus implements Bus on Redis pub/sub.
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus creates a bus on the given client.
func NewRedisBus(client *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{client: client, logger: logger}
}

// Publish sends the event on its collection's channel.
func (b *RedisBus) Publish(ctx context.Context, event domain.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := b.client.Publish(ctx, Channel(event.Collection), payload).Err(); err != nil {
		return fmt.Errorf("publish change event on %s: %w", Channel(event.Collection), err)
	}
	return nil
}

// Subscribe listens on the collection's channel until Unsubscribe is called.
// The subscription is confirmed before Subscribe returns.
func (b *RedisBus) Subscribe(ctx context.Context, collection string, mask domain.EventMask, handler Handler) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel(collection))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", Channel(collection), err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range ps.Channel() {
			var event domain.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed change event",
					slog.String("channel", msg.Channel),
					slog.String("error", err.Error()),
				)
				continue
			}
			if mask.Matches(event.Type) {
				handler(event)
			}
		}
	}()

	return newSubscription(func() {
		if err := ps.Close(); err != nil {
			b.logger.Warn("close realtime subscription", slog.String("error", err.Error()))
		}
		<-done
	}), nil
}
