package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultClaimLease is how long an unfinished claim blocks other consumers.
// It must outlast the consumer's retry loop for one message.
const DefaultClaimLease = time.Minute

// IdempotencyStore tracks event ids across deliveries. Implementations must
// be safe for concurrent use.
type IdempotencyStore interface {
	// Claim reserves eventID for processing. It returns false when the id
	// was already processed or another consumer holds a live claim.
	Claim(ctx context.Context, eventID string) (bool, error)
	// Commit marks a claimed id as processed for the store's TTL.
	Commit(ctx context.Context, eventID string) error
	// Release drops a claim so a later delivery can process the event.
	Release(ctx context.Context, eventID string) error
}

type claim struct {
	until time.Time
	done  bool
}

// MemoryIdempotencyStore keeps claims in process memory. Expired entries are
// dropped lazily.
type MemoryIdempotencyStore struct {
	mu     sync.Mutex
	claims map[string]claim
	ttl    time.Duration
	lease  time.Duration
	now    func() time.Time
}

// NewMemoryIdempotencyStore creates a store that remembers processed ids for ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		claims: make(map[string]claim),
		ttl:    ttl,
		lease:  DefaultClaimLease,
		now:    time.Now,
	}
}

// Claim implements IdempotencyStore.
func (s *MemoryIdempotencyStore) Claim(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if c, ok := s.claims[eventID]; ok && now.Before(c.until) {
		return false, nil
	}
	s.claims[eventID] = claim{until: now.Add(s.lease)}
	return true, nil
}

// Commit implements IdempotencyStore.
func (s *MemoryIdempotencyStore) Commit(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[eventID] = claim{until: s.now().Add(s.ttl), done: true}
	return nil
}

// Release implements IdempotencyStore. Committed ids are kept.
func (s *MemoryIdempotencyStore) Release(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.claims[eventID]; ok && !c.done {
		delete(s.claims, eventID)
	}
	return nil
}

// Processed reports whether eventID is committed and unexpired.
func (s *MemoryIdempotencyStore) Processed(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[eventID]
	return ok && c.done && s.now().Before(c.until)
}

const (
	claimPending = "pending"
	claimDone    = "done"
)

// RedisIdempotencyStore shares claims between replicas and restarts. A claim
// is a SET NX key holding "pending" for the lease, overwritten with "done"
// for the TTL on commit.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	lease  time.Duration
}

// NewRedisIdempotencyStore creates a store whose keys are prefix+eventID.
func NewRedisIdempotencyStore(client *redis.Client, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl, lease: DefaultClaimLease}
}

// Claim implements IdempotencyStore.
func (s *RedisIdempotencyStore) Claim(ctx context.Context, eventID string) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+eventID, claimPending, s.lease).Result()
}

// Commit implements IdempotencyStore.
func (s *RedisIdempotencyStore) Commit(ctx context.Context, eventID string) error {
	return s.client.Set(ctx, s.prefix+eventID, claimDone, s.ttl).Err()
}

// releaseScript deletes the key only while it is still pending.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release implements IdempotencyStore.
func (s *RedisIdempotencyStore) Release(ctx context.Context, eventID string) error {
	return releaseScript.Run(ctx, s.client, []string{s.prefix + eventID}, claimPending).Err()
}

// IdempotentHandler claims each event id before calling inner. Events whose
// id is already claimed are skipped. A failed event releases its claim so the
// consumer's retry can take it again. Events without an id always run.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		claimed, err := store.Claim(ctx, event.EventID)
		if err != nil {
			// Processing twice is safer than dropping a price observation.
			logger.WarnContext(ctx, "idempotency claim failed, processing anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
			return inner(ctx, event)
		}
		if !claimed {
			ConsumerDuplicates.WithLabelValues(event.EventType).Inc()
			logger.DebugContext(ctx, "skipping claimed event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
				slog.String("aggregate_id", event.AggregateID),
			)
			return nil
		}

		if err := inner(ctx, event); err != nil {
			if relErr := store.Release(ctx, event.EventID); relErr != nil {
				logger.WarnContext(ctx, "releasing idempotency claim failed",
					slog.String("event_id", event.EventID),
					slog.String("error", relErr.Error()),
				)
			}
			return err
		}

		if err := store.Commit(ctx, event.EventID); err != nil {
			logger.WarnContext(ctx, "committing idempotency claim failed",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
