package idempotency

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kbukum/flowgate/redis"
)

// RedisBackend stores records in Redis with SET NX PX.
type RedisBackend struct {
	store *redis.TypedStore[Record]
	now   func() time.Time
}

// NewRedisBackend creates a RedisBackend under the "idem" namespace.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{store: redis.NewTypedStore[Record](client, "idem"), now: time.Now}
}

// Reserve implements Backend.
func (r *RedisBackend) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, *Record, error) {
	rec := &Record{Key: key, Status: StatusInProgress, ExpiresAt: r.now().Add(ttl)}
	// The loser re-reads; if the winner's record expired in between it
	// competes again.
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.store.SaveNX(ctx, key, rec, ttl)
		if err != nil {
			return false, nil, err
		}
		if ok {
			return true, nil, nil
		}
		existing, err := r.store.Load(ctx, key)
		if err != nil {
			return false, nil, err
		}
		if existing != nil {
			return false, existing, nil
		}
	}
	return false, &Record{Key: key, Status: StatusInProgress}, nil
}

// Complete implements Backend.
func (r *RedisBackend) Complete(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	return r.store.Save(ctx, key, &Record{
		Key:       key,
		Status:    StatusCompleted,
		Value:     value,
		ExpiresAt: r.now().Add(ttl),
	}, ttl)
}

// Get implements Backend.
func (r *RedisBackend) Get(ctx context.Context, key string) (*Record, error) {
	return r.store.Load(ctx, key)
}
