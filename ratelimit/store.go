package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/flowgate/redis"
)

// Store holds counters and cooldowns. Incr must be atomic.
type Store interface {
	// Incr increments key, setting ttl when the key is new.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// SetPenalty starts a cooldown of d on key.
	SetPenalty(ctx context.Context, key string, d time.Duration) error
	// Penalty returns the remaining cooldown on key, or 0.
	Penalty(ctx context.Context, key string) (time.Duration, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
	writes  int
}

type memEntry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore. now may be nil.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{entries: make(map[string]*memEntry), now: now}
}

// Incr implements Store.
func (m *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[key]
	if !ok || !now.Before(e.expiresAt) {
		e = &memEntry{expiresAt: now.Add(ttl)}
		m.entries[key] = e
	}
	e.count++
	m.maybeSweep(now)
	return e.count, nil
}

// SetPenalty implements Store.
func (m *MemoryStore) SetPenalty(_ context.Context, key string, d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.entries[key] = &memEntry{count: 1, expiresAt: now.Add(d)}
	m.maybeSweep(now)
	return nil
}

// Penalty implements Store.
func (m *MemoryStore) Penalty(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return 0, nil
	}
	remaining := e.expiresAt.Sub(m.now())
	if remaining <= 0 {
		return 0, nil
	}
	return remaining, nil
}

// maybeSweep drops expired entries every 1024 writes; caller holds mu.
func (m *MemoryStore) maybeSweep(now time.Time) {
	m.writes++
	if m.writes%1024 != 0 {
		return
	}
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
}

// RedisStore keeps counters in Redis so limits hold across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Incr implements Store.
func (r *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, _, err := r.client.IncrExpire(ctx, r.client.Key(key), ttl)
	return n, err
}

// SetPenalty implements Store.
func (r *RedisStore) SetPenalty(ctx context.Context, key string, d time.Duration) error {
	return r.client.Set(ctx, r.client.Key(key), 1, d)
}

// Penalty implements Store.
func (r *RedisStore) Penalty(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.TTL(ctx, r.client.Key(key))
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}
