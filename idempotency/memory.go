package idempotency

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryBackend is a process-local Backend.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string]*Record
	now     func() time.Time
	writes  int
}

// sweepEvery is how many writes pass between sweeps of expired records.
const sweepEvery = 256

// NewMemoryBackend creates an empty MemoryBackend. now may be nil.
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{records: make(map[string]*Record), now: now}
}

// Reserve implements Backend.
func (m *MemoryBackend) Reserve(_ context.Context, key string, ttl time.Duration) (bool, *Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if rec, ok := m.records[key]; ok && now.Before(rec.ExpiresAt) {
		cp := *rec
		return false, &cp, nil
	}
	m.records[key] = &Record{Key: key, Status: StatusInProgress, ExpiresAt: now.Add(ttl)}
	m.maybeSweep(now)
	return true, nil, nil
}

// Complete implements Backend.
func (m *MemoryBackend) Complete(_ context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.records[key] = &Record{Key: key, Status: StatusCompleted, Value: value, ExpiresAt: now.Add(ttl)}
	m.maybeSweep(now)
	return nil
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || !m.now().Before(rec.ExpiresAt) {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Len returns the number of stored records, expired or not.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// maybeSweep drops expired records every sweepEvery writes; caller holds mu.
func (m *MemoryBackend) maybeSweep(now time.Time) {
	m.writes++
	if m.writes%sweepEvery != 0 {
		return
	}
	for k, rec := range m.records {
		if !now.Before(rec.ExpiresAt) {
			delete(m.records, k)
		}
	}
}
