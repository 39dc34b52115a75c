package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Status is the state of an idempotency record.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Record is the stored state of one key.
type Record struct {
	Key       string          `json:"key"`
	Status    Status          `json:"status"`
	Value     json.RawMessage `json:"value,omitempty"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// Completed reports whether a replayable value is available.
func (r *Record) Completed() bool {
	return r != nil && r.Status == StatusCompleted
}

// Decode unmarshals the cached value into v.
func (r *Record) Decode(v any) error {
	if len(r.Value) == 0 {
		return fmt.Errorf("idempotency: record %q has no value", r.Key)
	}
	return json.Unmarshal(r.Value, v)
}

// Backend stores records. Reserve must be atomic: of several concurrent
// callers for one key only one may get ok == true.
type Backend interface {
	// Reserve creates an in-progress record unless a live one exists, in
	// which case that record is returned.
	Reserve(ctx context.Context, key string, ttl time.Duration) (ok bool, existing *Record, err error)
	// Complete marks key completed with value.
	Complete(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
	// Get returns the live record for key, or nil.
	Get(ctx context.Context, key string) (*Record, error)
}

// DeriveKey builds a key for triggers without a caller-supplied token:
// source, subject and the time bucket containing at.
func DeriveKey(source, subject string, at time.Time, bucket time.Duration) string {
	if bucket <= 0 {
		bucket = time.Minute
	}
	return fmt.Sprintf("%s:%s:%d", source, subject, at.UnixNano()/int64(bucket))
}
