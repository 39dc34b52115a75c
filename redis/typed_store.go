package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TypedStore stores JSON-encoded values of one type under a key namespace.
type TypedStore[C any] struct {
	client    *Client
	namespace string
}

// NewTypedStore creates a TypedStore whose keys live under namespace.
func NewTypedStore[C any](client *Client, namespace string) *TypedStore[C] {
	return &TypedStore[C]{client: client, namespace: namespace}
}

func (s *TypedStore[C]) fullKey(key string) string {
	return s.client.Key(s.namespace, key)
}

// Load decodes the value at key. It returns (nil, nil) when absent.
func (s *TypedStore[C]) Load(ctx context.Context, key string) (*C, error) {
	raw, err := s.client.Get(ctx, s.fullKey(key))
	if err != nil {
		if IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("typed store load %q: %w", key, err)
	}
	var val C
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return nil, fmt.Errorf("typed store unmarshal %q: %w", key, err)
	}
	return &val, nil
}

// Save encodes and stores val with ttl; 0 means no expiration.
func (s *TypedStore[C]) Save(ctx context.Context, key string, val *C, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("typed store marshal %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.fullKey(key), data, ttl); err != nil {
		return fmt.Errorf("typed store save %q: %w", key, err)
	}
	return nil
}

// SaveNX stores val only when key is absent and reports whether it did.
func (s *TypedStore[C]) SaveNX(ctx context.Context, key string, val *C, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(val)
	if err != nil {
		return false, fmt.Errorf("typed store marshal %q: %w", key, err)
	}
	ok, err := s.client.SetNX(ctx, s.fullKey(key), data, ttl)
	if err != nil {
		return false, fmt.Errorf("typed store save-nx %q: %w", key, err)
	}
	return ok, nil
}

// Delete removes key.
func (s *TypedStore[C]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.fullKey(key)); err != nil {
		return fmt.Errorf("typed store delete %q: %w", key, err)
	}
	return nil
}
