// Package testutil provides a miniredis-backed Client for tests.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/redis"
)

// NewClient starts miniredis and returns a connected client. Both are closed
// when the test ends.
func NewClient(t testing.TB) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mini.Close)

	client, err := redis.New(redis.Config{Enabled: true, Addr: mini.Addr(), KeyPrefix: "test"}, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client, mini
}
