package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/flowgate/logger"
)

// Nil is returned by reads of missing keys.
var Nil = goredis.Nil

// Client wraps a go-redis client with flowgate logging and key namespacing.
type Client struct {
	rdb    goredis.UniversalClient
	log    *logger.Logger
	prefix string
	mu     sync.Mutex
	closed bool
}

// New creates a client from cfg.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is disabled")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	log.Info("Redis client created", map[string]interface{}{
		"addr":      cfg.Addr,
		"db":        cfg.DB,
		"pool_size": cfg.PoolSize,
	})
	return &Client{rdb: rdb, log: log, prefix: cfg.KeyPrefix}, nil
}

// Key joins parts under the configured prefix.
func (c *Client) Key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return c.prefix + ":" + strings.Join(parts, ":")
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Get returns the value of key, or Nil when absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.rdb.Get(ctx, key).Result()
}

// Set stores a value with expiration; 0 means no expiration.
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return c.rdb.Set(ctx, key, value, expiration).Err()
}

// SetNX stores a value only if key does not exist.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, key, value, expiration).Result()
}

// Del deletes keys.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// IncrExpire increments key and sets its TTL when the key has none yet.
// It returns the new value and the remaining TTL.
func (c *Client) IncrExpire(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	var incr *goredis.IntCmd
	var pttl *goredis.DurationCmd
	_, err := c.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		pttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	remaining := pttl.Val()
	if remaining < 0 {
		if err := c.rdb.PExpire(ctx, key, ttl).Err(); err != nil {
			return 0, 0, err
		}
		remaining = ttl
	}
	return incr.Val(), remaining, nil
}

// TTL returns the remaining time to live of key; negative when absent.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	return c.rdb.PTTL(ctx, key).Result()
}

// Run executes a Lua script, loading it on first use.
func (c *Client) Run(ctx context.Context, script *goredis.Script, keys []string, args ...interface{}) (interface{}, error) {
	return script.Run(ctx, c.rdb, keys, args...).Result()
}

// Close closes the connection. Safe to call multiple times.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.log.Info("Closing Redis connection")
	return c.rdb.Close()
}

// IsNil reports whether err signals a missing key.
func IsNil(err error) bool {
	return errors.Is(err, goredis.Nil)
}

// Unwrap returns the underlying go-redis client.
func (c *Client) Unwrap() goredis.UniversalClient {
	return c.rdb
}
