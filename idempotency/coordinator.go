package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/resilience"
)

// Config configures a Coordinator.
type Config struct {
	// TTL is how long a reservation or cached response lives.
	TTL time.Duration `mapstructure:"ttl"`
	// SweepBucket is the time bucket used to derive keys for scheduled runs.
	SweepBucket time.Duration `mapstructure:"sweep_bucket"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.SweepBucket <= 0 {
		c.SweepBucket = time.Minute
	}
}

// Reservation is the outcome of Reserve.
type Reservation struct {
	Key      string
	Acquired bool
	// Existing is the live record that blocked the reservation.
	Existing *Record
	// Degraded is set when the local fallback answered.
	Degraded bool
}

// Coordinator reserves and completes idempotency keys.
type Coordinator struct {
	shared  Backend
	local   *MemoryBackend
	breaker *resilience.Breaker
	ttl     time.Duration
	bucket  time.Duration
	log     *logger.Logger
}

// NewCoordinator creates a coordinator. shared may be nil, in which case
// only the local backend is used.
func NewCoordinator(cfg Config, shared Backend, log *logger.Logger) *Coordinator {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	log = log.WithComponent("idempotency")
	return &Coordinator{
		shared: shared,
		local:  NewMemoryBackend(nil),
		breaker: resilience.NewBreaker(resilience.BreakerConfig{
			Name: "idempotency",
			OnStateChange: func(name string, from, to resilience.State) {
				log.Warn("Idempotency backend state changed", map[string]interface{}{
					"from": from.String(), "to": to.String(),
				})
			},
		}),
		ttl:    cfg.TTL,
		bucket: cfg.SweepBucket,
		log:    log,
	}
}

// TTL returns the configured record lifetime.
func (c *Coordinator) TTL() time.Duration { return c.ttl }

// DeriveKey builds a key for a trigger without a caller token, bucketing at
// by the configured sweep bucket.
func (c *Coordinator) DeriveKey(source, subject string, at time.Time) string {
	return DeriveKey(source, subject, at, c.bucket)
}

// Reserve claims key for one logical trigger.
func (c *Coordinator) Reserve(ctx context.Context, key string) (Reservation, error) {
	if key == "" {
		return Reservation{}, fmt.Errorf("idempotency: empty key")
	}
	res := Reservation{Key: key}

	if c.useShared() {
		ok, existing, err := c.shared.Reserve(ctx, key, c.ttl)
		c.breaker.Record(err)
		if err == nil {
			res.Acquired, res.Existing = ok, existing
			return res, nil
		}
		c.log.Warn("Shared idempotency backend failed, using local fallback",
			logger.ErrorFields("reserve", err), map[string]interface{}{logger.FieldIdempotencyKey: key})
	}

	ok, existing, err := c.local.Reserve(ctx, key, c.ttl)
	res.Acquired, res.Existing, res.Degraded = ok, existing, c.shared != nil
	return res, err
}

// Complete stores value as the replayable response for key.
func (c *Coordinator) Complete(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("idempotency: encode value: %w", err)
	}
	// Local is always written so a later fallback still sees the result.
	_ = c.local.Complete(ctx, key, raw, c.ttl)

	if c.useShared() {
		err := c.shared.Complete(ctx, key, raw, c.ttl)
		c.breaker.Record(err)
		if err != nil {
			c.log.Warn("Failed to complete idempotency key on shared backend",
				logger.ErrorFields("complete", err), map[string]interface{}{logger.FieldIdempotencyKey: key})
		}
	}
	return nil
}

// Get returns the live record for key without modifying it.
func (c *Coordinator) Get(ctx context.Context, key string) (*Record, error) {
	if c.useShared() {
		rec, err := c.shared.Get(ctx, key)
		c.breaker.Record(err)
		if err == nil {
			return rec, nil
		}
	}
	return c.local.Get(ctx, key)
}

func (c *Coordinator) useShared() bool {
	return c.shared != nil && c.breaker.Allow()
}
