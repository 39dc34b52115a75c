package trigger

import (
	"fmt"
	"time"

	"github.com/kbukum/flowgate/resilience"
)

// Config configures the trigger service and its scheduler.
type Config struct {
	// SweepEnabled starts the in-process cron sweep with the service.
	SweepEnabled bool `mapstructure:"sweep_enabled"`
	// SweepInterval is how often the scheduler looks for due workflows.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// SweepBatch caps the workflows triggered by one sweep. 0 means no cap.
	SweepBatch int `mapstructure:"sweep_batch" validate:"gte=0"`
	// DefaultRetry is attached to every phase of compiled plans.
	DefaultRetry *resilience.RetryPolicy `mapstructure:"default_retry"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.SweepBatch == 0 {
		c.SweepBatch = 100
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.SweepInterval < time.Second {
		return fmt.Errorf("trigger: sweep_interval must be at least 1s, got %s", c.SweepInterval)
	}
	if c.SweepBatch < 0 {
		return fmt.Errorf("trigger: sweep_batch must be >= 0, got %d", c.SweepBatch)
	}
	return nil
}
