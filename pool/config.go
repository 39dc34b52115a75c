package pool

import "fmt"

// Strategy decides what happens when a class has no free slot.
type Strategy string

const (
	// StrategyBlock makes callers wait for a slot.
	StrategyBlock Strategy = "block"
	// StrategyFail rejects callers once the wait queue is full.
	StrategyFail Strategy = "fail"
)

// ClassConfig bounds one resource class.
type ClassConfig struct {
	// MaxConcurrency is the number of slots.
	MaxConcurrency int `mapstructure:"max_concurrency" json:"maxConcurrency"`
	// QueueSize bounds waiting callers under StrategyFail.
	QueueSize int      `mapstructure:"queue_size" json:"queueSize"`
	Strategy  Strategy `mapstructure:"strategy" json:"strategy"`
}

// Config holds both resource classes.
type Config struct {
	Browser ClassConfig `mapstructure:"browser"`
	Page    ClassConfig `mapstructure:"page"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	c.Browser.applyDefaults(2, 4)
	c.Page.applyDefaults(4, 8)
}

func (c *ClassConfig) applyDefaults(max, queue int) {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = max
		if c.QueueSize == 0 {
			c.QueueSize = queue
		}
	}
	if c.Strategy == "" {
		c.Strategy = StrategyBlock
	}
}

// Validate checks both classes.
func (c *Config) Validate() error {
	if err := c.Browser.validate(); err != nil {
		return fmt.Errorf("pool.browser: %w", err)
	}
	if err := c.Page.validate(); err != nil {
		return fmt.Errorf("pool.page: %w", err)
	}
	return nil
}

func (c *ClassConfig) validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be > 0")
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("queue_size must be >= 0")
	}
	if c.Strategy != StrategyBlock && c.Strategy != StrategyFail {
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
	return nil
}
