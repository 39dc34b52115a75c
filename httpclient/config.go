package httpclient

import (
	"fmt"
	"time"

	"github.com/kbukum/flowgate/resilience"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 4 << 20
)

// Config configures the outbound HTTP client used by task executors.
type Config struct {
	// Name identifies the client in logs and breaker transitions.
	Name string `mapstructure:"name"`

	// BaseURL is prepended to relative request paths.
	BaseURL string `mapstructure:"base_url"`

	// Timeout bounds one attempt. Defaults to 30s.
	Timeout time.Duration `mapstructure:"timeout"`

	// Headers are applied to every request.
	Headers map[string]string `mapstructure:"headers"`

	// MaxBodyBytes caps how much of a response is read. Defaults to 4MB.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// Retry configures retries of retryable failures. Nil disables retry.
	Retry *resilience.RetryPolicy `mapstructure:"retry"`

	// Breaker trips after consecutive failures. Nil disables it.
	Breaker *resilience.BreakerConfig `mapstructure:"breaker"`
}

// ApplyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "http"
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("httpclient: timeout must be positive")
	}
	if c.Retry != nil {
		if err := c.Retry.Validate(); err != nil {
			return fmt.Errorf("httpclient: retry: %w", err)
		}
	}
	return nil
}
