package llm

import (
	"fmt"
	"time"

	"github.com/kbukum/flowgate/resilience"
)

// Config selects the provider used by AI tasks.
type Config struct {
	// Dialect selects the provider mapping ("openai" or "ollama").
	Dialect string `mapstructure:"dialect"`

	// BaseURL is the provider's API base URL.
	BaseURL string `mapstructure:"base_url"`

	// Model is the default model.
	Model string `mapstructure:"model"`

	// Temperature is the default sampling temperature (0.0-1.0).
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`

	// MaxTokens is the default response cap. 0 means provider default.
	MaxTokens int `mapstructure:"max_tokens" validate:"gte=0"`

	// Timeout for one completion request. Defaults to 120s.
	Timeout time.Duration `mapstructure:"timeout"`

	// Retry configures retries of retryable provider failures.
	Retry *resilience.RetryPolicy `mapstructure:"retry"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Dialect == "" {
		c.Dialect = "openai"
	}
	if c.BaseURL == "" {
		switch c.Dialect {
		case "ollama":
			c.BaseURL = "http://localhost:11434"
		default:
			c.BaseURL = "https://api.openai.com/v1"
		}
	}
	if c.Model == "" {
		switch c.Dialect {
		case "ollama":
			c.Model = "llama3"
		default:
			c.Model = "gpt-4o-mini"
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := GetDialect(c.Dialect); err != nil {
		return err
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llm: temperature must be within 0-2, got %v", c.Temperature)
	}
	return nil
}
