package observability

import (
	"fmt"
	"time"
)

// Config configures OpenTelemetry export for traces and metrics.
type Config struct {
	// Enabled turns on OTLP export. When false the global no-op providers
	// stay in place and spans and metrics cost nothing.
	Enabled bool `mapstructure:"enabled"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g. "localhost:4318").
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
	Environment string `mapstructure:"environment"`
	// SampleRate is the trace sampling ratio (0.0 to 1.0).
	SampleRate     float64       `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
	MetricInterval time.Duration `mapstructure:"metric_interval"`
}

// ApplyDefaults fills unset fields with development defaults.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = 15 * time.Second
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("telemetry sample_rate must be within 0-1, got %v", c.SampleRate)
	}
	return nil
}
