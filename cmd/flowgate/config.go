package main

import (
	"fmt"

	"github.com/kbukum/flowgate/auth"
	"github.com/kbukum/flowgate/config"
	"github.com/kbukum/flowgate/database"
	"github.com/kbukum/flowgate/httpclient"
	"github.com/kbukum/flowgate/idempotency"
	"github.com/kbukum/flowgate/invalidation"
	"github.com/kbukum/flowgate/llm"
	"github.com/kbukum/flowgate/observability"
	"github.com/kbukum/flowgate/pool"
	"github.com/kbukum/flowgate/ratelimit"
	"github.com/kbukum/flowgate/redis"
	"github.com/kbukum/flowgate/server"
	"github.com/kbukum/flowgate/trigger"
	"github.com/kbukum/flowgate/workflow"
)

// Config is the flowgate process configuration.
type Config struct {
	config.ServiceConfig `mapstructure:",squash"`

	Server      server.Config        `mapstructure:"server"`
	Auth        auth.Config          `mapstructure:"auth"`
	Redis       redis.Config         `mapstructure:"redis"`
	Database    database.Config      `mapstructure:"database"`
	NATS        invalidation.Config  `mapstructure:"nats"`
	Telemetry   observability.Config `mapstructure:"telemetry"`
	Pool        pool.Config          `mapstructure:"pool"`
	RateLimit   ratelimit.Config     `mapstructure:"ratelimit"`
	Idempotency idempotency.Config   `mapstructure:"idempotency"`
	Trigger     trigger.Config       `mapstructure:"trigger"`
	HTTPClient  httpclient.Config    `mapstructure:"http_client"`
	AI          AIConfig             `mapstructure:"ai"`
	Credentials CredentialsConfig    `mapstructure:"credentials"`
	Credits     CreditsConfig        `mapstructure:"credits"`

	// Defaults are the politeness and network settings workflows inherit.
	Defaults workflow.Settings `mapstructure:"defaults"`
}

// AIConfig enables EXTRACT_DATA_WITH_AI.
type AIConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	llm.Config `mapstructure:",squash"`
}

// CredentialsConfig seeds the sealed credential store.
type CredentialsConfig struct {
	// SealingSecret derives the encryption key. Empty disables credential
	// inputs.
	SealingSecret string           `mapstructure:"sealing_secret"`
	Seed          []CredentialSeed `mapstructure:"seed"`
}

// CredentialSeed is one credential loaded at startup.
type CredentialSeed struct {
	UserID string `mapstructure:"user_id" validate:"required"`
	ID     string `mapstructure:"id" validate:"required"`
	Value  string `mapstructure:"value" validate:"required"`
}

// CreditsConfig grants starting balances.
type CreditsConfig struct {
	// Grants maps user id to a starting balance. On the shared Redis
	// ledger a balance is only set when the user has none yet.
	Grants map[string]int64 `mapstructure:"grants"`
}

// ApplyDefaults fills every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "flowgate"
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Auth.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Database.ApplyDefaults()
	// A local sqlite file has nobody else to migrate it.
	if c.Database.Driver == database.DriverSQLite {
		c.Database.AutoMigrate = true
	}
	c.NATS.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	c.Pool.ApplyDefaults()
	c.RateLimit.ApplyDefaults()
	c.Idempotency.ApplyDefaults()
	c.Trigger.ApplyDefaults()
	c.HTTPClient.ApplyDefaults()
	if c.HTTPClient.Name == "http" {
		c.HTTPClient.Name = "executors"
	}
	if c.AI.Enabled {
		c.AI.ApplyDefaults()
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"service", c.ServiceConfig.Validate},
		{"server", c.Server.Validate},
		{"auth", c.Auth.Validate},
		{"redis", c.Redis.Validate},
		{"database", c.Database.Validate},
		{"telemetry", c.Telemetry.Validate},
		{"pool", c.Pool.Validate},
		{"ratelimit", c.RateLimit.Validate},
		{"trigger", c.Trigger.Validate},
		{"http_client", c.HTTPClient.Validate},
	}
	if c.AI.Enabled {
		checks = append(checks, struct {
			name string
			fn   func() error
		}{"ai", c.AI.Validate})
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.name, err)
		}
	}
	if len(c.Credentials.Seed) > 0 && c.Credentials.SealingSecret == "" {
		return fmt.Errorf("credentials: seed requires sealing_secret")
	}
	return nil
}
