package auth

import (
	"errors"
	"time"
)

// Config configures trigger authentication.
type Config struct {
	// JWTSecret signs and verifies HS256 user tokens. Empty disables
	// user tokens, leaving only anonymous and shared-secret callers.
	JWTSecret string        `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer    string        `yaml:"issuer" mapstructure:"issuer"`
	Audience  string        `yaml:"audience" mapstructure:"audience"`
	TokenTTL  time.Duration `yaml:"token_ttl" mapstructure:"token_ttl"`
	// TriggerSecret guards the execute and sweep endpoints.
	TriggerSecret string `yaml:"trigger_secret" mapstructure:"trigger_secret"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Issuer == "" {
		c.Issuer = "flowgate"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 15 * time.Minute
	}
}

// Validate rejects secrets too short to be safe.
func (c *Config) Validate() error {
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes")
	}
	if c.TriggerSecret != "" && len(c.TriggerSecret) < 16 {
		return errors.New("auth.trigger_secret must be at least 16 bytes")
	}
	return nil
}
