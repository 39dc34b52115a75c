package ratelimit

import (
	"fmt"
	"time"
)

// Scope names a protected operation.
type Scope string

const (
	ScopeExecute Scope = "execute"
	ScopeSweep   Scope = "sweep"
)

// Dimension is one axis a request is counted on.
type Dimension string

const (
	DimensionUser   Dimension = "user"
	DimensionGlobal Dimension = "global"
	DimensionIP     Dimension = "ip"
)

// Limits are per-window request caps. Zero disables a dimension.
type Limits struct {
	User        int `mapstructure:"user" json:"user"`
	Global      int `mapstructure:"global" json:"global"`
	IP          int `mapstructure:"ip" json:"ip"`
	AnonymousIP int `mapstructure:"anonymous_ip" json:"anonymousIp"`
}

// PenaltyConfig controls cooldown escalation.
type PenaltyConfig struct {
	Base time.Duration `mapstructure:"base"`
	Max  time.Duration `mapstructure:"max"`
	// Memory is how long violations are remembered.
	Memory time.Duration `mapstructure:"memory"`
}

// Config configures a Limiter.
type Config struct {
	Window  time.Duration    `mapstructure:"window"`
	Scopes  map[Scope]Limits `mapstructure:"scopes"`
	Penalty PenaltyConfig    `mapstructure:"penalty"`
	// Overrides maps a subject (user id or IP) to per-scope limits.
	Overrides map[string]map[Scope]Limits `mapstructure:"overrides"`
}

// DefaultLimits returns the built-in limits for scope.
func DefaultLimits(scope Scope) Limits {
	switch scope {
	case ScopeSweep:
		return Limits{User: 5, Global: 60, IP: 10, AnonymousIP: 2}
	default:
		return Limits{User: 30, Global: 600, IP: 60, AnonymousIP: 10}
	}
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Scopes == nil {
		c.Scopes = make(map[Scope]Limits)
	}
	for _, s := range []Scope{ScopeExecute, ScopeSweep} {
		if _, ok := c.Scopes[s]; !ok {
			c.Scopes[s] = DefaultLimits(s)
		}
	}
	if c.Penalty.Base <= 0 {
		c.Penalty.Base = time.Second
	}
	if c.Penalty.Max <= 0 {
		c.Penalty.Max = 5 * time.Minute
	}
	if c.Penalty.Memory <= 0 {
		c.Penalty.Memory = time.Hour
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Window < time.Second {
		return fmt.Errorf("ratelimit window must be >= 1s")
	}
	if c.Penalty.Max < c.Penalty.Base {
		return fmt.Errorf("ratelimit penalty max must be >= base")
	}
	for scope, l := range c.Scopes {
		if l.User < 0 || l.Global < 0 || l.IP < 0 || l.AnonymousIP < 0 {
			return fmt.Errorf("ratelimit scope %s: limits must not be negative", scope)
		}
	}
	return nil
}
