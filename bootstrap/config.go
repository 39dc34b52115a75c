package bootstrap

import (
	"github.com/kbukum/flowgate/config"
)

// Config is the constraint for application configuration types. Any struct
// embedding config.ServiceConfig satisfies it through promoted methods.
//
//	type ServeConfig struct {
//	    config.ServiceConfig `mapstructure:",squash"`
//	    Redis redis.Config   `mapstructure:"redis"`
//	}
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
