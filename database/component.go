package database

import (
	"context"
	"fmt"

	"github.com/kbukum/flowgate/component"
	"github.com/kbukum/flowgate/logger"
)

// Component owns the connection pool for the process lifetime.
type Component struct {
	cfg    Config
	log    *logger.Logger
	models []interface{}
	db     *DB
}

var _ component.Component = (*Component)(nil)

// NewComponent creates the database component. The connection opens on Start.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	cfg.ApplyDefaults()
	return &Component{cfg: cfg, log: log.WithComponent("database")}
}

// WithAutoMigrate adds models migrated on Start when AutoMigrate is set.
func (c *Component) WithAutoMigrate(models ...interface{}) *Component {
	c.models = append(c.models, models...)
	return c
}

// DB is nil until Start succeeds.
func (c *Component) DB() *DB { return c.db }

func (c *Component) Name() string { return "database" }

func (c *Component) Start(ctx context.Context) error {
	db, err := New(ctx, c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("database start: %w", err)
	}
	if c.cfg.AutoMigrate && len(c.models) > 0 {
		if err := db.AutoMigrate(c.models...); err != nil {
			_ = db.Close()
			return fmt.Errorf("database auto-migrate: %w", err)
		}
		c.log.Info("Schema migrated", map[string]interface{}{"models": len(c.models)})
	}
	c.db = db
	return nil
}

func (c *Component) Stop(context.Context) error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Health pings the pool.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	switch {
	case c.db == nil:
		h.Status, h.Message = component.StatusUnhealthy, "not started"
	default:
		if err := c.db.PingContext(ctx); err != nil {
			h.Status, h.Message = component.StatusUnhealthy, fmt.Sprintf("%s ping: %v", c.cfg.Driver, err)
		}
	}
	return h
}

func (c *Component) Describe() component.Description {
	details := fmt.Sprintf("driver=%s pool=%d/%d", c.cfg.Driver, c.cfg.MaxOpenConns, c.cfg.MaxIdleConns)
	if c.cfg.AutoMigrate {
		details += fmt.Sprintf(" migrate=%d models", len(c.models))
	}
	return component.Description{Name: "Database", Type: "database", Details: details}
}
