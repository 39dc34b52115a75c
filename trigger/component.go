package trigger

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/kbukum/flowgate/component"
	"github.com/kbukum/flowgate/logger"
)

// Component runs the cron sweep on an interval and drains in-flight
// executions on stop.
type Component struct {
	svc     *Service
	sched   *cron.Cron
	running atomic.Bool
	log     *logger.Logger
}

var _ component.Component = (*Component)(nil)

// NewComponent wraps svc for the component registry.
func NewComponent(svc *Service) *Component {
	return &Component{svc: svc, log: svc.log}
}

// Name returns the component name.
func (c *Component) Name() string { return "trigger" }

// Start schedules the sweep when enabled.
func (c *Component) Start(_ context.Context) error {
	if !c.svc.cfg.SweepEnabled {
		c.running.Store(true)
		return nil
	}
	c.sched = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	spec := fmt.Sprintf("@every %s", c.svc.cfg.SweepInterval)
	_, err := c.sched.AddFunc(spec, func() {
		if _, err := c.svc.Sweep(context.Background()); err != nil {
			c.log.Error("Scheduled sweep failed", logger.ErrorFields("sweep", err))
		}
	})
	if err != nil {
		return fmt.Errorf("trigger start: schedule sweep: %w", err)
	}
	c.sched.Start()
	c.running.Store(true)
	c.log.Info("Sweep scheduler started", map[string]interface{}{"interval": c.svc.cfg.SweepInterval.String()})
	return nil
}

// Stop halts the scheduler and drains runs until ctx expires.
func (c *Component) Stop(ctx context.Context) error {
	c.running.Store(false)
	if c.sched != nil {
		<-c.sched.Stop().Done()
	}
	return c.svc.Shutdown(ctx)
}

// Health reports whether the service accepts triggers.
func (c *Component) Health(context.Context) component.Health {
	if !c.running.Load() {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "trigger service stopped"}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe returns a startup summary.
func (c *Component) Describe() component.Description {
	details := "sweep disabled"
	if c.svc.cfg.SweepEnabled {
		details = fmt.Sprintf("sweep every %s batch=%d", c.svc.cfg.SweepInterval, c.svc.cfg.SweepBatch)
	}
	return component.Description{Name: "Trigger", Type: "scheduler", Details: details}
}
