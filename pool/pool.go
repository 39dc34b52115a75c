package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/workflow"
)

// Pool holds the browser and page resource classes.
type Pool struct {
	browser *Class
	page    *Class
	log     *logger.Logger
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for wait and run timings.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a Pool from cfg.
func New(cfg Config, log *logger.Logger, opts ...Option) (*Pool, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pool config: %w", err)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.NewNop()
	}

	p := &Pool{
		browser: newClass(string(workflow.ResourceBrowser), cfg.Browser, o.now),
		page:    newClass(string(workflow.ResourcePage), cfg.Page, o.now),
		log:     log.WithComponent("pool"),
	}
	p.log.Debug("Concurrency pool created", map[string]interface{}{
		"browser_max": cfg.Browser.MaxConcurrency,
		"page_max":    cfg.Page.MaxConcurrency,
	})
	return p, nil
}

// RunBrowser runs fn holding a browser slot.
func (p *Pool) RunBrowser(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.browser.Run(ctx, fn)
}

// RunPage runs fn holding a page slot.
func (p *Pool) RunPage(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.page.Run(ctx, fn)
}

// Run dispatches fn to the class matching rc. Tasks without a resource
// class run directly.
func (p *Pool) Run(ctx context.Context, rc workflow.ResourceClass, fn func(ctx context.Context) error) error {
	var err error
	switch rc {
	case workflow.ResourceBrowser:
		err = p.RunBrowser(ctx, fn)
	case workflow.ResourcePage:
		err = p.RunPage(ctx, fn)
	default:
		return fn(ctx)
	}
	if IsBackpressure(err) {
		p.log.Warn("Pool rejected task", map[string]interface{}{
			"class": string(rc),
			"error": err.Error(),
		})
	}
	return err
}

// Snapshot returns stats for both classes.
func (p *Pool) Snapshot() []Stats {
	return []Stats{p.browser.Stats(), p.page.Stats()}
}

// IsBackpressure reports whether err is a pool rejection.
func IsBackpressure(err error) bool {
	return err != nil && errors.Is(err, ErrBackpressure)
}
