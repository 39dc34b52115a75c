package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrBackpressure is returned when a class rejects a caller.
var ErrBackpressure = errors.New("pool: backpressure")

// Class is a bounded resource class.
type Class struct {
	name string
	cfg  ClassConfig
	sem  chan struct{}
	now  func() time.Time

	waiting   atomic.Int64
	inFlight  atomic.Int64
	peak      atomic.Int64
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	waitNanos atomic.Int64
	runNanos  atomic.Int64
}

func newClass(name string, cfg ClassConfig, now func() time.Time) *Class {
	return &Class{
		name: name,
		cfg:  cfg,
		sem:  make(chan struct{}, cfg.MaxConcurrency),
		now:  now,
	}
}

// Name returns the class name.
func (c *Class) Name() string { return c.name }

// Run acquires a slot, runs fn and releases the slot on every exit path,
// including a panic in fn.
func (c *Class) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	waited, err := c.acquire(ctx)
	if err != nil {
		return err
	}
	c.waitNanos.Add(int64(waited))
	c.started.Add(1)
	c.trackPeak(c.inFlight.Add(1))

	start := c.now()
	returned := false
	defer func() {
		c.runNanos.Add(int64(c.now().Sub(start)))
		c.inFlight.Add(-1)
		<-c.sem
		if !returned {
			c.failed.Add(1)
		}
	}()

	err = fn(ctx)
	returned = true
	if err != nil {
		c.failed.Add(1)
	} else {
		c.completed.Add(1)
	}
	return err
}

// acquire returns how long the caller waited for a slot.
func (c *Class) acquire(ctx context.Context) (time.Duration, error) {
	select {
	case c.sem <- struct{}{}:
		return 0, nil
	default:
	}

	if c.cfg.Strategy == StrategyFail {
		if !c.enqueue() {
			c.rejected.Add(1)
			return 0, fmt.Errorf("%w: %s class at %d in flight with %d queued",
				ErrBackpressure, c.name, c.cfg.MaxConcurrency, c.cfg.QueueSize)
		}
	} else {
		c.waiting.Add(1)
	}
	defer c.waiting.Add(-1)

	start := c.now()
	select {
	case c.sem <- struct{}{}:
		return c.now().Sub(start), nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// enqueue reserves a queue position without exceeding QueueSize.
func (c *Class) enqueue() bool {
	for {
		w := c.waiting.Load()
		if w >= int64(c.cfg.QueueSize) {
			return false
		}
		if c.waiting.CompareAndSwap(w, w+1) {
			return true
		}
	}
}

func (c *Class) trackPeak(n int64) {
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

// Stats is a point-in-time view of a class.
type Stats struct {
	Class                string   `json:"class"`
	MaxConcurrency       int      `json:"maxConcurrency"`
	QueueSize            int      `json:"queueSize"`
	Strategy             Strategy `json:"strategy"`
	InFlight             int64    `json:"inFlight"`
	Waiting              int64    `json:"waiting"`
	PeakInFlight         int64    `json:"peakInFlight"`
	Started              int64    `json:"started"`
	Completed            int64    `json:"completed"`
	Failed               int64    `json:"failed"`
	BackpressureRejected int64    `json:"backpressureRejected"`
	TotalWaitMs          int64    `json:"totalWaitMs"`
	TotalRunMs           int64    `json:"totalRunMs"`
}

// Stats returns the current counters.
func (c *Class) Stats() Stats {
	return Stats{
		Class:                c.name,
		MaxConcurrency:       c.cfg.MaxConcurrency,
		QueueSize:            c.cfg.QueueSize,
		Strategy:             c.cfg.Strategy,
		InFlight:             c.inFlight.Load(),
		Waiting:              c.waiting.Load(),
		PeakInFlight:         c.peak.Load(),
		Started:              c.started.Load(),
		Completed:            c.completed.Load(),
		Failed:               c.failed.Load(),
		BackpressureRejected: c.rejected.Load(),
		TotalWaitMs:          time.Duration(c.waitNanos.Load()).Milliseconds(),
		TotalRunMs:           time.Duration(c.runNanos.Load()).Milliseconds(),
	}
}
