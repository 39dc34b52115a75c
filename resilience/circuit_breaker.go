package resilience

import (
	"errors"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	// StateClosed sends calls to the guarded backend.
	StateClosed State = iota
	// StateOpen skips the backend until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a probe call through.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned by Execute while the backend is being skipped.
var ErrBreakerOpen = errors.New("resilience: backend breaker is open")

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	Name string
	// MaxFailures is the number of consecutive failures before opening.
	MaxFailures int `mapstructure:"max_failures"`
	// Cooldown is how long the breaker stays open before probing again.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to State)
	// Now overrides the clock; nil uses time.Now.
	Now func() time.Time
}

// DefaultBreakerConfig returns a breaker that opens after 3 failures for 10s.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{Name: name, MaxFailures: 3, Cooldown: 10 * time.Second}
}

// Breaker tracks the health of a shared backend so callers can degrade to a
// local fallback without paying a network timeout on every request.
type Breaker struct {
	cfg BreakerConfig

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg}
}

// Execute runs fn unless the breaker is open, recording its outcome.
func (b *Breaker) Execute(fn func() error) error {
	if !b.Allow() {
		return ErrBreakerOpen
	}
	err := fn()
	b.Record(err)
	return err
}

// Allow reports whether a call may go to the backend. In half-open state
// only one probe is admitted until its result is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// Record feeds a call result into the breaker.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.current()
	if err == nil {
		b.failures = 0
		if state != StateClosed {
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	if state == StateHalfOpen || b.failures >= b.cfg.MaxFailures {
		b.openedAt = b.cfg.Now()
		b.transition(StateOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.transition(StateClosed)
}

func (b *Breaker) current() State {
	if b.state == StateOpen && b.cfg.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.transition(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.probing = false
	if to == StateClosed {
		b.failures = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
