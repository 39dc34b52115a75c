package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// StrategyExponential is the only supported backoff strategy.
const StrategyExponential = "EXPONENTIAL"

// RetryPolicy configures retries of a single node invocation.
type RetryPolicy struct {
	// MaxAttempts includes the first attempt. Values below 1 mean one attempt.
	MaxAttempts    int     `json:"maxAttempts" yaml:"maxAttempts" mapstructure:"max_attempts" validate:"gte=0"`
	InitialDelayMs int64   `json:"initialDelayMs" yaml:"initialDelayMs" mapstructure:"initial_delay_ms" validate:"gte=0"`
	MaxDelayMs     int64   `json:"maxDelayMs" yaml:"maxDelayMs" mapstructure:"max_delay_ms" validate:"gte=0"`
	Multiplier     float64 `json:"multiplier" yaml:"multiplier" mapstructure:"multiplier" validate:"gte=0"`
	// JitterPct is the +/- percentage applied to each delay (0-100).
	JitterPct float64 `json:"jitterPct" yaml:"jitterPct" mapstructure:"jitter_pct" validate:"gte=0,lte=100"`
	Strategy  string  `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	// RetryCreditDebit opts in to retrying failed credit debits.
	RetryCreditDebit bool `json:"retryCreditDebit,omitempty" yaml:"retryCreditDebit,omitempty" mapstructure:"retry_credit_debit"`
}

// DefaultRetryPolicy returns a three-attempt exponential policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialDelayMs: 500,
		MaxDelayMs:     10_000,
		Multiplier:     2,
		JitterPct:      10,
		Strategy:       StrategyExponential,
	}
}

// NoRetry returns a policy that makes exactly one attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, Strategy: StrategyExponential}
}

// Validate checks the policy for unsupported values.
func (p RetryPolicy) Validate() error {
	if p.Strategy != "" && p.Strategy != StrategyExponential {
		return fmt.Errorf("resilience: unsupported retry strategy %q", p.Strategy)
	}
	if p.MaxAttempts < 0 || p.InitialDelayMs < 0 || p.MaxDelayMs < 0 || p.Multiplier < 0 {
		return errors.New("resilience: retry policy values must not be negative")
	}
	if p.JitterPct < 0 || p.JitterPct > 100 {
		return errors.New("resilience: jitterPct must be within 0-100")
	}
	return nil
}

// Attempts returns the effective number of attempts.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the delay before retrying after the given failed attempt
// (1-based): initial * multiplier^(attempt-1), jittered, capped at MaxDelayMs.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	delay := float64(p.InitialDelayMs) * math.Pow(mult, float64(attempt-1))

	if p.JitterPct > 0 {
		span := delay * p.JitterPct / 100
		delay += (rand.Float64()*2 - 1) * span
	}
	if p.MaxDelayMs > 0 && delay > float64(p.MaxDelayMs) {
		delay = float64(p.MaxDelayMs)
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay * float64(time.Millisecond))
}

// RetryIf decides whether an error is worth another attempt.
type RetryIf func(error) bool

// DefaultRetryIf retries all errors except context cancellation.
func DefaultRetryIf(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// OnRetry is called before sleeping ahead of the next attempt.
type OnRetry func(attempt int, err error, backoff time.Duration)

// Do runs fn under the policy and returns the last error if every attempt
// fails. The backoff sleep returns early when ctx is done.
func Do(ctx context.Context, p RetryPolicy, fn func(attempt int) error, retryIf RetryIf, onRetry OnRetry) error {
	if retryIf == nil {
		retryIf = DefaultRetryIf
	}
	attempts := p.Attempts()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if !retryIf(lastErr) || attempt == attempts {
			break
		}

		backoff := p.Backoff(attempt)
		if onRetry != nil {
			onRetry(attempt, lastErr, backoff)
		}
		if backoff <= 0 {
			continue
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
