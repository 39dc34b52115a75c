package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/resilience"
)

// Request identifies the caller of a protected operation.
type Request struct {
	Scope  Scope
	UserID string
	IP     string
}

// DimensionResult is the verdict of one dimension.
type DimensionResult struct {
	Dimension         Dimension `json:"dimension"`
	Subject           string    `json:"subject"`
	Allowed           bool      `json:"allowed"`
	Limit             int       `json:"limit"`
	Remaining         int       `json:"remaining"`
	ResetEpochSeconds int64     `json:"reset"`
	RetryAfterSeconds int64     `json:"retryAfter,omitempty"`
}

// Result is the verdict for a request.
type Result struct {
	Allowed    bool
	Dimensions []DimensionResult
	// Effective is the most restrictive dimension, used for headers.
	Effective DimensionResult
	// Degraded is set when the local fallback answered.
	Degraded bool
}

// TierResolver returns a per-subject limit that replaces the scope default.
type TierResolver interface {
	Resolve(ctx context.Context, scope Scope, dim Dimension, subject string) (limit int, ok bool)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithTiers sets the override resolver.
func WithTiers(t TierResolver) Option {
	return func(l *Limiter) { l.tiers = t }
}

// Limiter evaluates requests against a Store.
type Limiter struct {
	cfg     Config
	shared  Store
	local   *MemoryStore
	breaker *resilience.Breaker
	tiers   TierResolver
	now     func() time.Time
	log     *logger.Logger
}

// New creates a Limiter. shared may be nil to run on local counters only.
func New(cfg Config, shared Store, log *logger.Logger, opts ...Option) (*Limiter, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ratelimit config: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	l := &Limiter{
		cfg:    cfg,
		shared: shared,
		now:    time.Now,
		log:    log.WithComponent("ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.tiers == nil && len(cfg.Overrides) > 0 {
		l.tiers = overrideTiers(cfg.Overrides)
	}
	l.local = NewMemoryStore(l.now)
	l.breaker = resilience.NewBreaker(resilience.BreakerConfig{Name: "ratelimit", Now: l.now})
	return l, nil
}

// Check counts req on every applicable dimension and returns the verdict.
func (l *Limiter) Check(ctx context.Context, req Request) (Result, error) {
	limits, ok := l.cfg.Scopes[req.Scope]
	if !ok {
		return Result{}, fmt.Errorf("ratelimit: unknown scope %q", req.Scope)
	}

	if l.shared != nil && l.breaker.Allow() {
		res, err := l.check(ctx, l.shared, req, limits)
		l.breaker.Record(err)
		if err == nil {
			return res, nil
		}
		l.log.Warn("Shared rate limit store failed, using local counters",
			logger.ErrorFields("check", err), map[string]interface{}{logger.FieldScope: string(req.Scope)})
	}

	res, err := l.check(ctx, l.local, req, limits)
	res.Degraded = l.shared != nil
	return res, err
}

type dimension struct {
	dim     Dimension
	subject string
	limit   int
}

func (l *Limiter) dimensions(ctx context.Context, req Request, limits Limits) []dimension {
	var dims []dimension
	if req.UserID != "" {
		if limit := l.tier(ctx, req.Scope, DimensionUser, req.UserID, limits.User); limit > 0 {
			dims = append(dims, dimension{DimensionUser, req.UserID, limit})
		}
	}
	if limits.Global > 0 {
		dims = append(dims, dimension{DimensionGlobal, "*", limits.Global})
	}
	if req.IP != "" {
		limit := limits.IP
		if req.UserID == "" && limits.AnonymousIP > 0 && (limit == 0 || limits.AnonymousIP < limit) {
			limit = limits.AnonymousIP
		}
		if limit = l.tier(ctx, req.Scope, DimensionIP, req.IP, limit); limit > 0 {
			dims = append(dims, dimension{DimensionIP, req.IP, limit})
		}
	}
	return dims
}

// tier returns the subject's override for dim, or def. An override may
// enable a dimension the scope default leaves off.
func (l *Limiter) tier(ctx context.Context, scope Scope, dim Dimension, subject string, def int) int {
	if l.tiers != nil {
		if v, ok := l.tiers.Resolve(ctx, scope, dim, subject); ok {
			return v
		}
	}
	return def
}

func (l *Limiter) check(ctx context.Context, store Store, req Request, limits Limits) (Result, error) {
	now := l.now()
	window := int64(l.cfg.Window / time.Second)
	bucket := now.Unix() / window
	reset := (bucket + 1) * window
	ttl := time.Unix(reset, 0).Sub(now) + time.Second

	res := Result{Allowed: true}
	for _, d := range l.dimensions(ctx, req, limits) {
		dr := DimensionResult{Dimension: d.dim, Subject: d.subject, Limit: d.limit, ResetEpochSeconds: reset}
		base := fmt.Sprintf("rl:%s:%s:%s", req.Scope, d.dim, d.subject)

		cooldown, err := store.Penalty(ctx, base+":pen")
		if err != nil {
			return Result{}, err
		}
		if cooldown <= 0 {
			count, err := store.Incr(ctx, fmt.Sprintf("%s:w:%d", base, bucket), ttl)
			if err != nil {
				return Result{}, err
			}
			dr.Allowed = count <= int64(d.limit)
			dr.Remaining = max(d.limit-int(count), 0)
		}

		if !dr.Allowed {
			retry, err := l.escalate(ctx, store, base)
			if err != nil {
				return Result{}, err
			}
			dr.RetryAfterSeconds = int64(math.Ceil(retry.Seconds()))
			res.Allowed = false
			l.log.Debug("Rate limit denied", map[string]interface{}{
				logger.FieldScope: string(req.Scope),
				"dimension":       string(d.dim),
				"subject":         d.subject,
				"retry_after_s":   dr.RetryAfterSeconds,
			})
		}
		res.Dimensions = append(res.Dimensions, dr)
	}
	res.Effective = effective(res.Dimensions)
	return res, nil
}

// escalate records a violation and starts the next cooldown.
func (l *Limiter) escalate(ctx context.Context, store Store, base string) (time.Duration, error) {
	violations, err := store.Incr(ctx, base+":vio", l.cfg.Penalty.Memory)
	if err != nil {
		return 0, err
	}
	retry := PenaltyFor(violations, l.cfg.Penalty.Base, l.cfg.Penalty.Max)
	if err := store.SetPenalty(ctx, base+":pen", retry); err != nil {
		return 0, err
	}
	return retry, nil
}

// PenaltyFor returns min(base * 2^(violations-1), max).
func PenaltyFor(violations int64, base, maxPenalty time.Duration) time.Duration {
	if violations < 1 {
		violations = 1
	}
	if violations > 62 {
		return maxPenalty
	}
	d := float64(base) * math.Pow(2, float64(violations-1))
	if d > float64(maxPenalty) {
		return maxPenalty
	}
	return time.Duration(d)
}

// effective picks the denial with the longest cooldown, otherwise the
// dimension with the least remaining capacity.
func effective(dims []DimensionResult) DimensionResult {
	var best DimensionResult
	for i, d := range dims {
		switch {
		case i == 0:
			best = d
		case !d.Allowed && best.Allowed:
			best = d
		case !d.Allowed && !best.Allowed && d.RetryAfterSeconds > best.RetryAfterSeconds:
			best = d
		case d.Allowed && best.Allowed && d.Remaining < best.Remaining:
			best = d
		}
	}
	return best
}

type overrideTiers map[string]map[Scope]Limits

func (o overrideTiers) Resolve(_ context.Context, scope Scope, dim Dimension, subject string) (int, bool) {
	l, ok := o[subject][scope]
	if !ok {
		return 0, false
	}
	switch dim {
	case DimensionUser:
		return l.User, l.User > 0
	case DimensionIP:
		return l.IP, l.IP > 0
	}
	return 0, false
}
