package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowgate/auth"
	apperrors "github.com/kbukum/flowgate/errors"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/ratelimit"
)

// Rate limit response headers.
const (
	HeaderRateLimit     = "X-RateLimit-Limit"
	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
	HeaderRetryAfter    = "Retry-After"
)

// RateLimit checks every request against the limiter's scope, keyed on the
// authenticated user and client IP. It must run after Authenticate so the
// user is known. Limiter failures let the request through.
func RateLimit(limiter *ratelimit.Limiter, scope ratelimit.Scope, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		res, err := limiter.Check(ctx, ratelimit.Request{
			Scope:  scope,
			UserID: auth.UserID(ctx),
			IP:     c.ClientIP(),
		})
		if err != nil {
			log.WithContext(ctx).Warn("Rate limit check failed, allowing request",
				logger.ErrorFields("rate_limit", err), map[string]interface{}{logger.FieldScope: string(scope)})
			c.Next()
			return
		}

		if len(res.Dimensions) > 0 {
			eff := res.Effective
			h := c.Writer.Header()
			h.Set(HeaderRateLimit, strconv.Itoa(eff.Limit))
			h.Set(HeaderRateRemaining, strconv.Itoa(eff.Remaining))
			h.Set(HeaderRateReset, strconv.FormatInt(eff.ResetEpochSeconds, 10))
			if !res.Allowed {
				h.Set(HeaderRetryAfter, strconv.FormatInt(eff.RetryAfterSeconds, 10))
			}
		}
		if !res.Allowed {
			abort(c, apperrors.RateLimited(res.Effective.RetryAfterSeconds).
				WithDetail("scope", string(scope)).
				WithDetail("dimension", string(res.Effective.Dimension)))
			return
		}
		c.Next()
	}
}
