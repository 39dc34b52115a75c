package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowgate/auth"
	apperrors "github.com/kbukum/flowgate/errors"
)

const (
	// HeaderTriggerSecret carries the shared trigger secret.
	HeaderTriggerSecret = "X-Trigger-Secret"
	// ContextUserID is the gin context key of the authenticated user id.
	ContextUserID = "user_id"
)

// Authenticate verifies a Bearer token when one is presented and stores
// the claims in the request context. With required set, requests without
// a valid token are rejected; otherwise they continue anonymously.
func Authenticate(tokens *auth.Tokens, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				abort(c, apperrors.Unauthorized(""))
				return
			}
			c.Next()
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			abort(c, apperrors.Unauthorized("Invalid authorization header format."))
			return
		}
		claims, err := tokens.Parse(token)
		if err != nil {
			abort(c, apperrors.Unauthorized("Invalid or expired token.").WithCause(err))
			return
		}
		c.Set(ContextUserID, claims.UserID())
		c.Request = c.Request.WithContext(auth.WithClaims(c.Request.Context(), claims))
		c.Next()
	}
}

// RequireTriggerSecret rejects requests whose X-Trigger-Secret does not
// match secret.
func RequireTriggerSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.SecretMatches(c.GetHeader(HeaderTriggerSecret), secret) {
			abort(c, apperrors.Unauthorized("Invalid trigger secret."))
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err.ToResponse())
}
