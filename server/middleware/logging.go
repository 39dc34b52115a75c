package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/flowgate/logger"
)

var quietPaths = map[string]bool{
	"/health":       true,
	"/health/live":  true,
	"/metrics/pool": true,
}

// RequestLogger logs every request with method, path, status and duration.
// Health and metrics probes are not logged.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if quietPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := map[string]interface{}{
			"method":             c.Request.Method,
			"path":               c.FullPath(),
			logger.FieldStatus:   status,
			logger.FieldDuration: time.Since(start).Milliseconds(),
			"client_ip":          c.ClientIP(),
		}
		if uid, ok := c.Get(ContextUserID); ok {
			fields[logger.FieldUserID] = uid
		}
		if len(c.Errors) > 0 {
			fields[logger.FieldError] = c.Errors.String()
		}

		l := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			l.Error("Request completed", fields)
		case status >= 400:
			l.Warn("Request completed", fields)
		default:
			l.Debug("Request completed", fields)
		}
	}
}
