package database

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "github.com/kbukum/flowgate/errors"
)

// IsConnectionError reports whether err looks like a lost or refused
// connection that a retry may resolve.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"i/o timeout",
		"no route to host",
		"connection closed",
		"driver: bad connection",
		"database is locked",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// IsNotFoundError checks if the error is a GORM record-not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// FromDatabase converts a storage error to an AppError. Lost connections
// become 503 so triggers can be retried.
func FromDatabase(err error, resource string) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if IsNotFoundError(err) {
		return apperrors.NotFound(resource, "")
	}
	if IsConnectionError(err) {
		return apperrors.ServiceUnavailable("database").WithCause(err)
	}
	return apperrors.Internal(err)
}
