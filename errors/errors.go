package errors

import (
	"fmt"
	"net/http"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// NoEntryPoint reports a graph without an entry-point node.
func NoEntryPoint() *AppError {
	return &AppError{
		Code: ErrCodeNoEntryPoint, Message: "The workflow has no entry point.",
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// InvalidInputs reports nodes whose inputs cannot be satisfied. invalid is
// attached verbatim under the "nodes" detail.
func InvalidInputs(invalid any) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInputs, Message: "One or more nodes have unsatisfied inputs.",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"nodes": invalid},
	}
}

// InsufficientCredits reports a balance that cannot cover the required amount.
func InsufficientCredits(required, available int64) *AppError {
	return &AppError{
		Code: ErrCodeInsufficientCredits, Message: "Insufficient credits.",
		HTTPStatus: http.StatusPaymentRequired,
		Details:    map[string]any{"required": required, "available": available},
	}
}

// ExecutorFailed wraps a task executor failure.
func ExecutorFailed(taskType string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExecutorFailed, Message: fmt.Sprintf("Task %s failed.", taskType),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"task_type": taskType}, Cause: cause,
	}
}

// UnknownTaskType reports a task type with no registered executor.
func UnknownTaskType(taskType string) *AppError {
	return &AppError{
		Code: ErrCodeUnknownTaskType, Message: fmt.Sprintf("No executor registered for task %s.", taskType),
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"task_type": taskType},
	}
}

// Backpressure reports a concurrency pool rejection.
func Backpressure(class string) *AppError {
	return &AppError{
		Code: ErrCodeBackpressure, Message: fmt.Sprintf("The %s pool is saturated.", class),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"class": class},
	}
}

// RateLimited creates a new AppError for too many requests.
func RateLimited(retryAfterSeconds int64) *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "Too many requests. Please wait a moment and try again.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
		Details: map[string]any{"retryAfterSeconds": retryAfterSeconds},
	}
}

// IdempotencyConflict reports a duplicate trigger. cached is the replayable
// response of the original trigger, nil while it is still in progress.
func IdempotencyConflict(key string, cached any) *AppError {
	details := map[string]any{"key": key}
	if cached != nil {
		details["cached"] = cached
	}
	return &AppError{
		Code: ErrCodeIdempotencyConflict, Message: "A trigger with this idempotency key was already accepted.",
		HTTPStatus: http.StatusConflict, Details: details,
	}
}

// ServiceUnavailable creates a new AppError for a service that is temporarily unavailable.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("The %s is temporarily unavailable. Please try again.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Details: details,
	}
}

// InvalidInput creates a new AppError for invalid request input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		HTTPStatus: http.StatusBadRequest, Details: details,
	}
}

// Unauthorized creates a new AppError for unauthorized access.
func Unauthorized(reason string) *AppError {
	if reason == "" {
		reason = "Authentication required."
	}
	return &AppError{
		Code: ErrCodeUnauthorized, Message: reason,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Internal creates a new AppError for an internal server error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Cause: cause,
	}
}
