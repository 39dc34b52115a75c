package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Compilation errors, surfaced before anything runs.
const (
	// ErrCodeNoEntryPoint indicates the graph has no entry-point node.
	ErrCodeNoEntryPoint ErrorCode = "NO_ENTRY_POINT"
	// ErrCodeInvalidInputs indicates one or more nodes have unmet inputs.
	ErrCodeInvalidInputs ErrorCode = "INVALID_INPUTS"
)

// Execution errors.
const (
	// ErrCodeInsufficientCredits indicates the user's balance cannot cover a workflow or node.
	ErrCodeInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	// ErrCodeExecutorFailed indicates a task executor returned an error.
	ErrCodeExecutorFailed ErrorCode = "EXECUTOR_FAILED"
	// ErrCodeUnknownTaskType indicates no executor is registered for a task type.
	ErrCodeUnknownTaskType ErrorCode = "UNKNOWN_TASK_TYPE"
)

// Boundary errors (retryable).
const (
	// ErrCodeBackpressure indicates a saturated concurrency pool rejected the call.
	ErrCodeBackpressure ErrorCode = "BACKPRESSURE"
	// ErrCodeRateLimited indicates the caller is rate limited.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeIdempotencyConflict indicates a duplicate trigger for an already reserved key.
	ErrCodeIdempotencyConflict ErrorCode = "IDEMPOTENCY_CONFLICT"
	// ErrCodeServiceUnavailable indicates a dependency is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Request errors.
const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeBackpressure:        true,
	ErrCodeRateLimited:         true,
	ErrCodeServiceUnavailable:  true,
	ErrCodeExecutorFailed:      true,
	ErrCodeIdempotencyConflict: false,
	ErrCodeInternal:            false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
