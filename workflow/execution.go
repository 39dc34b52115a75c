package workflow

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of a WorkflowExecution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
)

// Terminal reports whether s is a final state.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// PhaseStatus is the lifecycle state of a PhaseRecord.
type PhaseStatus string

const (
	PhaseCreated   PhaseStatus = "CREATED"
	PhasePending   PhaseStatus = "PENDING"
	PhaseRunning   PhaseStatus = "RUNNING"
	PhaseCompleted PhaseStatus = "COMPLETED"
	PhaseFailed    PhaseStatus = "FAILED"
)

// TriggerSource identifies what started an execution.
type TriggerSource string

const (
	TriggerManual TriggerSource = "manual"
	TriggerCron   TriggerSource = "cron"
	TriggerAPI    TriggerSource = "api"
)

// Execution is one run of a workflow.
type Execution struct {
	ID              string          `json:"id"`
	WorkflowID      string          `json:"workflowId"`
	UserID          string          `json:"userId"`
	Status          ExecutionStatus `json:"status"`
	Trigger         TriggerSource   `json:"trigger"`
	Plan            json.RawMessage `json:"plan,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	CompletedAt     *time.Time      `json:"completedAt,omitempty"`
	CreditsConsumed int64           `json:"creditsConsumed"`
	// Logs holds execution-level entries such as a failed credit pre-flight.
	Logs []LogEntry `json:"logs,omitempty"`
}

// LogLevel is the severity of a phase log line.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one line collected while a node runs.
type LogEntry struct {
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// PhaseRecord tracks one node of the plan inside an execution.
type PhaseRecord struct {
	ID              string            `json:"id"`
	ExecutionID     string            `json:"executionId"`
	PhaseNumber     int               `json:"phaseNumber"`
	Node            Node              `json:"node"`
	Status          PhaseStatus       `json:"status"`
	StartedAt       *time.Time        `json:"startedAt,omitempty"`
	CompletedAt     *time.Time        `json:"completedAt,omitempty"`
	CreditsConsumed int64             `json:"creditsConsumed"`
	Inputs          map[string]string `json:"inputs,omitempty"`
	Outputs         map[string]string `json:"outputs,omitempty"`
	Logs            []LogEntry        `json:"logs,omitempty"`
}
