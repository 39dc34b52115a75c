// Package store persists workflows, executions and per-node phase records.
//
// Two implementations share the Store interface: MemoryStore for tests and
// single-process use, and GormStore backed by sqlite or postgres through
// the database package.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kbukum/flowgate/workflow"
)

// ErrNotFound is returned when a workflow or execution does not exist.
var ErrNotFound = errors.New("store: not found")

// LastRun is the workflow's pointer to its most recent execution.
type LastRun struct {
	ExecutionID string
	At          time.Time
	Status      workflow.ExecutionStatus
}

// Store is the persistence boundary used by the trigger service and the
// orchestrator.
type Store interface {
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	SaveWorkflow(ctx context.Context, wf *workflow.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
	// ListDueWorkflows returns published, scheduled workflows whose next
	// run is at or before now, oldest first.
	ListDueWorkflows(ctx context.Context, now time.Time, limit int) ([]*workflow.Workflow, error)
	// UpdateWorkflowLastRun returns ErrNotFound when the workflow was deleted.
	UpdateWorkflowLastRun(ctx context.Context, workflowID string, run LastRun) error
	// UpdateWorkflowNextRun moves the schedule pointer; nil unschedules.
	UpdateWorkflowNextRun(ctx context.Context, workflowID string, next *time.Time) error

	// CreateExecution stores the execution and its phase records atomically.
	CreateExecution(ctx context.Context, exec *workflow.Execution, records []*workflow.PhaseRecord) error
	GetExecution(ctx context.Context, id string) (*workflow.Execution, error)
	UpdateExecution(ctx context.Context, exec *workflow.Execution) error
	UpdatePhaseRecord(ctx context.Context, rec *workflow.PhaseRecord) error
	// ListPhaseRecords returns records in plan order.
	ListPhaseRecords(ctx context.Context, executionID string) ([]*workflow.PhaseRecord, error)
}
