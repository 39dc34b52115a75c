package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/flowgate/credential"
	"github.com/kbukum/flowgate/credits"
	apperrors "github.com/kbukum/flowgate/errors"
	"github.com/kbukum/flowgate/invalidation"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/observability"
	"github.com/kbukum/flowgate/plan"
	"github.com/kbukum/flowgate/pool"
	"github.com/kbukum/flowgate/store"
	"github.com/kbukum/flowgate/workflow"
)

// Deps are the collaborators an Orchestrator drives.
type Deps struct {
	Catalog     workflow.Catalog
	Executors   *Registry
	Credentials credential.Provider
	Ledger      credits.Ledger
	Store       store.Store
	Pool        *pool.Pool
	// Notifier defaults to invalidation.Nop.
	Notifier invalidation.Notifier
	// Metrics may be nil.
	Metrics *observability.Metrics
}

func (d Deps) validate() error {
	switch {
	case d.Catalog == nil:
		return errors.New("orchestrator: catalog is required")
	case d.Executors == nil:
		return errors.New("orchestrator: executor registry is required")
	case d.Ledger == nil:
		return errors.New("orchestrator: credit ledger is required")
	case d.Store == nil:
		return errors.New("orchestrator: store is required")
	case d.Pool == nil:
		return errors.New("orchestrator: pool is required")
	}
	return nil
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDefaults sets the process-wide politeness and network defaults.
func WithDefaults(s workflow.Settings) Option {
	return func(o *Orchestrator) { o.defaults = s }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithSleep overrides the politeness delay sleeper.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithIDGenerator overrides execution and record id generation.
func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

// Orchestrator drives executions through their compiled phases.
type Orchestrator struct {
	deps     Deps
	defaults workflow.Settings
	log      *logger.Logger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newID    func() string
}

// New creates an Orchestrator.
func New(deps Deps, log *logger.Logger, opts ...Option) (*Orchestrator, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Notifier == nil {
		deps.Notifier = invalidation.Nop{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	o := &Orchestrator{
		deps:  deps,
		log:   log.WithComponent("orchestrator"),
		now:   time.Now,
		sleep: sleepContext,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Prepare creates a PENDING execution with one CREATED record per planned
// node and persists both.
func (o *Orchestrator) Prepare(ctx context.Context, wf *workflow.Workflow, p *plan.ExecutionPlan, trigger workflow.TriggerSource) (*workflow.Execution, error) {
	raw, err := p.Encode()
	if err != nil {
		return nil, err
	}
	exec := &workflow.Execution{
		ID:         o.newID(),
		WorkflowID: wf.ID,
		UserID:     wf.UserID,
		Status:     workflow.ExecutionPending,
		Trigger:    trigger,
		Plan:       raw,
		CreatedAt:  o.now(),
	}
	records := make([]*workflow.PhaseRecord, 0, p.NodeCount())
	for _, ph := range p.Phases {
		for _, n := range ph.Nodes {
			records = append(records, &workflow.PhaseRecord{
				ID:          o.newID(),
				ExecutionID: exec.ID,
				PhaseNumber: ph.Number,
				Node:        n,
				Status:      workflow.PhaseCreated,
			})
		}
	}
	if err := o.deps.Store.CreateExecution(ctx, exec, records); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	return exec, nil
}

// Run drives exec to a terminal state and returns the final execution.
// Node and credit failures end the execution FAILED and are not returned
// as errors; the error reports a persistence or plan problem.
func (o *Orchestrator) Run(ctx context.Context, wf *workflow.Workflow, exec *workflow.Execution) (*workflow.Execution, error) {
	ctx = logger.ContextWithExecutionID(ctx, exec.ID)
	ctx, op := observability.StartOperation(ctx, observability.SpanExecution,
		attribute.String(observability.AttrExecutionID, exec.ID),
		attribute.String(observability.AttrWorkflowID, exec.WorkflowID),
		attribute.String(observability.AttrTrigger, string(exec.Trigger)),
	)
	log := o.log.WithContext(ctx).WithFields(map[string]interface{}{
		logger.FieldWorkflowID: exec.WorkflowID,
		logger.FieldUserID:     exec.UserID,
	})
	// Final writes must land even when the caller's context is gone.
	persistCtx := context.WithoutCancel(ctx)

	p, err := plan.Decode(exec.Plan)
	if err != nil {
		op.End(string(workflow.ExecutionFailed), err)
		return nil, err
	}
	records, err := o.deps.Store.ListPhaseRecords(ctx, exec.ID)
	if err != nil {
		op.End(string(workflow.ExecutionFailed), err)
		return nil, fmt.Errorf("load phase records: %w", err)
	}

	started := o.now()
	exec.Status = workflow.ExecutionRunning
	exec.StartedAt = &started
	if err := o.deps.Store.UpdateExecution(ctx, exec); err != nil {
		op.End(string(workflow.ExecutionFailed), err)
		return nil, fmt.Errorf("mark running: %w", err)
	}
	o.updateLastRun(persistCtx, log, exec, started)
	log.Info("Execution started", map[string]interface{}{"phases": len(p.Phases), "nodes": p.NodeCount()})

	settings, err := ResolveSettings(o.defaults, wf.Settings)
	if err != nil {
		log.Warn("Invalid workflow settings, using defaults", logger.ErrorFields("resolve_settings", err))
		settings = o.defaults
	}
	env := newEnvironment(exec, p, settings)

	status := o.execute(ctx, log, p, exec, env, records)

	// finalize
	completed := o.now()
	exec.Status = status
	exec.CompletedAt = &completed
	var runErr error
	if err := o.deps.Store.UpdateExecution(persistCtx, exec); err != nil {
		runErr = fmt.Errorf("finalize execution: %w", err)
	}
	o.updateLastRun(persistCtx, log, exec, started)
	if err := env.Close(); err != nil {
		log.Warn("Browser release failed", logger.ErrorFields("release_browser", err))
	}
	event := invalidation.Event{
		WorkflowID:  exec.WorkflowID,
		UserID:      exec.UserID,
		ExecutionID: exec.ID,
		Status:      string(status),
		At:          completed,
	}
	if err := o.deps.Notifier.Invalidate(persistCtx, event); err != nil {
		log.Warn("Cache invalidation failed", logger.ErrorFields("invalidate", err))
	}

	d := op.End(string(status), runErr)
	o.deps.Metrics.RecordExecution(persistCtx, string(exec.Trigger), string(status), d)
	log.Info("Execution finished", map[string]interface{}{
		logger.FieldStatus:   string(status),
		"credits_consumed":   exec.CreditsConsumed,
		logger.FieldDuration: d.Milliseconds(),
	})
	return exec, runErr
}

// execute runs the pre-flight check and every phase, returning the
// terminal status.
func (o *Orchestrator) execute(ctx context.Context, log *logger.Logger, p *plan.ExecutionPlan, exec *workflow.Execution, env *Environment, records []*workflow.PhaseRecord) workflow.ExecutionStatus {
	if !o.preflight(ctx, log, p, exec) {
		return workflow.ExecutionFailed
	}

	byNode := make(map[string]*workflow.PhaseRecord, len(records))
	for _, rec := range records {
		byNode[rec.Node.ID] = rec
	}

	for _, ph := range p.Phases {
		if err := ctx.Err(); err != nil {
			exec.Logs = append(exec.Logs, o.logEntry(workflow.LogError, fmt.Sprintf("execution canceled before phase %d: %v", ph.Number, err)))
			return workflow.ExecutionFailed
		}

		phaseRecords := make([]*workflow.PhaseRecord, 0, len(ph.Nodes))
		for _, n := range ph.Nodes {
			rec, ok := byNode[n.ID]
			if !ok {
				exec.Logs = append(exec.Logs, o.logEntry(workflow.LogError, fmt.Sprintf("no phase record for node %s", n.ID)))
				return workflow.ExecutionFailed
			}
			phaseRecords = append(phaseRecords, rec)
		}

		consumed, failed := o.runPhase(ctx, log, ph, env, phaseRecords)
		exec.CreditsConsumed += consumed
		if failed {
			log.Warn("Phase failed, skipping remaining phases", map[string]interface{}{logger.FieldPhase: ph.Number})
			return workflow.ExecutionFailed
		}
	}
	return workflow.ExecutionCompleted
}

// preflight compares the plan's static cost with the user's balance.
func (o *Orchestrator) preflight(ctx context.Context, log *logger.Logger, p *plan.ExecutionPlan, exec *workflow.Execution) bool {
	required, err := p.Credits(o.deps.Catalog)
	if err != nil {
		exec.Logs = append(exec.Logs, o.logEntry(workflow.LogError, err.Error()))
		return false
	}
	check, err := o.deps.Ledger.CheckAndReserve(ctx, exec.UserID, exec.WorkflowID, required)
	if err != nil {
		log.Error("Credit pre-flight failed", logger.ErrorFields("check_credits", err))
		exec.Logs = append(exec.Logs, o.logEntry(workflow.LogError, fmt.Sprintf("credit check unavailable: %v", err)))
		return false
	}
	if !check.Success {
		appErr := apperrors.InsufficientCredits(required, check.Balance)
		log.Warn("Insufficient credits", map[string]interface{}{"required": required, "available": check.Balance})
		exec.Logs = append(exec.Logs, o.logEntry(workflow.LogError,
			fmt.Sprintf("%s: required %d credits, available %d", appErr.Code, required, check.Balance)))
		return false
	}
	return true
}

// runPhase runs every node of a phase concurrently through the pool and
// waits for all of them. It returns the credits consumed and whether any
// node failed.
func (o *Orchestrator) runPhase(ctx context.Context, log *logger.Logger, ph plan.Phase, env *Environment, records []*workflow.PhaseRecord) (int64, bool) {
	ctx, op := observability.StartOperation(ctx, observability.SpanPhase,
		attribute.Int(observability.AttrPhase, ph.Number))

	persistCtx := context.WithoutCancel(ctx)
	for _, rec := range records {
		rec.Status = workflow.PhasePending
		if err := o.deps.Store.UpdatePhaseRecord(persistCtx, rec); err != nil {
			log.Warn("Persisting pending record failed", logger.ErrorFields("update_record", err))
		}
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		consumed int64
		failed   bool
	)
	for _, rec := range records {
		wg.Add(1)
		go func(rec *workflow.PhaseRecord) {
			defer wg.Done()
			ok := o.runNode(ctx, log, ph, env, rec)
			mu.Lock()
			consumed += rec.CreditsConsumed
			if !ok {
				failed = true
			}
			mu.Unlock()
		}(rec)
	}
	wg.Wait()

	status := workflow.PhaseCompleted
	if failed {
		status = workflow.PhaseFailed
	}
	op.End(string(status), nil)
	return consumed, failed
}

func (o *Orchestrator) logEntry(level workflow.LogLevel, msg string) workflow.LogEntry {
	return workflow.LogEntry{Level: level, Message: msg, Timestamp: o.now()}
}

func (o *Orchestrator) updateLastRun(ctx context.Context, log *logger.Logger, exec *workflow.Execution, at time.Time) {
	err := o.deps.Store.UpdateWorkflowLastRun(ctx, exec.WorkflowID, store.LastRun{
		ExecutionID: exec.ID,
		At:          at,
		Status:      exec.Status,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		log.Debug("Workflow deleted during run, last-run not updated")
	case err != nil:
		log.Warn("Updating workflow last run failed", logger.ErrorFields("update_last_run", err))
	}
}
