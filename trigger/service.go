package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/flowgate/database"
	apperrors "github.com/kbukum/flowgate/errors"
	"github.com/kbukum/flowgate/idempotency"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/observability"
	"github.com/kbukum/flowgate/plan"
	"github.com/kbukum/flowgate/store"
	"github.com/kbukum/flowgate/workflow"
)

// Runner prepares and drives executions. *orchestrator.Orchestrator
// implements it.
type Runner interface {
	Prepare(ctx context.Context, wf *workflow.Workflow, p *plan.ExecutionPlan, trigger workflow.TriggerSource) (*workflow.Execution, error)
	Run(ctx context.Context, wf *workflow.Workflow, exec *workflow.Execution) (*workflow.Execution, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store       store.Store
	Catalog     workflow.Catalog
	Runner      Runner
	Idempotency *idempotency.Coordinator
	// Metrics may be nil.
	Metrics *observability.Metrics
}

func (d Deps) validate() error {
	switch {
	case d.Store == nil:
		return errors.New("trigger: store is required")
	case d.Catalog == nil:
		return errors.New("trigger: catalog is required")
	case d.Runner == nil:
		return errors.New("trigger: runner is required")
	case d.Idempotency == nil:
		return errors.New("trigger: idempotency coordinator is required")
	}
	return nil
}

// Result statuses.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// Request asks for one execution of a workflow.
type Request struct {
	WorkflowID string
	// UserID, when set, must own the workflow.
	UserID string
	Source workflow.TriggerSource
	// IdempotencyKey is the caller token, scoped to UserID and WorkflowID.
	// Empty derives one from source, workflow and time bucket.
	IdempotencyKey string
}

// Result is the replayable response of a trigger. A rejected trigger
// carries the error code so a duplicate sees why the first one failed.
type Result struct {
	Status      string `json:"status"`
	ExecutionID string `json:"executionId,omitempty"`
	Code        string `json:"code,omitempty"`
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for keys and schedules.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the trigger boundary: it deduplicates triggers, resolves the
// plan and hands executions to the Runner in the background.
type Service struct {
	deps   Deps
	cfg    Config
	log    *logger.Logger
	now    func() time.Time
	parser cron.Parser

	// base outlives requests; cancelling it cancels in-flight runs.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Service.
func New(cfg Config, deps Deps, log *logger.Logger, opts ...Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	s := &Service{
		deps:   deps,
		cfg:    cfg,
		log:    log.WithComponent("trigger"),
		now:    time.Now,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		base:   base,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Trigger reserves the idempotency key, resolves the plan, creates the
// execution and starts it. A duplicate key returns an IDEMPOTENCY_CONFLICT
// error carrying the first trigger's result once it is known.
func (s *Service) Trigger(ctx context.Context, req Request) (*Result, error) {
	if req.WorkflowID == "" {
		return nil, apperrors.InvalidInput("workflowId", "is required")
	}
	if req.Source == "" {
		req.Source = workflow.TriggerManual
	}
	key := callerKey(req)
	if key == "" {
		key = s.deps.Idempotency.DeriveKey(string(req.Source), req.WorkflowID, s.now())
	}
	return s.fire(ctx, key, req, nil)
}

// callerKey scopes a caller token to the user and workflow so equal tokens
// from different tenants never collide.
func callerKey(req Request) string {
	if req.IdempotencyKey == "" {
		return ""
	}
	return fmt.Sprintf("token:%s:%s:%s", req.UserID, req.WorkflowID, req.IdempotencyKey)
}

// fire runs one trigger under key. wf is used as-is when the caller
// already loaded it.
func (s *Service) fire(ctx context.Context, key string, req Request, wf *workflow.Workflow) (*Result, error) {
	ctx, op := observability.StartOperation(ctx, observability.SpanTrigger,
		attribute.String(observability.AttrWorkflowID, req.WorkflowID),
		attribute.String(observability.AttrTrigger, string(req.Source)),
	)
	log := s.log.WithContext(ctx).WithFields(map[string]interface{}{
		logger.FieldWorkflowID:     req.WorkflowID,
		logger.FieldIdempotencyKey: key,
	})

	res, err := s.deps.Idempotency.Reserve(ctx, key)
	if err != nil {
		op.End(StatusRejected, err)
		return nil, apperrors.ServiceUnavailable("idempotency").WithCause(err)
	}
	if !res.Acquired {
		s.deps.Metrics.RecordTriggerRejected(ctx, "duplicate")
		var cached any
		if res.Existing != nil && res.Existing.Completed() {
			var prior Result
			if err := res.Existing.Decode(&prior); err == nil {
				cached = prior
			}
		}
		log.Info("Duplicate trigger", map[string]interface{}{"completed": cached != nil})
		op.End(StatusRejected, nil)
		return nil, apperrors.IdempotencyConflict(key, cached)
	}
	if res.Degraded {
		log.Warn("Idempotency served by local fallback")
	}

	result, err := s.start(ctx, log, req, wf)
	if err != nil {
		code := string(apperrors.ErrCodeInternal)
		if appErr, ok := apperrors.AsAppError(err); ok {
			code = string(appErr.Code)
		}
		s.deps.Metrics.RecordTriggerRejected(ctx, code)
		_ = s.deps.Idempotency.Complete(context.WithoutCancel(ctx), key, Result{Status: StatusRejected, Code: code})
		op.End(StatusRejected, err)
		return nil, err
	}
	_ = s.deps.Idempotency.Complete(context.WithoutCancel(ctx), key, result)
	op.End(StatusAccepted, nil)
	return result, nil
}

func (s *Service) start(ctx context.Context, log *logger.Logger, req Request, wf *workflow.Workflow) (*Result, error) {
	if wf == nil {
		var err error
		if wf, err = s.workflow(ctx, req.WorkflowID, req.UserID); err != nil {
			return nil, err
		}
	}
	if req.Source != workflow.TriggerManual && !wf.Published {
		return nil, apperrors.InvalidInput("workflowId", "workflow is not published")
	}

	p, err := s.planFor(wf)
	if err != nil {
		return nil, err
	}
	exec, err := s.deps.Runner.Prepare(ctx, wf, p, req.Source)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	s.dispatch(ctx, log, wf, exec)

	log.Info("Execution triggered", map[string]interface{}{
		logger.FieldExecutionID: exec.ID,
		"source":                string(req.Source),
	})
	return &Result{Status: StatusAccepted, ExecutionID: exec.ID}, nil
}

// dispatch runs exec in the background. The run keeps the request's values
// but not its cancellation; Shutdown cancels it.
func (s *Service) dispatch(ctx context.Context, log *logger.Logger, wf *workflow.Workflow, exec *workflow.Execution) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(s.base, cancel)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer stop()
		defer cancel()
		if _, err := s.deps.Runner.Run(runCtx, wf, exec); err != nil {
			log.Error("Execution run failed", logger.ErrorFields("run", err),
				map[string]interface{}{logger.FieldExecutionID: exec.ID})
		}
	}()
}

// planFor returns the frozen plan of a published workflow, or compiles the
// current definition of a draft.
func (s *Service) planFor(wf *workflow.Workflow) (*plan.ExecutionPlan, error) {
	if wf.Published && len(wf.Plan) > 0 {
		return plan.Decode(wf.Plan)
	}
	return plan.Compile(wf.Definition, s.deps.Catalog, s.planOptions())
}

func (s *Service) planOptions() plan.Options {
	return plan.Options{DefaultRetry: s.cfg.DefaultRetry}
}

// workflow loads a workflow, hiding workflows of other users.
func (s *Service) workflow(ctx context.Context, id, userID string) (*workflow.Workflow, error) {
	wf, err := s.deps.Store.GetWorkflow(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.NotFound("workflow", id)
	}
	if err != nil {
		return nil, database.FromDatabase(err, "workflow")
	}
	if userID != "" && wf.UserID != userID {
		return nil, apperrors.NotFound("workflow", id)
	}
	return wf, nil
}

// Publish compiles the workflow, freezes the plan and its credit cost, and
// schedules the next cron run.
func (s *Service) Publish(ctx context.Context, workflowID, userID string) (*workflow.Workflow, error) {
	wf, err := s.workflow(ctx, workflowID, userID)
	if err != nil {
		return nil, err
	}
	p, err := plan.Compile(wf.Definition, s.deps.Catalog, s.planOptions())
	if err != nil {
		return nil, err
	}
	raw, err := p.Encode()
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	cost, err := p.Credits(s.deps.Catalog)
	if err != nil {
		return nil, err
	}

	wf.NextRunAt = nil
	if wf.Cron != "" {
		next, err := s.nextRun(wf.Cron, s.now())
		if err != nil {
			return nil, apperrors.InvalidInput("cron", err.Error())
		}
		wf.NextRunAt = &next
	}
	wf.Published = true
	wf.Plan = raw
	wf.Credits = cost
	if err := s.deps.Store.SaveWorkflow(ctx, wf); err != nil {
		return nil, database.FromDatabase(err, "workflow")
	}
	s.log.Info("Workflow published", map[string]interface{}{
		logger.FieldWorkflowID: wf.ID,
		"credits":              cost,
		"phases":               len(p.Phases),
	})
	return wf, nil
}

// Unpublish returns the workflow to draft and stops its schedule.
func (s *Service) Unpublish(ctx context.Context, workflowID, userID string) (*workflow.Workflow, error) {
	wf, err := s.workflow(ctx, workflowID, userID)
	if err != nil {
		return nil, err
	}
	wf.Published = false
	wf.Plan = nil
	wf.NextRunAt = nil
	if err := s.deps.Store.SaveWorkflow(ctx, wf); err != nil {
		return nil, database.FromDatabase(err, "workflow")
	}
	return wf, nil
}

// Import stores a workflow file as a new draft owned by userID. The
// definition must compile.
func (s *Service) Import(ctx context.Context, userID string, f *workflow.File) (*workflow.Workflow, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("userId", "is required")
	}
	p, err := plan.Compile(f.Definition, s.deps.Catalog, s.planOptions())
	if err != nil {
		return nil, err
	}
	cost, err := p.Credits(s.deps.Catalog)
	if err != nil {
		return nil, err
	}
	if f.Cron != "" {
		if _, err := s.nextRun(f.Cron, s.now()); err != nil {
			return nil, apperrors.InvalidInput("cron", err.Error())
		}
	}
	wf := &workflow.Workflow{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       f.Name,
		Definition: f.Definition,
		Settings:   f.Settings,
		Credits:    cost,
		Cron:       f.Cron,
	}
	if err := s.deps.Store.SaveWorkflow(ctx, wf); err != nil {
		return nil, database.FromDatabase(err, "workflow")
	}
	return wf, nil
}

// ExecutionView is an execution with its phase records in plan order.
type ExecutionView struct {
	Execution *workflow.Execution     `json:"execution"`
	Phases    []*workflow.PhaseRecord `json:"phases"`
}

// Execution returns an execution and its records. A non-empty userID must
// own it.
func (s *Service) Execution(ctx context.Context, executionID, userID string) (*ExecutionView, error) {
	exec, err := s.deps.Store.GetExecution(ctx, executionID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && userID != "" && exec.UserID != userID) {
		return nil, apperrors.NotFound("execution", executionID)
	}
	if err != nil {
		return nil, database.FromDatabase(err, "execution")
	}
	records, err := s.deps.Store.ListPhaseRecords(ctx, executionID)
	if err != nil {
		return nil, database.FromDatabase(err, "execution")
	}
	return &ExecutionView{Execution: exec, Phases: records}, nil
}

func (s *Service) nextRun(expr string, after time.Time) (time.Time, error) {
	sched, err := s.parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(after), nil
}

// Wait blocks until every dispatched run has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown waits for in-flight runs. When ctx expires first, the runs are
// cancelled (they fail before their next phase) and awaited.
func (s *Service) Shutdown(ctx context.Context) error {
	err := s.Wait(ctx)
	if err == nil {
		return nil
	}
	s.log.Warn("Drain timed out, cancelling in-flight executions", logger.ErrorFields("shutdown", err))
	s.cancel()
	s.wg.Wait()
	return err
}
