package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/kbukum/flowgate/errors"
	"github.com/kbukum/flowgate/idempotency"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/plan"
	"github.com/kbukum/flowgate/store"
	"github.com/kbukum/flowgate/workflow"
)

const (
	taskStart = "START"
	taskStep  = "STEP"
)

var epoch = time.Date(2026, 3, 1, 12, 2, 0, 0, time.UTC)

func testCatalog() *workflow.MapCatalog {
	return workflow.NewCatalog(
		workflow.TaskDefinition{
			Type:       taskStart,
			Outputs:    []workflow.Param{{Name: "Out", Kind: workflow.ParamString}},
			Credits:    3,
			EntryPoint: true,
		},
		workflow.TaskDefinition{
			Type:    taskStep,
			Inputs:  []workflow.Param{{Name: "In", Kind: workflow.ParamString, Required: true}},
			Outputs: []workflow.Param{{Name: "Out", Kind: workflow.ParamString}},
			Credits: 2,
		},
	)
}

func twoStep() workflow.Definition {
	return workflow.Definition{
		Nodes: []workflow.Node{{ID: "a", TaskType: taskStart}, {ID: "b", TaskType: taskStep}},
		Edges: []workflow.Edge{{Source: "a", SourceHandle: "Out", Target: "b", TargetHandle: "In"}},
	}
}

// fakeRunner records prepared executions. Run blocks on block when set.
type fakeRunner struct {
	mu    sync.Mutex
	plans []*plan.ExecutionPlan
	execs []*workflow.Execution
	runs  atomic.Int32
	block chan struct{}
}

func (r *fakeRunner) Prepare(_ context.Context, wf *workflow.Workflow, p *plan.ExecutionPlan, src workflow.TriggerSource) (*workflow.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	exec := &workflow.Execution{
		ID:         fmt.Sprintf("exec-%d", len(r.execs)+1),
		WorkflowID: wf.ID,
		UserID:     wf.UserID,
		Status:     workflow.ExecutionPending,
		Trigger:    src,
	}
	r.plans = append(r.plans, p)
	r.execs = append(r.execs, exec)
	return exec, nil
}

func (r *fakeRunner) Run(ctx context.Context, _ *workflow.Workflow, exec *workflow.Execution) (*workflow.Execution, error) {
	r.runs.Add(1)
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return exec, nil
}

func (r *fakeRunner) prepared() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.execs)
}

type fixture struct {
	t      *testing.T
	store  *store.MemoryStore
	runner *fakeRunner
	clock  *clock
	svc    *Service
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		store:  store.NewMemoryStore(nil),
		runner: &fakeRunner{},
		clock:  &clock{now: epoch},
	}
	svc, err := New(Config{}, Deps{
		Store:       f.store,
		Catalog:     testCatalog(),
		Runner:      f.runner,
		Idempotency: idempotency.NewCoordinator(idempotency.Config{}, nil, logger.NewNop()),
	}, logger.NewNop(), WithClock(f.clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	f.svc = svc
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return f
}

func (f *fixture) save(wf *workflow.Workflow) {
	f.t.Helper()
	if wf.UserID == "" {
		wf.UserID = "u1"
	}
	if len(wf.Definition.Nodes) == 0 {
		wf.Definition = twoStep()
	}
	if err := f.store.SaveWorkflow(context.Background(), wf); err != nil {
		f.t.Fatal(err)
	}
}

func (f *fixture) wait() {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.svc.Wait(ctx); err != nil {
		f.t.Fatalf("wait: %v", err)
	}
}

func conflictCached(t *testing.T, err error) any {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeIdempotencyConflict {
		t.Fatalf("err = %v, want IDEMPOTENCY_CONFLICT", err)
	}
	return appErr.Details["cached"]
}

func TestTrigger_AcceptsThenReplaysDuplicate(t *testing.T) {
	f := newFixture(t)
	f.save(&workflow.Workflow{ID: "wf1"})
	ctx := context.Background()

	res, err := f.svc.Trigger(ctx, Request{WorkflowID: "wf1", UserID: "u1", IdempotencyKey: "k1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusAccepted || res.ExecutionID != "exec-1" {
		t.Fatalf("result = %+v", res)
	}

	_, err = f.svc.Trigger(ctx, Request{WorkflowID: "wf1", UserID: "u1", IdempotencyKey: "k1"})
	cached, ok := conflictCached(t, err).(Result)
	if !ok || cached != *res {
		t.Errorf("cached = %#v, want %#v", cached, *res)
	}

	f.wait()
	if got := f.runner.runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestTrigger_CallerKeyScopedToUserAndWorkflow(t *testing.T) {
	f := newFixture(t)
	f.save(&workflow.Workflow{ID: "wf-alice", UserID: "alice"})
	f.save(&workflow.Workflow{ID: "wf-bob", UserID: "bob"})
	ctx := context.Background()

	alice, err := f.svc.Trigger(ctx, Request{WorkflowID: "wf-alice", UserID: "alice", IdempotencyKey: "order-1"})
	if err != nil {
		t.Fatalf("alice: %v", err)
	}
	bob, err := f.svc.Trigger(ctx, Request{WorkflowID: "wf-bob", UserID: "bob", IdempotencyKey: "order-1"})
	if err != nil {
		t.Fatalf("bob: %v", err)
	}
	if alice.ExecutionID == bob.ExecutionID {
		t.Errorf("both triggers share execution %s", alice.ExecutionID)
	}

	f.wait()
	if got := f.runner.runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestTrigger_ConcurrentDuplicatesRunOnce(t *testing.T) {
	f := newFixture(t)
	f.save(&workflow.Workflow{ID: "wf1"})

	var (
		wg       sync.WaitGroup
		accepted atomic.Int32
		conflict atomic.Int32
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Trigger(context.Background(), Request{WorkflowID: "wf1", IdempotencyKey: "same"})
			switch {
			case err == nil:
				accepted.Add(1)
			case apperrors.HasCode(err, apperrors.ErrCodeIdempotencyConflict):
				conflict.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	f.wait()

	if accepted.Load() != 1 || conflict.Load() != 15 {
		t.Errorf("accepted=%d conflict=%d, want 1/15", accepted.Load(), conflict.Load())
	}
	if got := f.runner.prepared(); got != 1 {
		t.Errorf("prepared = %d, want 1", got)
	}
}

func TestTrigger_DerivedKeyBucketsByTime(t *testing.T) {
	f := newFixture(t)
	f.save(&workflow.Workflow{ID: "wf1"})
	ctx := context.Background()
	req := Request{WorkflowID: "wf1"}

	if _, err := f.svc.Trigger(ctx, req); err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(10 * time.Second)
	if _, err := f.svc.Trigger(ctx, req); !apperrors.HasCode(err, apperrors.ErrCodeIdempotencyConflict) {
		t.Fatalf("same bucket: err = %v, want conflict", err)
	}
	f.clock.Advance(time.Minute)
	if _, err := f.svc.Trigger(ctx, req); err != nil {
		t.Fatalf("next bucket: %v", err)
	}
}

func TestTrigger_Rejections(t *testing.T) {
	f := newFixture(t)
	f.save(&workflow.Workflow{ID: "draft"})
	f.save(&workflow.Workflow{ID: "theirs", UserID: "u2"})
	f.save(&workflow.Workflow{ID: "broken", Definition: workflow.Definition{
		Nodes: []workflow.Node{{ID: "b", TaskType: taskStep}},
	}})

	tests := []struct {
		name string
		req  Request
		code apperrors.ErrorCode
	}{
		{"missing id", Request{}, apperrors.ErrCodeInvalidInput},
		{"unknown workflow", Request{WorkflowID: "nope", IdempotencyKey: "k1"}, apperrors.ErrCodeNotFound},
		{"other owner", Request{WorkflowID: "theirs", UserID: "u1", IdempotencyKey: "k2"}, apperrors.ErrCodeNotFound},
		{"api needs published", Request{WorkflowID: "draft", Source: workflow.TriggerAPI, IdempotencyKey: "k3"}, apperrors.ErrCodeInvalidInput},
		{"no entry point", Request{WorkflowID: "broken", IdempotencyKey: "k4"}, apperrors.ErrCodeNoEntryPoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Trigger(context.Background(), tt.req)
			if !apperrors.HasCode(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
	if got := f.runner.prepared(); got != 0 {
		t.Errorf("prepared = %d, want 0", got)
	}

	// A failed trigger is replayed with its code rather than re-run.
	_, err := f.svc.Trigger(context.Background(), Request{WorkflowID: "nope", IdempotencyKey: "k1"})
	cached, ok := conflictCached(t, err).(Result)
	if !ok || cached.Status != StatusRejected || cached.Code != string(apperrors.ErrCodeNotFound) {
		t.Errorf("cached = %#v", cached)
	}
}

func TestPublish_FreezesPlanAndSchedules(t *testing.T) {
	f := newFixture(t)
	f.save(&workflow.Workflow{ID: "wf1", Cron: "*/5 * * * *"})
	ctx := context.Background()

	wf, err := f.svc.Publish(ctx, "wf1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !wf.Published || len(wf.Plan) == 0 || wf.Credits != 5 {
		t.Fatalf("published = %v plan=%d credits=%d", wf.Published, len(wf.Plan), wf.Credits)
	}
	want := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	if wf.NextRunAt == nil || !wf.NextRunAt.Equal(want) {
		t.Errorf("next run = %v, want %v", wf.NextRunAt, want)
	}

	// Editing the draft does not change what a published run executes.
	stored, _ := f.store.GetWorkflow(ctx, "wf1")
	stored.Definition = workflow.Definition{Nodes: []workflow.Node{{ID: "a", TaskType: taskStart}}}
	if err := f.store.SaveWorkflow(ctx, stored); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Trigger(ctx, Request{WorkflowID: "wf1", Source: workflow.TriggerAPI}); err != nil {
		t.Fatal(err)
	}
	if n := f.runner.plans[0].NodeCount(); n != 2 {
		t.Errorf("frozen plan nodes = %d, want 2", n)
	}

	wf, err = f.svc.Unpublish(ctx, "wf1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if wf.Published || wf.Plan != nil || wf.NextRunAt != nil {
		t.Errorf("unpublished = %+v", wf)
	}
}

func TestPublish_Rejections(t *testing.T) {
	f := newFixture(t)
	f.save(&workflow.Workflow{ID: "badcron", Cron: "every tuesday"})
	f.save(&workflow.Workflow{ID: "theirs", UserID: "u2"})

	if _, err := f.svc.Publish(context.Background(), "badcron", "u1"); !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("bad cron: %v", err)
	}
	if _, err := f.svc.Publish(context.Background(), "theirs", "u1"); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("other owner: %v", err)
	}
}

func TestSweep_TriggersDueOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	past := epoch.Add(-time.Minute)
	future := epoch.Add(time.Hour)
	f.save(&workflow.Workflow{ID: "due1", Published: true, Cron: "*/5 * * * *", NextRunAt: &past})
	f.save(&workflow.Workflow{ID: "due2", Published: true, Cron: "@hourly", NextRunAt: &past})
	f.save(&workflow.Workflow{ID: "later", Published: true, Cron: "*/5 * * * *", NextRunAt: &future})
	f.save(&workflow.Workflow{ID: "invalid", Published: true, Cron: "nonsense", NextRunAt: &past})

	report, err := f.svc.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Due != 3 || report.Triggered != 2 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}

	due1, _ := f.store.GetWorkflow(ctx, "due1")
	if want := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC); due1.NextRunAt == nil || !due1.NextRunAt.Equal(want) {
		t.Errorf("due1 next = %v, want %v", due1.NextRunAt, want)
	}
	invalid, _ := f.store.GetWorkflow(ctx, "invalid")
	if invalid.NextRunAt != nil {
		t.Errorf("invalid cron still scheduled at %v", invalid.NextRunAt)
	}

	report, err = f.svc.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Due != 0 {
		t.Errorf("second sweep due = %d, want 0", report.Due)
	}

	// A sweep that still sees the old schedule does not start it again.
	if err := f.store.UpdateWorkflowNextRun(ctx, "due1", &past); err != nil {
		t.Fatal(err)
	}
	report, err = f.svc.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Duplicates != 1 || report.Triggered != 0 {
		t.Errorf("overlapping sweep = %+v", report)
	}

	f.wait()
	if got := f.runner.runs.Load(); got != 2 {
		t.Errorf("runs = %d, want 2", got)
	}
}

func TestShutdown_CancelsRunsAfterDeadline(t *testing.T) {
	f := newFixture(t)
	f.runner.block = make(chan struct{})
	f.save(&workflow.Workflow{ID: "wf1"})

	if _, err := f.svc.Trigger(context.Background(), Request{WorkflowID: "wf1"}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := f.svc.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("shutdown = %v, want deadline exceeded", err)
	}
	if got := f.runner.runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestTrigger_RequestCancelDoesNotStopRun(t *testing.T) {
	f := newFixture(t)
	f.runner.block = make(chan struct{})
	f.save(&workflow.Workflow{ID: "wf1"})

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := f.svc.Trigger(ctx, Request{WorkflowID: "wf1"}); err != nil {
		t.Fatal(err)
	}
	cancel()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	if err := f.svc.Wait(waitCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run ended with its request: %v", err)
	}
	close(f.runner.block)
	f.wait()
}

func TestExecution_View(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	exec := &workflow.Execution{ID: "e1", WorkflowID: "wf1", UserID: "u1", Status: workflow.ExecutionPending}
	records := []*workflow.PhaseRecord{
		{ID: "r1", ExecutionID: "e1", PhaseNumber: 1, Node: workflow.Node{ID: "a", TaskType: taskStart}, Status: workflow.PhaseCreated},
	}
	if err := f.store.CreateExecution(ctx, exec, records); err != nil {
		t.Fatal(err)
	}

	view, err := f.svc.Execution(ctx, "e1", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if view.Execution.ID != "e1" || len(view.Phases) != 1 {
		t.Errorf("view = %+v", view)
	}
	if _, err := f.svc.Execution(ctx, "e1", "u2"); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("other owner: %v", err)
	}
	if _, err := f.svc.Execution(ctx, "missing", ""); !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		t.Errorf("missing: %v", err)
	}
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf, err := f.svc.Import(ctx, "u1", &workflow.File{Name: "two", Cron: "@daily", Definition: twoStep()})
	if err != nil {
		t.Fatal(err)
	}
	if wf.ID == "" || wf.Published || wf.Credits != 5 {
		t.Errorf("imported = %+v", wf)
	}
	if _, err := f.store.GetWorkflow(ctx, wf.ID); err != nil {
		t.Errorf("not stored: %v", err)
	}

	bad := &workflow.File{Name: "bad", Definition: workflow.Definition{Nodes: []workflow.Node{{ID: "b", TaskType: taskStep}}}}
	if _, err := f.svc.Import(ctx, "u1", bad); !apperrors.HasCode(err, apperrors.ErrCodeNoEntryPoint) {
		t.Errorf("bad graph: %v", err)
	}
}
