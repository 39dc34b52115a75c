package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/kbukum/flowgate/credits"
	"github.com/kbukum/flowgate/idempotency"
	"github.com/kbukum/flowgate/logger"
	"github.com/kbukum/flowgate/orchestrator"
	"github.com/kbukum/flowgate/pool"
	"github.com/kbukum/flowgate/store"
	"github.com/kbukum/flowgate/workflow"
)

func TestTrigger_RunsThroughOrchestrator(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(nil)
	catalog := testCatalog()
	ledger := credits.NewMemoryLedger()
	ledger.Grant("u1", 20)

	executors := orchestrator.NewRegistry()
	_ = executors.Register(taskStart, orchestrator.ExecutorFunc(func(_ context.Context, n *orchestrator.NodeEnv) error {
		n.SetOutput("Out", "hello")
		return nil
	}))
	_ = executors.Register(taskStep, orchestrator.ExecutorFunc(func(_ context.Context, n *orchestrator.NodeEnv) error {
		n.SetOutput("Out", n.Input("In")+" world")
		return nil
	}))

	p, err := pool.New(pool.Config{}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	orch, err := orchestrator.New(orchestrator.Deps{
		Catalog:   catalog,
		Executors: executors,
		Ledger:    ledger,
		Store:     st,
		Pool:      p,
	}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	svc, err := New(Config{}, Deps{
		Store:       st,
		Catalog:     catalog,
		Runner:      orch,
		Idempotency: idempotency.NewCoordinator(idempotency.Config{}, nil, logger.NewNop()),
	}, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if err := st.SaveWorkflow(ctx, &workflow.Workflow{ID: "wf1", UserID: "u1", Definition: twoStep()}); err != nil {
		t.Fatal(err)
	}
	res, err := svc.Trigger(ctx, Request{WorkflowID: "wf1", UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := svc.Wait(waitCtx); err != nil {
		t.Fatal(err)
	}

	view, err := svc.Execution(ctx, res.ExecutionID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if view.Execution.Status != workflow.ExecutionCompleted || view.Execution.CreditsConsumed != 5 {
		t.Fatalf("execution = %+v", view.Execution)
	}
	if len(view.Phases) != 2 || view.Phases[1].Outputs["Out"] != "hello world" {
		t.Errorf("phases = %+v", view.Phases)
	}
	if balance, _ := ledger.Balance(ctx, "u1"); balance != 15 {
		t.Errorf("balance = %d, want 15", balance)
	}
	wf, _ := st.GetWorkflow(ctx, "wf1")
	if wf.LastRunID != res.ExecutionID || wf.LastRunStatus != workflow.ExecutionCompleted {
		t.Errorf("last run = %s %s", wf.LastRunID, wf.LastRunStatus)
	}
}
