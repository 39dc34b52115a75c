package invalidation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kbukum/flowgate/logger"
)

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject, f.data = subject, data
	return f.err
}

func TestNATSNotifier_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	n := NewNATSNotifier(pub, "flowgate", nil)

	err := n.Invalidate(context.Background(), Event{WorkflowID: "wf-1", ExecutionID: "e1", Status: "COMPLETED"})
	if err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if pub.subject != "flowgate.workflow.wf-1" {
		t.Errorf("unexpected subject %q", pub.subject)
	}

	var got Event
	if err := json.Unmarshal(pub.data, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.ExecutionID != "e1" || got.Status != "COMPLETED" || got.At.IsZero() {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestNATSNotifier_PublishError(t *testing.T) {
	n := NewNATSNotifier(&fakePublisher{err: errors.New("no responders")}, "flowgate", nil)
	if err := n.Invalidate(context.Background(), Event{WorkflowID: "wf-1"}); err == nil {
		t.Error("expected publish error")
	}
}

func TestComponent_InvalidateBeforeStart(t *testing.T) {
	c := NewComponent(Config{}, loggerNop())
	if err := c.Invalidate(context.Background(), Event{WorkflowID: "wf-1"}); err != nil {
		t.Errorf("expected no-op before start, got %v", err)
	}
	if h := c.Health(context.Background()); h.Status != "degraded" {
		t.Errorf("expected degraded health, got %s", h.Status)
	}
}

func loggerNop() *logger.Logger { return logger.NewNop() }
