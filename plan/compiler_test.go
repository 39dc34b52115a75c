package plan

import (
	"encoding/json"
	"reflect"
	"sort"
	"testing"

	apperrors "github.com/kbukum/flowgate/errors"
	"github.com/kbukum/flowgate/resilience"
	"github.com/kbukum/flowgate/workflow"
)

// --- test helpers ---

func testCatalog() *workflow.MapCatalog {
	return workflow.NewCatalog(
		workflow.TaskDefinition{
			Type:       "START",
			Inputs:     []workflow.Param{{Name: "url", Required: true}},
			Outputs:    []workflow.Param{{Name: "page"}},
			Credits:    5,
			EntryPoint: true,
		},
		workflow.TaskDefinition{
			Type:    "STEP",
			Inputs:  []workflow.Param{{Name: "page", Required: true}, {Name: "hint"}},
			Outputs: []workflow.Param{{Name: "page"}},
			Credits: 2,
		},
		workflow.TaskDefinition{
			Type:    "MERGE",
			Inputs:  []workflow.Param{{Name: "left", Required: true}, {Name: "right", Required: true}},
			Outputs: []workflow.Param{{Name: "out"}},
			Credits: 1,
		},
	)
}

func node(id, taskType string, inputs map[string]string) workflow.Node {
	return workflow.Node{ID: id, TaskType: taskType, Inputs: inputs}
}

func edge(src, srcHandle, dst, dstHandle string) workflow.Edge {
	return workflow.Edge{Source: src, SourceHandle: srcHandle, Target: dst, TargetHandle: dstHandle}
}

func phaseIDs(p *ExecutionPlan) [][]string {
	var out [][]string
	for _, ph := range p.Phases {
		var ids []string
		for _, n := range ph.Nodes {
			ids = append(ids, n.ID)
		}
		sort.Strings(ids)
		out = append(out, ids)
	}
	return out
}

func invalidInputs(t *testing.T, err error) []InputError {
	t.Helper()
	appErr, ok := apperrors.AsAppError(err)
	if !ok || appErr.Code != apperrors.ErrCodeInvalidInputs {
		t.Fatalf("expected INVALID_INPUTS, got %v", err)
	}
	invalid, ok := appErr.Details["nodes"].([]InputError)
	if !ok {
		t.Fatalf("expected []InputError details, got %T", appErr.Details["nodes"])
	}
	return invalid
}

// --- Compile tests ---

func TestCompile_FanOut(t *testing.T) {
	def := workflow.Definition{
		Nodes: []workflow.Node{
			node("A", "START", map[string]string{"url": "https://example.com"}),
			node("B", "STEP", nil),
			node("C", "STEP", nil),
		},
		Edges: []workflow.Edge{
			edge("A", "page", "B", "page"),
			edge("A", "page", "C", "page"),
		},
	}

	p, err := Compile(def, testCatalog(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{{"A"}, {"B", "C"}}
	if got := phaseIDs(p); !reflect.DeepEqual(got, want) {
		t.Errorf("expected phases %v, got %v", want, got)
	}
	if p.Phases[1].Number != 2 {
		t.Errorf("expected phase number 2, got %d", p.Phases[1].Number)
	}
}

func TestCompile_ChainRespectsOrder(t *testing.T) {
	def := workflow.Definition{
		Nodes: []workflow.Node{
			node("D", "STEP", nil),
			node("C", "STEP", nil),
			node("B", "STEP", nil),
			node("A", "START", map[string]string{"url": "u"}),
		},
		Edges: []workflow.Edge{
			edge("A", "page", "B", "page"),
			edge("B", "page", "C", "page"),
			edge("C", "page", "D", "page"),
		},
	}

	p, err := Compile(def, testCatalog(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := [][]string{{"A"}, {"B"}, {"C"}, {"D"}}
	if got := phaseIDs(p); !reflect.DeepEqual(got, want) {
		t.Errorf("expected phases %v, got %v", want, got)
	}
	if p.NodeCount() != 4 {
		t.Errorf("expected 4 nodes, got %d", p.NodeCount())
	}
	if p.PhaseOf("C") != 3 {
		t.Errorf("expected C in phase 3, got %d", p.PhaseOf("C"))
	}
}

func TestCompile_NoEntryPoint(t *testing.T) {
	def := workflow.Definition{Nodes: []workflow.Node{node("B", "STEP", nil)}}

	_, err := Compile(def, testCatalog(), Options{})
	if !apperrors.HasCode(err, apperrors.ErrCodeNoEntryPoint) {
		t.Fatalf("expected NO_ENTRY_POINT, got %v", err)
	}
}

func TestCompile_UnknownTaskType(t *testing.T) {
	def := workflow.Definition{Nodes: []workflow.Node{node("X", "NOPE", nil)}}

	_, err := Compile(def, testCatalog(), Options{})
	if !apperrors.HasCode(err, apperrors.ErrCodeUnknownTaskType) {
		t.Fatalf("expected UNKNOWN_TASK_TYPE, got %v", err)
	}
}

func TestCompile_AndIgnoresUnconnectedOptional(t *testing.T) {
	def := workflow.Definition{
		Nodes: []workflow.Node{
			node("A", "START", map[string]string{"url": "u"}),
			node("B", "STEP", nil),
		},
		Edges: []workflow.Edge{edge("A", "page", "B", "page")},
	}

	p, err := Compile(def, testCatalog(), Options{})
	if err != nil {
		t.Fatalf("optional 'hint' should not block planning: %v", err)
	}
	if p.PhaseOf("B") != 2 {
		t.Errorf("expected B in phase 2, got %d", p.PhaseOf("B"))
	}
}

func TestCompile_EntryMissingLiteral(t *testing.T) {
	def := workflow.Definition{Nodes: []workflow.Node{node("A", "START", nil)}}

	_, err := Compile(def, testCatalog(), Options{})
	invalid := invalidInputs(t, err)
	want := []InputError{{NodeID: "A", Inputs: []string{"url"}}}
	if !reflect.DeepEqual(invalid, want) {
		t.Errorf("expected %v, got %v", want, invalid)
	}
}

func TestCompile_UnmetRequiredWithPlannedProducers(t *testing.T) {
	// B is fed by A but its required "page" is not connected.
	def := workflow.Definition{
		Nodes: []workflow.Node{
			node("A", "START", map[string]string{"url": "u"}),
			node("B", "STEP", nil),
		},
		Edges: []workflow.Edge{edge("A", "page", "B", "hint")},
	}

	_, err := Compile(def, testCatalog(), Options{})
	invalid := invalidInputs(t, err)
	want := []InputError{{NodeID: "B", Inputs: []string{"page"}}}
	if !reflect.DeepEqual(invalid, want) {
		t.Errorf("expected %v, got %v", want, invalid)
	}
}

func TestCompile_SourceNeverPlanned(t *testing.T) {
	// B and C feed each other, so neither is ever planned.
	def := workflow.Definition{
		Nodes: []workflow.Node{
			node("A", "START", map[string]string{"url": "u"}),
			node("B", "STEP", nil),
			node("C", "STEP", nil),
		},
		Edges: []workflow.Edge{
			edge("C", "page", "B", "page"),
			edge("B", "page", "C", "page"),
		},
	}

	_, err := Compile(def, testCatalog(), Options{})
	invalid := invalidInputs(t, err)
	want := []InputError{
		{NodeID: "B", Inputs: []string{"page"}},
		{NodeID: "C", Inputs: []string{"page"}},
	}
	if !reflect.DeepEqual(invalid, want) {
		t.Errorf("expected %v, got %v", want, invalid)
	}
}

func TestCompile_OrGateAnyPredecessor(t *testing.T) {
	// M waits on A (planned) and on X (stuck in a cycle with Y).
	merge := node("M", "MERGE", nil)
	merge.Gate = workflow.GateOr
	def := workflow.Definition{
		Nodes: []workflow.Node{
			node("A", "START", map[string]string{"url": "u"}),
			node("X", "STEP", nil),
			node("Y", "STEP", nil),
			merge,
		},
		Edges: []workflow.Edge{
			edge("A", "page", "M", "left"),
			edge("X", "page", "M", "right"),
			edge("X", "page", "Y", "page"),
			edge("Y", "page", "X", "page"),
		},
	}

	_, err := Compile(def, testCatalog(), Options{})
	invalid := invalidInputs(t, err)
	for _, ie := range invalid {
		if ie.NodeID == "M" {
			t.Errorf("OR node should be planned once one predecessor is planned, got %v", ie)
		}
	}
}

func TestCompile_OrGatePlannedInSecondPhase(t *testing.T) {
	merge := node("M", "MERGE", nil)
	merge.Gate = workflow.GateOr
	def := workflow.Definition{
		Nodes: []workflow.Node{
			node("A", "START", map[string]string{"url": "u"}),
			node("B", "STEP", nil),
			merge,
		},
		Edges: []workflow.Edge{
			edge("A", "page", "B", "page"),
			edge("A", "page", "M", "left"),
			edge("B", "page", "M", "right"),
		},
	}

	p, err := Compile(def, testCatalog(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PhaseOf("M") != 2 {
		t.Errorf("OR node should join phase 2 with B, got phase %d", p.PhaseOf("M"))
	}

	merge.Gate = workflow.GateAnd
	def.Nodes[2] = merge
	p, err = Compile(def, testCatalog(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.PhaseOf("M") != 3 {
		t.Errorf("AND node should wait for B, got phase %d", p.PhaseOf("M"))
	}
}

func TestCompile_EveryNodeOncePhasesBounded(t *testing.T) {
	def := workflow.Definition{
		Nodes: []workflow.Node{
			node("A", "START", map[string]string{"url": "u"}),
			node("B", "STEP", nil),
			node("C", "STEP", nil),
			node("M", "MERGE", nil),
		},
		Edges: []workflow.Edge{
			edge("A", "page", "B", "page"),
			edge("B", "page", "C", "page"),
			edge("A", "page", "M", "left"),
			edge("C", "page", "M", "right"),
		},
	}

	p, err := Compile(def, testCatalog(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(p.Phases) > len(def.Nodes) {
		t.Errorf("expected at most %d phases, got %d", len(def.Nodes), len(p.Phases))
	}
	seen := map[string]int{}
	for _, ph := range p.Phases {
		for _, n := range ph.Nodes {
			seen[n.ID]++
		}
	}
	for _, n := range def.Nodes {
		if seen[n.ID] != 1 {
			t.Errorf("node %s planned %d times", n.ID, seen[n.ID])
		}
	}
	for _, e := range def.Edges {
		if p.PhaseOf(e.Source) >= p.PhaseOf(e.Target) {
			t.Errorf("edge %s->%s violates phase order", e.Source, e.Target)
		}
	}
}

func TestCompile_DefaultRetryAttached(t *testing.T) {
	def := workflow.Definition{
		Nodes: []workflow.Node{
			node("A", "START", map[string]string{"url": "u"}),
			node("B", "STEP", nil),
		},
		Edges: []workflow.Edge{edge("A", "page", "B", "page")},
	}
	policy := resilience.DefaultRetryPolicy()

	p, err := Compile(def, testCatalog(), Options{DefaultRetry: &policy})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, ph := range p.Phases {
		if ph.Retry == nil || ph.Retry.MaxAttempts != policy.MaxAttempts {
			t.Errorf("phase %d missing default retry", ph.Number)
		}
	}

	p.WithPhaseRetry(2, resilience.NoRetry())
	if p.Phases[1].Retry.MaxAttempts != 1 {
		t.Errorf("expected phase 2 override, got %+v", p.Phases[1].Retry)
	}
}

// --- ExecutionPlan tests ---

func TestExecutionPlan_Credits(t *testing.T) {
	def := workflow.Definition{
		Nodes: []workflow.Node{
			node("A", "START", map[string]string{"url": "u"}),
			node("B", "STEP", nil),
			node("C", "STEP", nil),
		},
		Edges: []workflow.Edge{
			edge("A", "page", "B", "page"),
			edge("A", "page", "C", "page"),
		},
	}
	p, err := Compile(def, testCatalog(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cost, err := p.Credits(testCatalog())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cost != 9 {
		t.Errorf("expected cost 9, got %d", cost)
	}
}

func TestExecutionPlan_EncodeDecode(t *testing.T) {
	def := workflow.Definition{
		Nodes: []workflow.Node{node("A", "START", map[string]string{"url": "u"})},
	}
	p, err := Compile(def, testCatalog(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := p.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	restored, err := Decode(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(phaseIDs(restored), phaseIDs(p)) {
		t.Errorf("decoded plan differs: %v vs %v", phaseIDs(restored), phaseIDs(p))
	}

	if _, err := Decode(json.RawMessage(`{"phases":[]}`)); err == nil {
		t.Error("expected error for empty plan")
	}
}
