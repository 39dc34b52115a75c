package plan

import (
	"encoding/json"
	"fmt"

	"github.com/kbukum/flowgate/resilience"
	"github.com/kbukum/flowgate/workflow"
)

// Phase is a set of nodes that only depend on earlier phases.
type Phase struct {
	Number int                     `json:"phase"`
	Nodes  []workflow.Node         `json:"nodes"`
	Retry  *resilience.RetryPolicy `json:"retry,omitempty"`
}

// ExecutionPlan is the ordered list of phases for one workflow.
type ExecutionPlan struct {
	Phases []Phase `json:"phases"`
	// Edges wire node outputs to inputs at run time, frozen with the plan.
	Edges []workflow.Edge `json:"edges,omitempty"`
}

// IncomingEdge returns the edge feeding input handle of node, if any.
func (p *ExecutionPlan) IncomingEdge(nodeID, handle string) (workflow.Edge, bool) {
	return workflow.Definition{Edges: p.Edges}.IncomingEdge(nodeID, handle)
}

// NodeCount returns the number of planned nodes.
func (p *ExecutionPlan) NodeCount() int {
	n := 0
	for _, ph := range p.Phases {
		n += len(ph.Nodes)
	}
	return n
}

// PhaseOf returns the phase number of a node, or 0 when absent.
func (p *ExecutionPlan) PhaseOf(nodeID string) int {
	for _, ph := range p.Phases {
		for _, n := range ph.Nodes {
			if n.ID == nodeID {
				return ph.Number
			}
		}
	}
	return 0
}

// Credits returns the statically known cost of running every node once.
func (p *ExecutionPlan) Credits(catalog workflow.Catalog) (int64, error) {
	var total int64
	for _, ph := range p.Phases {
		for _, n := range ph.Nodes {
			def, ok := catalog.Definition(n.TaskType)
			if !ok {
				return 0, fmt.Errorf("plan: unknown task type %q", n.TaskType)
			}
			total += def.Credits
		}
	}
	return total, nil
}

// WithPhaseRetry attaches a retry policy to one phase.
func (p *ExecutionPlan) WithPhaseRetry(number int, policy resilience.RetryPolicy) *ExecutionPlan {
	for i := range p.Phases {
		if p.Phases[i].Number == number {
			rp := policy
			p.Phases[i].Retry = &rp
		}
	}
	return p
}

// Encode serialises the plan for freezing on a published workflow.
func (p *ExecutionPlan) Encode() (json.RawMessage, error) {
	return json.Marshal(p)
}

// Decode restores a frozen plan.
func Decode(raw json.RawMessage) (*ExecutionPlan, error) {
	var p ExecutionPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("plan: decode: %w", err)
	}
	if len(p.Phases) == 0 {
		return nil, fmt.Errorf("plan: decode: no phases")
	}
	return &p, nil
}
