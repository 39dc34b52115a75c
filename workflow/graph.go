package workflow

// Gate selects how a node's inputs must be satisfied before it can be planned.
type Gate string

const (
	// GateAnd requires every required and every connected input.
	GateAnd Gate = "AND"
	// GateOr requires any one candidate input.
	GateOr Gate = "OR"
)

// Node is a task reference inside a workflow graph.
type Node struct {
	ID       string            `json:"id" yaml:"id" validate:"required"`
	TaskType string            `json:"taskType" yaml:"taskType" validate:"required"`
	Inputs   map[string]string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Gate     Gate              `json:"gate,omitempty" yaml:"gate,omitempty" validate:"omitempty,oneof=AND OR"`
}

// EffectiveGate returns the node gate, defaulting to AND.
func (n Node) EffectiveGate() Gate {
	if n.Gate == GateOr {
		return GateOr
	}
	return GateAnd
}

// Input returns the literal value of an input, if any.
func (n Node) Input(name string) (string, bool) {
	v, ok := n.Inputs[name]
	return v, ok && v != ""
}

// Edge is a directed link from a node output to a node input.
type Edge struct {
	Source       string `json:"source" yaml:"source" validate:"required"`
	SourceHandle string `json:"sourceHandle" yaml:"sourceHandle" validate:"required"`
	Target       string `json:"target" yaml:"target" validate:"required"`
	TargetHandle string `json:"targetHandle" yaml:"targetHandle" validate:"required"`
}

// Definition is the editable graph of a workflow.
type Definition struct {
	Nodes []Node `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
	Edges []Edge `json:"edges" yaml:"edges" validate:"dive"`
}

// IncomingEdge returns the edge feeding input handle of node, if any.
func (d Definition) IncomingEdge(nodeID, handle string) (Edge, bool) {
	for _, e := range d.Edges {
		if e.Target == nodeID && e.TargetHandle == handle {
			return e, true
		}
	}
	return Edge{}, false
}
