package plan

import (
	apperrors "github.com/kbukum/flowgate/errors"
	"github.com/kbukum/flowgate/resilience"
	"github.com/kbukum/flowgate/workflow"
)

// InputError names a node and the inputs that can never be satisfied.
type InputError struct {
	NodeID string   `json:"nodeId"`
	Inputs []string `json:"inputs"`
}

// Options tunes compilation.
type Options struct {
	// DefaultRetry is attached to every phase when set.
	DefaultRetry *resilience.RetryPolicy
}

// Compile turns a graph into an ExecutionPlan.
//
// Phase 1 holds the first node whose task type is flagged as an entry point.
// Every further pass collects the unplanned nodes whose gate is satisfied by
// nodes planned in earlier passes, so members of one phase never feed each
// other. A node whose producers are all planned but whose inputs are still
// unmet is reported in an INVALID_INPUTS error. Compilation stops when every
// node is planned or a pass makes no progress; anything left over is also
// reported as INVALID_INPUTS.
func Compile(def workflow.Definition, catalog workflow.Catalog, opts Options) (*ExecutionPlan, error) {
	tasks := make(map[string]workflow.TaskDefinition, len(def.Nodes))
	var entry *workflow.Node
	for i := range def.Nodes {
		n := &def.Nodes[i]
		td, ok := catalog.Definition(n.TaskType)
		if !ok {
			return nil, apperrors.UnknownTaskType(n.TaskType).WithDetail("nodeId", n.ID)
		}
		tasks[n.ID] = td
		if entry == nil && td.EntryPoint {
			entry = n
		}
	}
	if entry == nil {
		return nil, apperrors.NoEntryPoint()
	}

	c := &compiler{def: def, tasks: tasks, planned: map[string]bool{}}

	if unmet := c.unmet(*entry); len(unmet) > 0 {
		c.invalid = append(c.invalid, InputError{NodeID: entry.ID, Inputs: unmet})
	}
	out := &ExecutionPlan{Phases: []Phase{{Number: 1, Nodes: []workflow.Node{*entry}}}}
	c.planned[entry.ID] = true

	total := len(def.Nodes)
	for number := 2; number <= total && len(c.planned) < total; number++ {
		var ready []workflow.Node
		for _, n := range def.Nodes {
			if c.planned[n.ID] {
				continue
			}
			if unmet := c.unmet(n); len(unmet) > 0 {
				if !c.incomersPlanned(n.ID) {
					continue
				}
				c.invalid = append(c.invalid, InputError{NodeID: n.ID, Inputs: unmet})
			}
			ready = append(ready, n)
		}
		if len(ready) == 0 {
			break
		}
		for _, n := range ready {
			c.planned[n.ID] = true
		}
		out.Phases = append(out.Phases, Phase{Number: number, Nodes: ready})
	}

	for _, n := range def.Nodes {
		if !c.planned[n.ID] {
			c.invalid = append(c.invalid, InputError{NodeID: n.ID, Inputs: c.unmet(n)})
		}
	}
	if len(c.invalid) > 0 {
		return nil, apperrors.InvalidInputs(c.invalid)
	}

	out.Edges = append([]workflow.Edge(nil), def.Edges...)
	if opts.DefaultRetry != nil {
		for i := range out.Phases {
			rp := *opts.DefaultRetry
			out.Phases[i].Retry = &rp
		}
	}
	return out, nil
}

type compiler struct {
	def     workflow.Definition
	tasks   map[string]workflow.TaskDefinition
	planned map[string]bool
	invalid []InputError
}

// unmet returns the inputs of n that block planning under its gate.
func (c *compiler) unmet(n workflow.Node) []string {
	var unmet []string
	anySatisfied := false

	for _, in := range c.tasks[n.ID].Inputs {
		if _, ok := n.Input(in.Name); ok {
			anySatisfied = true
			continue
		}
		edge, connected := c.def.IncomingEdge(n.ID, in.Name)
		if connected && c.planned[edge.Source] {
			anySatisfied = true
			continue
		}
		if !in.Required && !connected {
			continue
		}
		unmet = append(unmet, in.Name)
	}

	if n.EffectiveGate() == workflow.GateOr && anySatisfied {
		return nil
	}
	return unmet
}

func (c *compiler) incomersPlanned(nodeID string) bool {
	for _, e := range c.def.Edges {
		if e.Target == nodeID && !c.planned[e.Source] {
			return false
		}
	}
	return true
}
