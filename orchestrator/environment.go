package orchestrator

import (
	"errors"
	"io"
	"maps"
	"math/rand/v2"
	"sync"
	"time"

	"dario.cat/mergo"

	"github.com/kbukum/flowgate/plan"
	"github.com/kbukum/flowgate/workflow"
)

// ResolveSettings merges workflow overrides over process defaults. Fields
// left unset in overrides (nil pointers, empty slices, zero durations)
// take the default.
func ResolveSettings(defaults, overrides workflow.Settings) (workflow.Settings, error) {
	merged := overrides
	merged.Politeness.UserAgents = append([]string(nil), overrides.Politeness.UserAgents...)
	merged.Network.ProxyPool = append([]string(nil), overrides.Network.ProxyPool...)
	if err := mergo.Merge(&merged, defaults); err != nil {
		return workflow.Settings{}, err
	}
	if merged.Politeness.MaxDelay < merged.Politeness.MinDelay {
		merged.Politeness.MaxDelay = merged.Politeness.MinDelay
	}
	return merged, nil
}

// Environment is the per-run state of one execution. It is never shared
// between executions.
type Environment struct {
	ExecutionID string
	WorkflowID  string
	UserID      string
	Settings    workflow.Settings

	plan        *plan.ExecutionPlan
	mu          sync.Mutex
	outputs     map[string]map[string]string
	browser     io.Closer
	session     map[string]string
	uaIndex     int
	proxyIndex  int
	lastRequest time.Time
}

func newEnvironment(exec *workflow.Execution, p *plan.ExecutionPlan, settings workflow.Settings) *Environment {
	return &Environment{
		ExecutionID: exec.ID,
		WorkflowID:  exec.WorkflowID,
		UserID:      exec.UserID,
		Settings:    settings,
		plan:        p,
		outputs:     make(map[string]map[string]string),
		session:     make(map[string]string),
	}
}

// Output returns an upstream node's output value.
func (e *Environment) Output(nodeID, name string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.outputs[nodeID][name]
	return v, ok
}

func (e *Environment) setOutputs(nodeID string, out map[string]string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outputs[nodeID] = maps.Clone(out)
}

// SetBrowser stores the shared browser handle, closing any previous one.
func (e *Environment) SetBrowser(b io.Closer) error {
	e.mu.Lock()
	prev := e.browser
	e.browser = b
	e.mu.Unlock()
	if prev != nil && prev != b {
		return prev.Close()
	}
	return nil
}

// Browser returns the shared browser handle, or nil before launch.
func (e *Environment) Browser() io.Closer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.browser
}

// Session returns a copy of the network session state (cookies, tokens).
func (e *Environment) Session() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.session)
}

// SetSession records session state when the workflow persists sessions.
func (e *Environment) SetSession(key, value string) {
	if p := e.Settings.Network.PersistSession; p != nil && !*p {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		e.session = make(map[string]string)
	}
	e.session[key] = value
}

// UserAgent returns the user agent for the next request, rotating through
// the configured list when rotation is on.
func (e *Environment) UserAgent() string {
	agents := e.Settings.Politeness.UserAgents
	if len(agents) == 0 {
		return ""
	}
	if r := e.Settings.Politeness.RotateUserAgent; r == nil || !*r {
		return agents[0]
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ua := agents[e.uaIndex%len(agents)]
	e.uaIndex++
	return ua
}

// Proxy returns the next proxy from the pool round-robin, or "" for none.
func (e *Environment) Proxy() string {
	pool := e.Settings.Network.ProxyPool
	if len(pool) == 0 {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	p := pool[e.proxyIndex%len(pool)]
	e.proxyIndex++
	return p
}

// RespectRobots reports whether robots.txt must be honoured.
func (e *Environment) RespectRobots() bool {
	r := e.Settings.Politeness.RespectRobots
	return r == nil || *r
}

// politenessDelay returns how long a network-sensitive node waits before
// running: a random pick within [MinDelay, MaxDelay], reduced by the time
// already elapsed since the previous network-sensitive node started.
func (e *Environment) politenessDelay(now time.Time) time.Duration {
	p := e.Settings.Politeness
	if p.MaxDelay <= 0 {
		return 0
	}
	delay := p.MinDelay
	if span := p.MaxDelay - p.MinDelay; span > 0 {
		delay += rand.N(span)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.lastRequest.IsZero() {
		delay -= now.Sub(e.lastRequest)
	}
	if delay < 0 {
		delay = 0
	}
	e.lastRequest = now.Add(delay)
	return delay
}

// Close releases the shared browser handle.
func (e *Environment) Close() error {
	e.mu.Lock()
	b := e.browser
	e.browser = nil
	e.mu.Unlock()
	if b == nil {
		return nil
	}
	return b.Close()
}

// NodeEnv is what an executor sees for one node run.
type NodeEnv struct {
	Env  *Environment
	Node workflow.Node
	// Inputs are resolved values; credential inputs hold the secret.
	Inputs map[string]string

	mu      sync.Mutex
	outputs map[string]string
	logs    []workflow.LogEntry
	now     func() time.Time
}

func newNodeEnv(env *Environment, node workflow.Node, inputs map[string]string, now func() time.Time) *NodeEnv {
	return &NodeEnv{Env: env, Node: node, Inputs: inputs, outputs: make(map[string]string), now: now}
}

// Input returns a resolved input value.
func (n *NodeEnv) Input(name string) string {
	return n.Inputs[name]
}

// SetOutput publishes an output for downstream nodes.
func (n *NodeEnv) SetOutput(name, value string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.outputs == nil {
		n.outputs = make(map[string]string)
	}
	n.outputs[name] = value
}

// Outputs returns a copy of the outputs set so far.
func (n *NodeEnv) Outputs() map[string]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return maps.Clone(n.outputs)
}

// Log appends a line to the node's phase record.
func (n *NodeEnv) Log(level workflow.LogLevel, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	now := time.Now
	if n.now != nil {
		now = n.now
	}
	n.logs = append(n.logs, workflow.LogEntry{Level: level, Message: msg, Timestamp: now()})
}

func (n *NodeEnv) snapshot() (map[string]string, []workflow.LogEntry) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return maps.Clone(n.outputs), append([]workflow.LogEntry(nil), n.logs...)
}

// resetOutputs drops outputs of a failed attempt before a retry.
func (n *NodeEnv) resetOutputs() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outputs = make(map[string]string)
}

// errMissingInput marks a required input that resolved to nothing.
var errMissingInput = errors.New("required input has no value")
