package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Executor performs the automation behind one task type.
type Executor interface {
	Execute(ctx context.Context, node *NodeEnv) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, node *NodeEnv) error

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, node *NodeEnv) error { return f(ctx, node) }

// Registry maps task types to executors.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor. Registering a type twice is an error.
func (r *Registry) Register(taskType string, e Executor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[taskType]; exists {
		return fmt.Errorf("executor for %q already registered", taskType)
	}
	r.executors[taskType] = e
	return nil
}

// Lookup returns the executor for taskType.
func (r *Registry) Lookup(taskType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[taskType]
	return e, ok
}

// Types lists registered task types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.executors))
	for t := range r.executors {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
