package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// ParamKind describes how an input value is resolved at run time.
type ParamKind string

const (
	ParamString     ParamKind = "STRING"
	ParamCredential ParamKind = "CREDENTIAL"
	ParamBrowser    ParamKind = "BROWSER_INSTANCE"
)

// ResourceClass names the concurrency pool class a task occupies.
type ResourceClass string

const (
	ResourceNone    ResourceClass = ""
	ResourceBrowser ResourceClass = "browser"
	ResourcePage    ResourceClass = "page"
)

// Param declares a task input or output.
type Param struct {
	Name     string    `json:"name" yaml:"name"`
	Kind     ParamKind `json:"kind" yaml:"kind"`
	Required bool      `json:"required" yaml:"required"`
}

// TaskDefinition declares the static shape and cost of a task type.
type TaskDefinition struct {
	Type             string        `json:"type" yaml:"type"`
	Inputs           []Param       `json:"inputs" yaml:"inputs"`
	Outputs          []Param       `json:"outputs" yaml:"outputs"`
	Credits          int64         `json:"credits" yaml:"credits"`
	Resource         ResourceClass `json:"resource" yaml:"resource"`
	EntryPoint       bool          `json:"entryPoint" yaml:"entryPoint"`
	NetworkSensitive bool          `json:"networkSensitive" yaml:"networkSensitive"`
}

// Param returns the named input declaration.
func (d TaskDefinition) Param(name string) (Param, bool) {
	for _, p := range d.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// Catalog resolves task definitions by type.
type Catalog interface {
	Definition(taskType string) (TaskDefinition, bool)
}

// MapCatalog is a thread-safe in-memory Catalog.
type MapCatalog struct {
	mu    sync.RWMutex
	tasks map[string]TaskDefinition
}

// NewCatalog creates a catalog seeded with defs.
func NewCatalog(defs ...TaskDefinition) *MapCatalog {
	c := &MapCatalog{tasks: make(map[string]TaskDefinition, len(defs))}
	for _, d := range defs {
		c.tasks[d.Type] = d
	}
	return c
}

// Register adds or replaces a task definition.
func (c *MapCatalog) Register(def TaskDefinition) error {
	if def.Type == "" {
		return fmt.Errorf("workflow: task definition without type")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[def.Type] = def
	return nil
}

// Definition implements Catalog.
func (c *MapCatalog) Definition(taskType string) (TaskDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.tasks[taskType]
	return d, ok
}

// Types returns the sorted registered task types.
func (c *MapCatalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	types := make([]string, 0, len(c.tasks))
	for t := range c.tasks {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
