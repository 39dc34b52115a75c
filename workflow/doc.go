// Package workflow holds the flowgate domain model: graph nodes and edges,
// the task catalog describing each task type, workflows, executions and
// their per-node phase records.
package workflow
