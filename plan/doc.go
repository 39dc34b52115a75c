// Package plan compiles a workflow graph into an ExecutionPlan: an ordered
// list of phases where every node's inputs are produced by strictly earlier
// phases. Nodes that share a phase may run in parallel.
package plan
