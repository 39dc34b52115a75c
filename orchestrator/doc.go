// Package orchestrator runs compiled execution plans.
//
// An Orchestrator prepares an execution (one CREATED phase record per
// planned node), checks the plan's static credit cost against the user's
// balance, then runs phase after phase. Nodes of a phase run concurrently,
// bounded by the browser and page pools. Each node resolves its inputs from
// upstream outputs or literals, waits out the politeness delay when it
// touches the network, is debited, and calls its Executor under the phase
// retry policy. A failed node ends the execution after its phase settles.
//
// Executors are registered per task type in a Registry and receive a
// NodeEnv bound to the execution's Environment, which holds the shared
// browser handle and session state for the run.
package orchestrator
