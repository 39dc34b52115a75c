// Package idempotency collapses duplicate triggers into one logical
// execution.
//
// A Coordinator reserves a key before any execution record is created and
// completes it with a replayable response once the run is dispatched.
// Records live in a Backend: Redis for cross-instance correctness, or a
// process-local map. When the shared backend fails the coordinator degrades
// to its local map rather than rejecting traffic.
package idempotency
