// Package invalidation tells caches that a workflow's run state changed.
// The NATS notifier publishes one JSON event per finished execution on
// "<prefix>.workflow.<workflowId>".
package invalidation
