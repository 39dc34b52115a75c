// Package trigger is the entry point for executions.
//
// Service.Trigger reserves an idempotency key (the caller's token, or one
// derived from source, workflow and time bucket), loads the workflow,
// takes its frozen plan or compiles the draft, and asks the orchestrator to
// prepare and run the execution in the background. A second trigger with
// the same key gets IDEMPOTENCY_CONFLICT with the first result once known.
//
// Service.Sweep fires published workflows whose cron schedule is due.
// Component runs the sweep on an interval and drains in-flight executions
// on shutdown. Handler exposes the service over gin with the trigger
// secret, JWT and rate-limit middleware from server/middleware.
package trigger
