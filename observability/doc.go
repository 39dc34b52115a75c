// Package observability wires OpenTelemetry tracing and metrics.
//
// Spans are opened per trigger, execution and node with StartOperation;
// Metrics records execution and node outcomes and credit consumption.
// Without an enabled Component the global no-op providers are used.
package observability
