// Package endpoint provides the operational HTTP handlers: health,
// liveness and pool statistics.
package endpoint
