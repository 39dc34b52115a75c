package credential

import (
	"context"

	"github.com/kbukum/flowgate/logger"
)

// Outcome is the result of a credential lookup.
type Outcome string

const (
	OutcomeResolved Outcome = "resolved"
	OutcomeNotFound Outcome = "not_found"
	OutcomeError    Outcome = "error"
)

// Event is one audited lookup.
type Event struct {
	CredentialID string
	UserID       string
	Outcome      Outcome
	Fingerprint  string
	Context      Context
}

// Auditor records credential lookups.
type Auditor interface {
	Record(ctx context.Context, e Event)
}

// NopAuditor discards events.
type NopAuditor struct{}

// Record implements Auditor.
func (NopAuditor) Record(context.Context, Event) {}

// LogAuditor writes events to the structured log.
type LogAuditor struct {
	log *logger.Logger
}

// NewLogAuditor creates a LogAuditor.
func NewLogAuditor(log *logger.Logger) *LogAuditor {
	return &LogAuditor{log: log.WithComponent("credential-audit")}
}

// Record implements Auditor.
func (a *LogAuditor) Record(ctx context.Context, e Event) {
	fields := map[string]interface{}{
		"credential_id":         e.CredentialID,
		logger.FieldUserID:      e.UserID,
		"outcome":               string(e.Outcome),
		logger.FieldExecutionID: e.Context.ExecutionID,
		logger.FieldNodeID:      e.Context.NodeID,
	}
	if e.Fingerprint != "" {
		fields["fingerprint"] = e.Fingerprint
	}
	l := a.log.WithContext(ctx)
	if e.Outcome == OutcomeResolved {
		l.Info("Credential resolved", fields)
		return
	}
	l.Warn("Credential lookup failed", fields)
}
