package credential

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a credential does not exist for the user.
var ErrNotFound = errors.New("credential: not found")

// Provider resolves a credential id to its plaintext value.
type Provider interface {
	Resolve(ctx context.Context, credentialID, userID string, meta Context) (string, error)
}

// Context describes why a credential is being resolved.
type Context struct {
	ExecutionID string
	NodeID      string
	TaskType    string
}

// SealedProvider keeps sealed credential values in memory.
type SealedProvider struct {
	sealer  *Sealer
	auditor Auditor

	mu     sync.RWMutex
	sealed map[string]string
}

// NewSealedProvider creates a provider. auditor may be nil.
func NewSealedProvider(sealer *Sealer, auditor Auditor) *SealedProvider {
	if auditor == nil {
		auditor = NopAuditor{}
	}
	return &SealedProvider{sealer: sealer, auditor: auditor, sealed: make(map[string]string)}
}

func storeKey(userID, credentialID string) string {
	return userID + "/" + credentialID
}

// Put seals and stores a value for the user.
func (p *SealedProvider) Put(userID, credentialID, value string) error {
	sealed, err := p.sealer.Seal(value, userID, credentialID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sealed[storeKey(userID, credentialID)] = sealed
	return nil
}

// Resolve implements Provider.
func (p *SealedProvider) Resolve(ctx context.Context, credentialID, userID string, meta Context) (string, error) {
	p.mu.RLock()
	sealed, ok := p.sealed[storeKey(userID, credentialID)]
	p.mu.RUnlock()

	event := Event{CredentialID: credentialID, UserID: userID, Context: meta}
	if !ok {
		event.Outcome = OutcomeNotFound
		p.auditor.Record(ctx, event)
		return "", ErrNotFound
	}

	value, err := p.sealer.Open(sealed, userID, credentialID)
	if err != nil {
		event.Outcome = OutcomeError
		p.auditor.Record(ctx, event)
		return "", err
	}

	event.Outcome = OutcomeResolved
	event.Fingerprint = p.sealer.Fingerprint(value)
	p.auditor.Record(ctx, event)
	return value, nil
}
