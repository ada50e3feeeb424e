package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/liamcoop/formsync/airtable"
)

// PendingLogins remembers the PKCE verifier of each login between the
// redirect to Airtable and the callback. Entries are single use.
type PendingLogins struct {
	mu      sync.Mutex
	entries map[string]pendingLogin
	ttl     time.Duration
	now     func() time.Time
}

type pendingLogin struct {
	verifier string
	expires  time.Time
}

// NewPendingLogins creates a store whose entries expire after ttl
func NewPendingLogins(ttl time.Duration) *PendingLogins {
	return &PendingLogins{
		entries: make(map[string]pendingLogin),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Begin creates a state and verifier pair for a new login
func (p *PendingLogins) Begin() (state, verifier string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate login state: %w", err)
	}
	state = hex.EncodeToString(buf)
	verifier = airtable.GenerateVerifier()

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for s, e := range p.entries {
		if now.After(e.expires) {
			delete(p.entries, s)
		}
	}
	p.entries[state] = pendingLogin{verifier: verifier, expires: now.Add(p.ttl)}

	return state, verifier, nil
}

// Complete consumes state and returns its verifier
func (p *PendingLogins) Complete(state string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[state]
	if !ok {
		return "", false
	}
	delete(p.entries, state)

	if p.now().After(e.expires) {
		return "", false
	}
	return e.verifier, true
}

// Len returns the number of outstanding logins
func (p *PendingLogins) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
