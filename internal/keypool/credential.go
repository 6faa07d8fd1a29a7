// Package keypool manages the pool of user-registered API keys: identity,
// validation state, per-key usage accounting, and the per-key rate window
// that gates assignments.
package keypool

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thisnaeem/metagen/internal/ratelimit"
)

// State is the validation state of a credential.
type State string

// Credential lifecycle states.
const (
	StateUnvalidated State = "unvalidated"
	StateValidating  State = "validating"
	StateValid       State = "valid"
	StateInvalid     State = "invalid"
)

// Credential is one registered API key together with its usage accounting.
// Credentials are owned by the Pool; all mutation goes through the Pool's
// synchronized methods.
type Credential struct {
	ID          uuid.UUID
	Secret      string
	DisplayName string
	State       State

	// RequestCount counts every attempt issued with this key, including
	// attempts that later failed.
	RequestCount  int
	LastRequestAt time.Time
	LastError     string
	CreatedAt     time.Time

	window *ratelimit.Window
}

// Window returns the credential's rate window.
func (c *Credential) Window() *ratelimit.Window {
	return c.window
}

// canTransition reports whether moving from one state to another is legal.
// Unvalidated -> Validating -> {Valid, Invalid}; a Valid credential may only
// regress to Invalid (authentication failure from a live call).
func canTransition(from, to State) bool {
	switch from {
	case StateUnvalidated:
		return to == StateValidating
	case StateValidating:
		return to == StateValid || to == StateInvalid
	case StateValid:
		return to == StateInvalid
	default:
		return false
	}
}

// transition applies a state change, enforcing the legal transitions.
func (c *Credential) transition(to State) error {
	if c.State == to {
		return nil
	}
	if !canTransition(c.State, to) {
		return fmt.Errorf("illegal credential state transition %s -> %s", c.State, to)
	}
	c.State = to
	return nil
}

// MaskSecret renders a key for display and logs: first four and last four
// characters with the middle elided. Full secrets are never printed.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "…" + secret[len(secret)-4:]
}

// Snapshot is an immutable copy of a credential's externally visible state,
// used for persistence callbacks, stats displays and the final report.
type Snapshot struct {
	ID            uuid.UUID
	Secret        string
	DisplayName   string
	State         State
	RequestCount  int
	LastRequestAt time.Time
	LastError     string
	CreatedAt     time.Time
	Rate          ratelimit.Info
}

// snapshot copies the credential state at now. Callers must hold the pool lock.
func (c *Credential) snapshot(now time.Time) Snapshot {
	return Snapshot{
		ID:            c.ID,
		Secret:        c.Secret,
		DisplayName:   c.DisplayName,
		State:         c.State,
		RequestCount:  c.RequestCount,
		LastRequestAt: c.LastRequestAt,
		LastError:     c.LastError,
		CreatedAt:     c.CreatedAt,
		Rate:          c.window.Snapshot(now),
	}
}
