package keypool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thisnaeem/metagen/internal/ratelimit"
)

// Outcome classifies the result of one attempt issued with a credential, as
// far as the pool cares: only authentication failures change validity, and
// only quota failures exhaust the rate window early.
type Outcome int

// Attempt outcomes.
const (
	OutcomeSuccess Outcome = iota
	OutcomeTransient
	OutcomeQuota
	OutcomeAuth
	OutcomePermanent
)

// Hooks are persistence callbacks fired by the pool so the host application
// can store updated validity and usage outside this core. Either may be nil.
type Hooks struct {
	OnStateChanged func(Snapshot)
	OnRemoved      func(id uuid.UUID)
}

// Pool holds the set of registered credentials. Every read and mutation is
// serialized behind one mutex because concurrent job completions race to
// update the same records, and eligibility reads must not interleave with
// assignment writes (two jobs must never land on the same key).
type Pool struct {
	mu       sync.Mutex
	capacity int
	creds    map[uuid.UUID]*Credential
	order    []uuid.UUID
	busy     map[uuid.UUID]bool
	removals map[uuid.UUID]bool
	hooks    Hooks
}

// NewPool creates an empty pool. capacityPerMinute caps each key's trailing
// one-minute request count.
func NewPool(capacityPerMinute int, hooks Hooks) *Pool {
	return &Pool{
		capacity: capacityPerMinute,
		creds:    make(map[uuid.UUID]*Credential),
		busy:     make(map[uuid.UUID]bool),
		removals: make(map[uuid.UUID]bool),
		hooks:    hooks,
	}
}

// Add registers a new key in state Unvalidated and returns its snapshot.
func (p *Pool) Add(secret, displayName string) Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	cred := &Credential{
		ID:          uuid.New(),
		Secret:      secret,
		DisplayName: displayName,
		State:       StateUnvalidated,
		CreatedAt:   now,
		window:      ratelimit.NewWindow(p.capacity),
	}
	p.creds[cred.ID] = cred
	p.order = append(p.order, cred.ID)
	return cred.snapshot(now)
}

// Restore re-registers a previously persisted credential, keeping its ID,
// state and usage counters. The rate window starts empty: persisted runs are
// assumed to be at least a minute in the past.
func (p *Pool) Restore(snap Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.creds[snap.ID]; exists {
		return fmt.Errorf("credential %s already registered", snap.ID)
	}
	cred := &Credential{
		ID:            snap.ID,
		Secret:        snap.Secret,
		DisplayName:   snap.DisplayName,
		State:         snap.State,
		RequestCount:  snap.RequestCount,
		LastRequestAt: snap.LastRequestAt,
		LastError:     snap.LastError,
		CreatedAt:     snap.CreatedAt,
		window:        ratelimit.NewWindow(p.capacity),
	}
	p.creds[cred.ID] = cred
	p.order = append(p.order, cred.ID)
	return nil
}

// Remove deletes a credential. A key with an in-flight job is not dropped
// silently: removal is deferred until its current job settles, at which point
// the OnRemoved hook fires. Returns whether the removal was deferred.
func (p *Pool) Remove(id uuid.UUID) (deferred bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.creds[id]; !ok {
		return false, fmt.Errorf("credential %s not found", id)
	}
	if p.busy[id] {
		p.removals[id] = true
		return true, nil
	}
	p.drop(id)
	return false, nil
}

// drop deletes a credential immediately. Callers must hold mu.
func (p *Pool) drop(id uuid.UUID) {
	delete(p.creds, id)
	delete(p.busy, id)
	delete(p.removals, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	if p.hooks.OnRemoved != nil {
		p.hooks.OnRemoved(id)
	}
}

// Get returns a snapshot of one credential.
func (p *Pool) Get(id uuid.UUID) (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred, ok := p.creds[id]
	if !ok {
		return Snapshot{}, false
	}
	return cred.snapshot(time.Now()), true
}

// Len returns the number of registered credentials.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// eligible returns credentials that may take a job at now: Valid, not busy,
// not pending removal, and with window capacity; ordered oldest-lastRequestAt
// first so load spreads evenly instead of favoring registration order.
// Callers must hold mu.
func (p *Pool) eligible(now time.Time) []*Credential {
	var out []*Credential
	for _, id := range p.order {
		cred := p.creds[id]
		if cred.State != StateValid || p.busy[id] || p.removals[id] {
			continue
		}
		if !cred.window.HasCapacity(now) {
			continue
		}
		out = append(out, cred)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastRequestAt.Before(out[j].LastRequestAt)
	})
	return out
}

// Eligible returns snapshots of the currently assignable credentials.
func (p *Pool) Eligible(now time.Time) []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	creds := p.eligible(now)
	out := make([]Snapshot, 0, len(creds))
	for _, cred := range creds {
		out = append(out, cred.snapshot(now))
	}
	return out
}

// AcquireNext atomically selects the next eligible credential, marks it busy
// (each key runs at most one job at a time), and records the attempt against
// its window and usage counters. Selection and accounting happen under one
// lock so two concurrent assignments can never pick the same key.
func (p *Pool) AcquireNext(now time.Time) (Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	creds := p.eligible(now)
	if len(creds) == 0 {
		return Snapshot{}, false
	}
	cred := creds[0]
	p.busy[cred.ID] = true
	cred.window.Record(now)
	cred.RequestCount++
	cred.LastRequestAt = now
	return cred.snapshot(now), true
}

// Settle releases a credential after its in-flight job resolved and applies
// the outcome: an authentication failure invalidates the key permanently for
// the run; a quota failure exhausts its window immediately so it is skipped
// until real capacity returns. Deferred removals complete here.
func (p *Pool) Settle(id uuid.UUID, outcome Outcome, errMsg string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred, ok := p.creds[id]
	if !ok {
		return
	}
	delete(p.busy, id)

	switch outcome {
	case OutcomeAuth:
		// transition can only fail if the key was already Invalid; the
		// outcome stands either way.
		_ = cred.transition(StateInvalid)
		cred.LastError = errMsg
	case OutcomeQuota:
		cred.window.Exhaust(now)
		cred.LastError = errMsg
	case OutcomeTransient, OutcomePermanent:
		cred.LastError = errMsg
	case OutcomeSuccess:
		cred.LastError = ""
	}

	if p.hooks.OnStateChanged != nil {
		p.hooks.OnStateChanged(cred.snapshot(now))
	}
	if p.removals[id] {
		p.drop(id)
	}
}

// BeginValidation moves an unvalidated credential into Validating.
func (p *Pool) BeginValidation(id uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred, ok := p.creds[id]
	if !ok {
		return fmt.Errorf("credential %s not found", id)
	}
	return cred.transition(StateValidating)
}

// FinishValidation records the probe outcome: an empty probeErr marks the
// credential Valid, anything else marks it Invalid with that reason. The
// state-change hook fires so the host can persist the result.
func (p *Pool) FinishValidation(id uuid.UUID, probeErr string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred, ok := p.creds[id]
	if !ok {
		return fmt.Errorf("credential %s not found", id)
	}
	next := StateValid
	if probeErr != "" {
		next = StateInvalid
	}
	if err := cred.transition(next); err != nil {
		return err
	}
	cred.LastError = probeErr
	if p.hooks.OnStateChanged != nil {
		p.hooks.OnStateChanged(cred.snapshot(time.Now()))
	}
	return nil
}

// HasViable reports whether any credential is still in state Valid. Busy or
// saturated keys count: waiting can make them assignable again. Only when
// this turns false can no amount of waiting help the run.
func (p *Pool) HasViable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, cred := range p.creds {
		if cred.State == StateValid {
			return true
		}
	}
	return false
}

// Unvalidated returns the IDs of credentials that have not been probed yet.
func (p *Pool) Unvalidated() []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []uuid.UUID
	for _, id := range p.order {
		if p.creds[id].State == StateUnvalidated {
			out = append(out, id)
		}
	}
	return out
}

// Stats returns snapshots of every credential in registration order.
func (p *Pool) Stats(now time.Time) []Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Snapshot, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.creds[id].snapshot(now))
	}
	return out
}
