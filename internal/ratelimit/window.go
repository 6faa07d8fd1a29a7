// Package ratelimit provides a sliding-window rate gate that caps how many
// requests a single API key may issue within a trailing one-minute window.
package ratelimit

import (
	"sync"
	"time"
)

// span is the trailing window length. Provider quotas are stated per minute.
const span = time.Minute

// Window tracks the timestamps of recent requests for one API key.
// It is a gate: the dispatcher asks HasCapacity before assigning work and
// calls Record at the moment of assignment, so the count of in-window
// timestamps can never exceed capacity.
type Window struct {
	mu       sync.Mutex
	capacity int
	stamps   []time.Time
}

// NewWindow creates a window allowing capacity requests per trailing minute.
func NewWindow(capacity int) *Window {
	return &Window{capacity: capacity}
}

// HasCapacity reports whether another request may start at now.
func (w *Window) HasCapacity(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	return len(w.stamps) < w.capacity
}

// Record appends a request timestamp. Callers must have checked HasCapacity
// under the same serialization that guards assignment.
func (w *Window) Record(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	w.stamps = append(w.stamps, now)
}

// NextAvailableAt returns when the oldest in-window entry expires, i.e. the
// earliest instant at which a saturated window regains capacity. It is a
// diagnostics hint only; the dispatcher never blocks on it. If the window has
// capacity now, now is returned.
func (w *Window) NextAvailableAt(now time.Time) time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	if len(w.stamps) < w.capacity {
		return now
	}
	return w.stamps[0].Add(span)
}

// Exhaust fills all remaining slots at now. Used when the provider reports
// quota exhaustion even though local accounting showed headroom (clock skew,
// external usage of the same key); the key is skipped until the window
// genuinely clears.
func (w *Window) Exhaust(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	for len(w.stamps) < w.capacity {
		w.stamps = append(w.stamps, now)
	}
}

// Remaining returns how many requests may still start at now.
func (w *Window) Remaining(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	return w.capacity - len(w.stamps)
}

// Info contains window state for diagnostics and usage displays.
type Info struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Snapshot returns the window state at now without consuming capacity.
func (w *Window) Snapshot(now time.Time) Info {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	info := Info{
		Limit:     w.capacity,
		Remaining: w.capacity - len(w.stamps),
		ResetAt:   now,
	}
	if len(w.stamps) > 0 {
		info.ResetAt = w.stamps[0].Add(span)
	}
	return info
}

// prune drops timestamps older than the trailing window. Callers must hold mu.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-span)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
