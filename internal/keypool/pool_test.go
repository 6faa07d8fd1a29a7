package keypool

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCredential(t *testing.T, p *Pool, secret, name string) uuid.UUID {
	t.Helper()
	snap := p.Add(secret, name)
	require.NoError(t, p.BeginValidation(snap.ID))
	require.NoError(t, p.FinishValidation(snap.ID, ""))
	return snap.ID
}

func TestPool_AddStartsUnvalidated(t *testing.T) {
	p := NewPool(12, Hooks{})
	snap := p.Add("AIzaSyD-test-key-000000", "first")

	assert.Equal(t, StateUnvalidated, snap.State)
	assert.Equal(t, 0, snap.RequestCount)
	assert.Equal(t, 1, p.Len())
}

func TestPool_ValidationFlow(t *testing.T) {
	var changes []Snapshot
	p := NewPool(12, Hooks{OnStateChanged: func(s Snapshot) { changes = append(changes, s) }})

	good := p.Add("AIzaSyD-good-key-000000", "good")
	bad := p.Add("AIzaSyD-bad-key-0000000", "bad")

	require.NoError(t, p.BeginValidation(good.ID))
	require.NoError(t, p.FinishValidation(good.ID, ""))
	require.NoError(t, p.BeginValidation(bad.ID))
	require.NoError(t, p.FinishValidation(bad.ID, "API key not valid"))

	g, _ := p.Get(good.ID)
	b, _ := p.Get(bad.ID)
	assert.Equal(t, StateValid, g.State)
	assert.Equal(t, StateInvalid, b.State)
	assert.Equal(t, "API key not valid", b.LastError)
	assert.Len(t, changes, 2)
}

func TestPool_AcquireNextMarksBusyAndRecords(t *testing.T) {
	p := NewPool(12, Hooks{})
	id := validCredential(t, p, "AIzaSyD-test-key-000000", "only")
	now := time.Now()

	snap, ok := p.AcquireNext(now)
	require.True(t, ok)
	assert.Equal(t, id, snap.ID)
	assert.Equal(t, 1, snap.RequestCount)
	assert.Equal(t, now, snap.LastRequestAt)

	// Busy key is excluded until it settles.
	_, ok = p.AcquireNext(now)
	assert.False(t, ok)

	p.Settle(id, OutcomeSuccess, "", now)
	_, ok = p.AcquireNext(now.Add(time.Second))
	assert.True(t, ok)
}

func TestPool_AcquireNextPrefersOldestLastRequest(t *testing.T) {
	p := NewPool(12, Hooks{})
	a := validCredential(t, p, "AIzaSyD-key-a-00000000", "a")
	b := validCredential(t, p, "AIzaSyD-key-b-00000000", "b")

	now := time.Now()

	// Both unused: registration order breaks the tie.
	first, ok := p.AcquireNext(now)
	require.True(t, ok)
	assert.Equal(t, a, first.ID)
	p.Settle(a, OutcomeSuccess, "", now)

	// a now carries the newer lastRequestAt, so b goes next.
	second, ok := p.AcquireNext(now.Add(time.Second))
	require.True(t, ok)
	assert.Equal(t, b, second.ID)
	p.Settle(b, OutcomeSuccess, "", now.Add(time.Second))

	// And back to a.
	third, ok := p.AcquireNext(now.Add(2 * time.Second))
	require.True(t, ok)
	assert.Equal(t, a, third.ID)
}

func TestPool_SaturatedKeyNotEligible(t *testing.T) {
	p := NewPool(1, Hooks{})
	id := validCredential(t, p, "AIzaSyD-test-key-000000", "capped")
	now := time.Now()

	snap, ok := p.AcquireNext(now)
	require.True(t, ok)
	p.Settle(snap.ID, OutcomeSuccess, "", now)

	// Window full for the next minute.
	_, ok = p.AcquireNext(now.Add(30 * time.Second))
	assert.False(t, ok)

	_, ok = p.AcquireNext(now.Add(61 * time.Second))
	assert.True(t, ok)
	_ = id
}

func TestPool_SettleAuthInvalidatesKey(t *testing.T) {
	p := NewPool(12, Hooks{})
	id := validCredential(t, p, "AIzaSyD-test-key-000000", "revoked")
	now := time.Now()

	_, ok := p.AcquireNext(now)
	require.True(t, ok)
	p.Settle(id, OutcomeAuth, "credential rejected", now)

	snap, _ := p.Get(id)
	assert.Equal(t, StateInvalid, snap.State)
	assert.False(t, p.HasViable())

	_, ok = p.AcquireNext(now.Add(time.Hour))
	assert.False(t, ok, "invalid key must receive zero further assignments")
}

func TestPool_SettleQuotaExhaustsWindowOnly(t *testing.T) {
	p := NewPool(12, Hooks{})
	id := validCredential(t, p, "AIzaSyD-test-key-000000", "quota")
	now := time.Now()

	_, ok := p.AcquireNext(now)
	require.True(t, ok)
	p.Settle(id, OutcomeQuota, "quota exceeded", now)

	snap, _ := p.Get(id)
	assert.Equal(t, StateValid, snap.State, "quota is not a credential fault")
	assert.True(t, p.HasViable(), "saturated key is still viable, waiting helps")

	_, ok = p.AcquireNext(now.Add(10 * time.Second))
	assert.False(t, ok, "exhausted window must block assignment")

	_, ok = p.AcquireNext(now.Add(61 * time.Second))
	assert.True(t, ok, "key returns once the window truly clears")
}

func TestPool_RemoveBusyKeyIsDeferred(t *testing.T) {
	var removed []uuid.UUID
	p := NewPool(12, Hooks{OnRemoved: func(id uuid.UUID) { removed = append(removed, id) }})
	id := validCredential(t, p, "AIzaSyD-test-key-000000", "leaving")
	now := time.Now()

	_, ok := p.AcquireNext(now)
	require.True(t, ok)

	deferred, err := p.Remove(id)
	require.NoError(t, err)
	assert.True(t, deferred)
	assert.Equal(t, 1, p.Len(), "removal waits for the in-flight job")
	assert.Empty(t, removed)

	p.Settle(id, OutcomeSuccess, "", now)
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, []uuid.UUID{id}, removed)
}

func TestPool_RemoveIdleKeyIsImmediate(t *testing.T) {
	var removed []uuid.UUID
	p := NewPool(12, Hooks{OnRemoved: func(id uuid.UUID) { removed = append(removed, id) }})
	id := validCredential(t, p, "AIzaSyD-test-key-000000", "idle")

	deferred, err := p.Remove(id)
	require.NoError(t, err)
	assert.False(t, deferred)
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, []uuid.UUID{id}, removed)
}

func TestPool_RemoveUnknownKey(t *testing.T) {
	p := NewPool(12, Hooks{})
	_, err := p.Remove(uuid.New())
	assert.Error(t, err)
}

func TestPool_RestoreKeepsIdentityAndStats(t *testing.T) {
	p := NewPool(12, Hooks{})
	id := validCredential(t, p, "AIzaSyD-test-key-000000", "persisted")
	now := time.Now()
	_, _ = p.AcquireNext(now)
	p.Settle(id, OutcomeSuccess, "", now)

	stats := p.Stats(now)
	require.Len(t, stats, 1)

	restored := NewPool(12, Hooks{})
	require.NoError(t, restored.Restore(stats[0]))
	snap, ok := restored.Get(id)
	require.True(t, ok)
	assert.Equal(t, StateValid, snap.State)
	assert.Equal(t, 1, snap.RequestCount)

	assert.Error(t, restored.Restore(stats[0]), "duplicate restore must fail")
}

func TestPool_StateChangeHookFiresOnSettle(t *testing.T) {
	var changes []Snapshot
	p := NewPool(12, Hooks{OnStateChanged: func(s Snapshot) { changes = append(changes, s) }})
	id := validCredential(t, p, "AIzaSyD-test-key-000000", "tracked")
	changes = nil
	now := time.Now()

	_, _ = p.AcquireNext(now)
	p.Settle(id, OutcomeSuccess, "", now)

	require.Len(t, changes, 1)
	assert.Equal(t, 1, changes[0].RequestCount)
}
