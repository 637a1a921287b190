package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testherd/testherd/internal/core"
)

func TestRegistryAssignPrefersLongestIdle(t *testing.T) {
	r := newRegistry()

	w1 := r.register("10.0.0.1:9000")
	time.Sleep(time.Millisecond)
	w2 := r.register("10.0.0.2:9000")
	time.Sleep(time.Millisecond)
	w3 := r.register("10.0.0.3:9000")

	got1, err := r.assign("job-1")
	require.NoError(t, err)
	assert.Equal(t, w1.ID, got1.ID)

	got2, err := r.assign("job-2")
	require.NoError(t, err)
	assert.Equal(t, w2.ID, got2.ID)

	got3, err := r.assign("job-3")
	require.NoError(t, err)
	assert.Equal(t, w3.ID, got3.ID)

	_, err = r.assign("job-4")
	assert.ErrorIs(t, err, errNoIdleWorkers)

	// Whoever went idle first is picked first, regardless of registration
	// order.
	r.release(w2.ID)
	time.Sleep(time.Millisecond)
	r.release(w1.ID)

	got4, err := r.assign("job-4")
	require.NoError(t, err)
	assert.Equal(t, w2.ID, got4.ID)
}

func TestRegistryAssignMarksWorkerBusy(t *testing.T) {
	r := newRegistry()
	w := r.register("runner:9000")

	got, err := r.assign("job-1")
	require.NoError(t, err)

	snap, ok := r.get(got.ID)
	require.True(t, ok)
	assert.Equal(t, core.WorkerBusy, snap.State)
	assert.Equal(t, "job-1", snap.CurrentJob)

	idle, busy := r.counts()
	assert.Equal(t, 0, idle)
	assert.Equal(t, 1, busy)

	r.release(w.ID)
	snap, ok = r.get(w.ID)
	require.True(t, ok)
	assert.Equal(t, core.WorkerIdle, snap.State)
	assert.Empty(t, snap.CurrentJob)
}

func TestRegistryHeartbeatUnknownWorker(t *testing.T) {
	r := newRegistry()
	err := r.heartbeat("nope")
	assert.ErrorIs(t, err, ErrUnknownWorker)
}

func TestRegistryExpiredAndEvict(t *testing.T) {
	r := newRegistry()
	w := r.register("runner:9000")
	_, err := r.assign("job-1")
	require.NoError(t, err)

	assert.Empty(t, r.expired(time.Minute))

	time.Sleep(5 * time.Millisecond)
	stale := r.expired(time.Millisecond)
	require.Len(t, stale, 1)
	assert.Equal(t, w.ID, stale[0].ID)

	heldJob, ok := r.evict(w.ID)
	require.True(t, ok)
	assert.Equal(t, "job-1", heldJob)

	_, ok = r.get(w.ID)
	assert.False(t, ok)

	_, ok = r.evict(w.ID)
	assert.False(t, ok)
}

func TestRegistryHeartbeatKeepsWorkerAlive(t *testing.T) {
	r := newRegistry()
	w := r.register("runner:9000")

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, r.heartbeat(w.ID))

	assert.Empty(t, r.expired(4*time.Millisecond))
}
