package dispatch

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/testherd/testherd/internal/core"
)

var (
	// ErrUnknownWorker reports traffic from a worker that is not (or no
	// longer) registered, e.g. one evicted for missing heartbeats.
	ErrUnknownWorker = errors.New("unknown worker")
	// errNoIdleWorkers tells the assignment loop to wait for capacity.
	errNoIdleWorkers = errors.New("no idle workers")
)

// registry is the dispatcher's pool of known workers. It is the only place
// worker records are mutated; every transition is one critical section.
type registry struct {
	mu      sync.Mutex
	workers map[string]*core.Worker
	notify  chan struct{}
}

func newRegistry() *registry {
	return &registry{
		workers: make(map[string]*core.Worker),
		notify:  make(chan struct{}, 1),
	}
}

// register adds a worker and returns its record. New workers start idle and
// immediately count as heartbeat-fresh.
func (r *registry) register(address string) *core.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	w := &core.Worker{
		ID:            uuid.NewString(),
		Address:       address,
		State:         core.WorkerIdle,
		LastHeartbeat: now,
		IdleSince:     now,
		RegisteredAt:  now,
	}
	r.workers[w.ID] = w
	r.wake()

	cp := *w
	return &cp
}

// heartbeat refreshes a worker's liveness timestamp.
func (r *registry) heartbeat(workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[workerID]
	if !ok {
		return ErrUnknownWorker
	}
	w.LastHeartbeat = time.Now().UTC()
	return nil
}

// assign picks the idle worker that has been idle longest (ties broken by
// worker id for determinism) and marks it busy on the given job, atomically.
// A busy worker is never handed a second job.
func (r *registry) assign(jobID string) (*core.Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var idle []*core.Worker
	for _, w := range r.workers {
		if w.State == core.WorkerIdle {
			idle = append(idle, w)
		}
	}
	if len(idle) == 0 {
		return nil, errNoIdleWorkers
	}

	sort.Slice(idle, func(i, j int) bool {
		if !idle[i].IdleSince.Equal(idle[j].IdleSince) {
			return idle[i].IdleSince.Before(idle[j].IdleSince)
		}
		return idle[i].ID < idle[j].ID
	})

	w := idle[0]
	w.State = core.WorkerBusy
	w.CurrentJob = jobID

	cp := *w
	return &cp, nil
}

// release returns a busy worker to the idle rotation. Its IdleSince is reset,
// so freshly released workers queue behind workers that have waited longer.
func (r *registry) release(workerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[workerID]
	if !ok {
		return
	}
	w.State = core.WorkerIdle
	w.CurrentJob = ""
	w.IdleSince = time.Now().UTC()
	r.wake()
}

// evict removes a worker from the pool and reports the job it held, if any.
func (r *registry) evict(workerID string) (heldJob string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, exists := r.workers[workerID]
	if !exists {
		return "", false
	}
	delete(r.workers, workerID)
	return w.CurrentJob, true
}

// expired returns snapshots of workers silent for longer than timeout.
func (r *registry) expired(timeout time.Duration) []core.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().UTC().Add(-timeout)
	var out []core.Worker
	for _, w := range r.workers {
		if w.LastHeartbeat.Before(cutoff) {
			out = append(out, *w)
		}
	}
	return out
}

// get returns a snapshot of one worker.
func (r *registry) get(workerID string) (*core.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[workerID]
	if !ok {
		return nil, false
	}
	cp := *w
	return &cp, true
}

// counts reports pool occupancy for metrics.
func (r *registry) counts() (idle, busy int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, w := range r.workers {
		switch w.State {
		case core.WorkerIdle:
			idle++
		case core.WorkerBusy:
			busy++
		}
	}
	return idle, busy
}

// idleCh lets the assignment loop wait for a worker to become available.
func (r *registry) idleCh() <-chan struct{} {
	return r.notify
}

func (r *registry) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}
