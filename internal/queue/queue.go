// Package queue implements the job backlog: an ordered, deduplicated table of
// build-and-test jobs keyed by commit. It is the single owner of job state;
// every lifecycle transition happens inside one critical section here, so no
// caller can observe a half-transitioned job.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/testherd/testherd/internal/core"
)

var (
	// ErrDuplicateActiveJob rejects an enqueue for a commit that already has a
	// non-terminal job. Commit delivery is at-least-once, so callers at the
	// HTTP boundary treat this as success.
	ErrDuplicateActiveJob = errors.New("commit already has an active job")
	// ErrJobNotFound reports a transition on a job the queue no longer holds.
	ErrJobNotFound = errors.New("job not found")
	// ErrClosed reports that the queue has shut down.
	ErrClosed = errors.New("job queue is closed")
)

// Queue is the FIFO backlog of pending jobs plus the table of in-flight ones.
// Terminal jobs are garbage-collected once the dispatcher has recorded their
// outcome; a later enqueue of the same commit starts a fresh job (a rebuild).
type Queue struct {
	mu             sync.Mutex
	nextSeq        uint64
	jobs           map[string]*core.Job // by job id, non-terminal only
	activeByCommit map[string]string    // commit id -> job id
	backlog        []string             // queued job ids, FIFO
	notify         chan struct{}
	closed         bool
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{
		jobs:           make(map[string]*core.Job),
		activeByCommit: make(map[string]string),
		notify:         make(chan struct{}, 1),
	}
}

// Enqueue accepts a commit notification and creates a queued job for it,
// assigning the commit's arrival sequence. A commit with a live job is
// rejected with ErrDuplicateActiveJob; a commit whose only prior job is
// terminal is accepted again, which is how rebuilds happen.
func (q *Queue) Enqueue(n core.CommitNotification) (*core.Job, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}
	if _, exists := q.activeByCommit[n.CommitID]; exists {
		return nil, ErrDuplicateActiveJob
	}

	q.nextSeq++
	now := time.Now().UTC()
	job := &core.Job{
		ID: uuid.NewString(),
		Commit: core.Commit{
			ID:       n.CommitID,
			Sequence: q.nextSeq,
			RepoURL:  n.RepoURL,
		},
		State:     core.JobQueued,
		Attempt:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.jobs[job.ID] = job
	q.activeByCommit[n.CommitID] = job.ID
	q.backlog = append(q.backlog, job.ID)
	q.wake()

	cp := *job
	return &cp, nil
}

// Dequeue blocks until a queued job is available and returns it in the
// Assigned state. The pop and the Queued->Assigned transition are one atomic
// step, so two concurrent dequeues can never return the same job.
func (q *Queue) Dequeue(ctx context.Context) (*core.Job, error) {
	for {
		q.mu.Lock()
		if job := q.popLocked(); job != nil {
			job.State = core.JobAssigned
			job.UpdatedAt = time.Now().UTC()
			cp := *job
			// The notify channel holds one token, so back-to-back enqueues
			// can wake only one of several blocked consumers. Pass the
			// token on while work remains.
			if len(q.backlog) > 0 {
				q.wake()
			}
			q.mu.Unlock()
			return &cp, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrClosed
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// MarkRunning transitions an assigned job to Running on the given worker.
func (q *Queue) MarkRunning(jobID, workerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.State != core.JobAssigned {
		return fmt.Errorf("job %s is %s, not assigned", jobID, job.State)
	}
	job.State = core.JobRunning
	job.WorkerID = workerID
	job.UpdatedAt = time.Now().UTC()
	return nil
}

// Requeue puts an assigned or running job back on the backlog after a worker
// failure, incrementing its attempt count. The job keeps its commit and
// sequence, so display ordering survives retries.
func (q *Queue) Requeue(jobID, cause string) (*core.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.State != core.JobAssigned && job.State != core.JobRunning {
		return nil, fmt.Errorf("job %s is %s, cannot requeue", jobID, job.State)
	}
	job.State = core.JobQueued
	job.Attempt++
	job.WorkerID = ""
	job.LastFailure = cause
	job.UpdatedAt = time.Now().UTC()
	q.backlog = append(q.backlog, jobID)
	q.wake()

	cp := *job
	return &cp, nil
}

// ReturnToBacklog puts an assigned job back without charging an attempt, used
// when an assignment never reached execution (a runner refused it busy).
func (q *Queue) ReturnToBacklog(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.State != core.JobAssigned {
		return fmt.Errorf("job %s is %s, cannot return to backlog", jobID, job.State)
	}
	job.State = core.JobQueued
	job.WorkerID = ""
	job.UpdatedAt = time.Now().UTC()
	q.backlog = append(q.backlog, jobID)
	q.wake()
	return nil
}

// Complete moves a running job to its Completed terminal state and removes it
// from the table. The caller records the result set before or right after.
func (q *Queue) Complete(jobID string) (*core.Job, error) {
	return q.finish(jobID, core.JobCompleted, "")
}

// Fail moves a job to its Failed terminal state and removes it from the
// table. Used when the retry budget is exhausted.
func (q *Queue) Fail(jobID, cause string) (*core.Job, error) {
	return q.finish(jobID, core.JobFailed, cause)
}

func (q *Queue) finish(jobID string, state core.JobState, cause string) (*core.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	job.State = state
	if cause != "" {
		job.LastFailure = cause
	}
	job.UpdatedAt = time.Now().UTC()

	delete(q.jobs, jobID)
	delete(q.activeByCommit, job.Commit.ID)

	cp := *job
	return &cp, nil
}

// Get returns a snapshot of a live job.
func (q *Queue) Get(jobID string) (*core.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// Stats reports backlog depth and total live jobs, for metrics.
func (q *Queue) Stats() (queued, active int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog), len(q.jobs)
}

// Close wakes any blocked Dequeue with ErrClosed and rejects further work.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notify)
}

// popLocked removes and returns the first queued job, skipping ids whose jobs
// were finished while still listed. Caller holds the lock.
func (q *Queue) popLocked() *core.Job {
	for len(q.backlog) > 0 {
		id := q.backlog[0]
		q.backlog = q.backlog[1:]
		if job, ok := q.jobs[id]; ok && job.State == core.JobQueued {
			return job
		}
	}
	return nil
}

// wake pokes a blocked Dequeue. Caller holds the lock, so the send can never
// race with Close.
func (q *Queue) wake() {
	if q.closed {
		return
	}
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
