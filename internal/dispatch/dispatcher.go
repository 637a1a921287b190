// Package dispatch implements the scheduler: it binds queued jobs to idle
// workers, watches heartbeats and job deadlines, retries on worker failure up
// to a configured budget, and forwards completed result sets to the store.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/metrics"
	"github.com/testherd/testherd/internal/queue"
	"github.com/testherd/testherd/internal/store"
)

// reapInterval is how often the reaper scans for silent workers and expired
// job deadlines. The timeouts themselves are configuration; this is only the
// scan granularity.
const reapInterval = time.Second

// assignRetryDelay paces the assignment loop when the only available runner
// refuses work, so a refusing pool is not hammered in a tight loop.
const assignRetryDelay = 2 * time.Second

// Config holds the scheduler's tuning knobs. All of them come from
// configuration; none are hardcoded at use sites.
type Config struct {
	HeartbeatTimeout time.Duration
	JobTimeout       time.Duration
	MaxAttempts      int
}

// flight tracks one job currently out on a worker.
type flight struct {
	workerID  string
	commit    core.Commit
	startedAt time.Time
	deadline  time.Time
}

// Dispatcher owns the worker pool and drives every job to completion or
// terminal failure. It implements core.JobDispatcher for the HTTP surface.
type Dispatcher struct {
	cfg     Config
	queue   *queue.Queue
	reg     *registry
	results store.ResultStore
	client  WorkerClient
	mets    *metrics.Collector
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]*flight // by job id
}

// New wires a dispatcher. The queue, store, and client are owned elsewhere;
// the worker registry is private to the dispatcher.
func New(cfg Config, q *queue.Queue, results store.ResultStore, client WorkerClient, mets *metrics.Collector, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		queue:    q,
		reg:      newRegistry(),
		results:  results,
		client:   client,
		mets:     mets,
		logger:   logger,
		inflight: make(map[string]*flight),
	}
}

// Run drives the assignment loop and the reaper until the context ends.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.assignLoop(ctx) })
	g.Go(func() error { return d.reapLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
		return nil
	}
	return err
}

// Submit queues a build-and-test job for a notified commit.
func (d *Dispatcher) Submit(ctx context.Context, n core.CommitNotification) (*core.Job, error) {
	job, err := d.queue.Enqueue(n)
	if err != nil {
		return nil, err
	}
	d.mets.JobEnqueued()
	d.logger.InfoContext(ctx, "commit queued",
		"commit", n.CommitID,
		"sequence", job.Commit.Sequence,
	)
	return job, nil
}

// RegisterWorker adds a runner to the pool.
func (d *Dispatcher) RegisterWorker(ctx context.Context, address string) (*core.Worker, error) {
	if address == "" {
		return nil, fmt.Errorf("worker registration is missing an address")
	}
	w := d.reg.register(address)
	d.logger.InfoContext(ctx, "worker registered", "worker_id", w.ID, "address", address)
	return w, nil
}

// Heartbeat refreshes a worker's liveness.
func (d *Dispatcher) Heartbeat(_ context.Context, workerID string) error {
	return d.reg.heartbeat(workerID)
}

// HandleResult ingests a worker's completion or execution-error report.
// Reports for jobs the dispatcher no longer tracks (already timed out and
// requeued, or finished) are logged and dropped; they must not corrupt state.
func (d *Dispatcher) HandleResult(ctx context.Context, report *core.ResultReport) error {
	if report == nil || report.JobID == "" {
		return fmt.Errorf("result report is missing a job id")
	}

	fl, ok := d.takeFlight(report.JobID, report.WorkerID)
	if !ok {
		d.logger.WarnContext(ctx, "dropping stale result report",
			"job_id", report.JobID,
			"worker_id", report.WorkerID,
		)
		return nil
	}

	if report.ExecError != "" {
		d.logger.WarnContext(ctx, "worker reported execution error",
			"job_id", report.JobID,
			"worker_id", report.WorkerID,
			"cause", report.ExecError,
		)
		d.reg.release(report.WorkerID)
		d.retryOrFail(ctx, report.JobID, fmt.Sprintf("execution error: %s", report.ExecError))
		return nil
	}

	rs := &core.ResultSet{
		CommitID:   fl.commit.ID,
		Sequence:   fl.commit.Sequence,
		Results:    report.Results,
		ProducedAt: time.Now().UTC(),
	}
	if err := d.results.Put(ctx, rs); err != nil {
		// Put the flight back so the deadline reaper retries the job instead
		// of losing it.
		d.restoreFlight(report.JobID, fl)
		return fmt.Errorf("failed to record result set for commit %s: %w", fl.commit.ID, err)
	}

	if _, err := d.queue.Complete(report.JobID); err != nil {
		d.logger.WarnContext(ctx, "completed job missing from queue", "job_id", report.JobID, "error", err)
	}
	d.reg.release(report.WorkerID)
	d.mets.JobCompleted(time.Since(fl.startedAt))

	passed, failed, errored := rs.Counts()
	d.logger.InfoContext(ctx, "job completed",
		"commit", fl.commit.ID,
		"worker_id", report.WorkerID,
		"passed", passed,
		"failed", failed,
		"errored", errored,
	)
	return nil
}

// WorkerSnapshot returns a point-in-time view of one worker, for the API.
func (d *Dispatcher) WorkerSnapshot(workerID string) (*core.Worker, bool) {
	return d.reg.get(workerID)
}

// Status reports the current shape of the pipeline.
func (d *Dispatcher) Status() core.PipelineStatus {
	queued, active := d.queue.Stats()
	idle, busy := d.reg.counts()
	return core.PipelineStatus{
		QueuedJobs:  queued,
		ActiveJobs:  active,
		IdleWorkers: idle,
		BusyWorkers: busy,
	}
}

// assignLoop pulls jobs off the backlog and binds each to the worker that has
// been idle longest. Waiting for capacity blocks only this loop; heartbeats,
// completions, and intake keep running.
func (d *Dispatcher) assignLoop(ctx context.Context) error {
	for {
		job, err := d.queue.Dequeue(ctx)
		if err != nil {
			return err
		}
		if err := d.placeJob(ctx, job); err != nil {
			return err
		}
	}
}

// placeJob finds a worker for one assigned job, waiting for idle capacity if
// there is none. Refusals and unreachable workers put the job back without
// charging its attempt budget; execution never started.
func (d *Dispatcher) placeJob(ctx context.Context, job *core.Job) error {
	for {
		w, err := d.reg.assign(job.ID)
		if errors.Is(err, errNoIdleWorkers) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-d.reg.idleCh():
				continue
			}
		}
		if err != nil {
			return err
		}

		// Track the flight before the handshake so a fast runner cannot
		// report a result the dispatcher does not recognize.
		now := time.Now().UTC()
		d.restoreFlight(job.ID, &flight{
			workerID:  w.ID,
			commit:    job.Commit,
			startedAt: now,
			deadline:  now.Add(d.cfg.JobTimeout),
		})

		assignment := core.Assignment{
			JobID:    job.ID,
			CommitID: job.Commit.ID,
			RepoURL:  job.Commit.RepoURL,
		}
		err = d.client.Assign(ctx, w.Address, assignment)
		switch {
		case err == nil:
			if err := d.queue.MarkRunning(job.ID, w.ID); err != nil && !errors.Is(err, queue.ErrJobNotFound) {
				d.logger.Warn("failed to mark job running", "job_id", job.ID, "error", err)
			}
			d.logger.Info("job assigned",
				"job_id", job.ID,
				"commit", job.Commit.ID,
				"worker_id", w.ID,
				"attempt", job.Attempt,
			)
			return nil

		case errors.Is(err, ErrWorkerBusy):
			d.takeFlight(job.ID, w.ID)
			d.reg.release(w.ID)
			if err := d.queue.ReturnToBacklog(job.ID); err != nil {
				d.logger.Warn("failed to return refused job to backlog", "job_id", job.ID, "error", err)
			}
			d.logger.Warn("worker refused assignment, requeued", "job_id", job.ID, "worker_id", w.ID)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(assignRetryDelay):
			}
			return nil

		default:
			d.takeFlight(job.ID, w.ID)
			d.logger.Warn("worker unreachable during assignment, evicting",
				"worker_id", w.ID,
				"address", w.Address,
				"error", err,
			)
			d.reg.evict(w.ID)
			if err := d.queue.ReturnToBacklog(job.ID); err != nil {
				d.logger.Warn("failed to return job to backlog", "job_id", job.ID, "error", err)
			}
			// Try the next worker for this backlog; the job is queued again.
			return nil
		}
	}
}

// reapLoop evicts workers that stopped heartbeating and times out jobs whose
// deadline passed, then refreshes the pool gauges.
func (d *Dispatcher) reapLoop(ctx context.Context) error {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.reapWorkers(ctx)
			d.reapDeadlines(ctx)

			queued, _ := d.queue.Stats()
			d.mets.SetQueueDepth(queued)
			idle, busy := d.reg.counts()
			d.mets.SetWorkers(idle, busy)
		}
	}
}

func (d *Dispatcher) reapWorkers(ctx context.Context) {
	for _, w := range d.reg.expired(d.cfg.HeartbeatTimeout) {
		heldJob, ok := d.reg.evict(w.ID)
		if !ok {
			continue
		}
		d.logger.WarnContext(ctx, "worker missed heartbeat deadline, evicted",
			"worker_id", w.ID,
			"address", w.Address,
			"last_heartbeat", w.LastHeartbeat,
		)
		if heldJob == "" {
			continue
		}
		if _, ok := d.takeFlight(heldJob, w.ID); ok {
			d.retryOrFail(ctx, heldJob, fmt.Sprintf("worker %s became unreachable", w.ID))
		}
	}
}

func (d *Dispatcher) reapDeadlines(ctx context.Context) {
	now := time.Now().UTC()

	d.mu.Lock()
	var expired []string
	var holders []string
	for jobID, fl := range d.inflight {
		if fl.deadline.Before(now) {
			expired = append(expired, jobID)
			holders = append(holders, fl.workerID)
		}
	}
	for _, jobID := range expired {
		delete(d.inflight, jobID)
	}
	d.mu.Unlock()

	for i, jobID := range expired {
		// The worker stays registered and returns to the rotation; the job
		// itself is what timed out.
		d.reg.release(holders[i])
		d.retryOrFail(ctx, jobID, fmt.Sprintf("job timed out after %s", d.cfg.JobTimeout))
	}
}

// retryOrFail requeues a job whose attempt failed, or retires it with a
// synthetic error result once the attempt budget is spent. The caller has
// already removed the job's flight.
func (d *Dispatcher) retryOrFail(ctx context.Context, jobID, cause string) {
	job, ok := d.queue.Get(jobID)
	if !ok {
		return
	}

	if job.Attempt >= d.cfg.MaxAttempts {
		failed, err := d.queue.Fail(jobID, cause)
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to retire job", "job_id", jobID, "error", err)
			return
		}
		rs := core.SyntheticErrorSet(failed.Commit, "retries exhausted", cause)
		if err := d.results.Put(ctx, rs); err != nil {
			d.logger.ErrorContext(ctx, "failed to record synthetic error result",
				"commit", failed.Commit.ID,
				"error", err,
			)
		}
		d.mets.JobFailed()
		d.logger.ErrorContext(ctx, "job failed permanently",
			"job_id", jobID,
			"commit", failed.Commit.ID,
			"attempts", failed.Attempt,
			"cause", cause,
		)
		return
	}

	requeued, err := d.queue.Requeue(jobID, cause)
	if err != nil {
		d.logger.ErrorContext(ctx, "failed to requeue job", "job_id", jobID, "error", err)
		return
	}
	d.mets.JobRetried()
	d.logger.WarnContext(ctx, "job requeued for retry",
		"job_id", jobID,
		"commit", requeued.Commit.ID,
		"attempt", requeued.Attempt,
		"cause", cause,
	)
}

// takeFlight atomically removes and returns a job's flight. A mismatched
// worker id means the report is from a superseded assignment and is refused.
func (d *Dispatcher) takeFlight(jobID, workerID string) (*flight, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fl, ok := d.inflight[jobID]
	if !ok {
		return nil, false
	}
	if workerID != "" && fl.workerID != workerID {
		return nil, false
	}
	delete(d.inflight, jobID)
	return fl, true
}

func (d *Dispatcher) restoreFlight(jobID string, fl *flight) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight[jobID] = fl
}
