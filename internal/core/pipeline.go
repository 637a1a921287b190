package core

import (
	"context"
	"fmt"
)

// Assignment is the message the dispatcher sends a worker to start a job.
type Assignment struct {
	JobID    string `json:"job_id"`
	CommitID string `json:"commit_id"`
	RepoURL  string `json:"repo_url"`
}

// ResultReport is the message a worker sends back when a job finishes.
// Exactly one of Results or ExecError is meaningful: a non-empty ExecError
// signals that the suite could not be executed at all (checkout failure,
// runner crash), which the dispatcher treats as a retryable infrastructure
// failure rather than a test outcome.
type ResultReport struct {
	WorkerID  string   `json:"worker_id"`
	JobID     string   `json:"job_id"`
	CommitID  string   `json:"commit_id"`
	ExecError string   `json:"exec_error,omitempty"`
	Results   []Result `json:"results,omitempty"`
}

// Validate checks a report's shape at the wire boundary. Every kind string is
// run through ParseResultKind, so a report carrying an unknown kind is
// rejected here instead of flowing into the store as garbage.
func (r *ResultReport) Validate() error {
	if r.JobID == "" {
		return fmt.Errorf("result report is missing a job id")
	}
	if r.CommitID == "" {
		return fmt.Errorf("result report is missing a commit id")
	}
	for i, res := range r.Results {
		kind, err := ParseResultKind(string(res.Kind))
		if err != nil {
			return fmt.Errorf("result %q: %w", res.TestName, err)
		}
		r.Results[i].Kind = kind
	}
	return nil
}

// JobDispatcher is the scheduler contract exposed to the HTTP surface. It
// decouples intake (commit notifications, worker traffic) from the scheduling
// mechanics behind it.
type JobDispatcher interface {
	// Submit queues a build-and-test job for a notified commit. Redelivery of
	// a commit that already has a live job is reported as a duplicate, which
	// callers at the boundary treat as success.
	Submit(ctx context.Context, n CommitNotification) (*Job, error)

	// RegisterWorker adds a runner to the pool. New workers start idle.
	RegisterWorker(ctx context.Context, address string) (*Worker, error)

	// Heartbeat refreshes a worker's liveness. Workers silent past the
	// configured heartbeat timeout are evicted.
	Heartbeat(ctx context.Context, workerID string) error

	// HandleResult ingests a worker's completion or execution-error report.
	HandleResult(ctx context.Context, report *ResultReport) error
}

// PipelineStatus is a point-in-time snapshot of the scheduler, served by the
// status API and rendered by the CLI.
type PipelineStatus struct {
	QueuedJobs  int `json:"queued_jobs"`
	ActiveJobs  int `json:"active_jobs"`
	IdleWorkers int `json:"idle_workers"`
	BusyWorkers int `json:"busy_workers"`
}

// NotifyFunc delivers one commit notification into the pipeline.
type NotifyFunc func(ctx context.Context, n CommitNotification) error

// CommitSource is anything that can notice commits and deliver them,
// at-least-once, through a NotifyFunc. The poller and the webhook intake are
// the two implementations; the dispatcher does not care which is configured.
type CommitSource interface {
	Run(ctx context.Context, notify NotifyFunc) error
}
