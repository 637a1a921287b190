package core

import "time"

// JobState tracks a job through its lifecycle. A job moves
// Queued -> Assigned -> Running -> Completed or Failed; a worker failure
// moves it Running -> Queued again until the attempt budget is spent.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobAssigned  JobState = "assigned"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is one attempt (with retries) to build and test a specific commit.
// At most one non-terminal Job exists per commit id; requeued jobs keep
// their commit and sequence so display ordering survives retries.
type Job struct {
	ID          string    `json:"id"`
	Commit      Commit    `json:"commit"`
	State       JobState  `json:"state"`
	Attempt     int       `json:"attempt"`
	WorkerID    string    `json:"worker_id,omitempty"`
	LastFailure string    `json:"last_failure,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
