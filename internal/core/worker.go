package core

import "time"

// WorkerState tracks a registered test runner from the dispatcher's point of
// view. Workers are owned exclusively by the dispatcher's registry; no other
// component mutates a worker record.
type WorkerState string

const (
	WorkerIdle        WorkerState = "idle"
	WorkerBusy        WorkerState = "busy"
	WorkerUnreachable WorkerState = "unreachable"
)

// Worker is the dispatcher's record of one remote test runner. A worker
// executes at most one job at a time; the entry persists across jobs and is
// reused for the next assignment.
type Worker struct {
	ID            string      `json:"id"`
	Address       string      `json:"address"`
	State         WorkerState `json:"state"`
	CurrentJob    string      `json:"current_job,omitempty"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
	IdleSince     time.Time   `json:"idle_since"`
	RegisteredAt  time.Time   `json:"registered_at"`
}
