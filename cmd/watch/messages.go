package main

import (
	"time"

	"github.com/testherd/testherd/internal/core"
)

// Carries a fresh scheduler snapshot from the dispatcher.
type statusMsg struct {
	status core.PipelineStatus
	err    error
}

// Carries the newest recorded result set. A nil set with a nil error means
// nothing has been recorded yet.
type resultsMsg struct {
	rs  *core.ResultSet
	err error
}

// Drives the periodic refresh.
type tickMsg time.Time
