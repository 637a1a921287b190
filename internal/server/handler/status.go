package handler

import (
	"net/http"

	"github.com/testherd/testherd/internal/core"
)

// StatusReporter exposes a scheduler snapshot without coupling the handler to
// the scheduler itself.
type StatusReporter interface {
	Status() core.PipelineStatus
}

// StatusHandler serves the pipeline snapshot consumed by the CLI and the
// watch UI.
type StatusHandler struct {
	reporter StatusReporter
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(reporter StatusReporter) *StatusHandler {
	return &StatusHandler{reporter: reporter}
}

// Handle returns the current pipeline status.
func (h *StatusHandler) Handle(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, h.reporter.Status())
}
