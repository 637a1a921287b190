package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/queue"
)

// CommitHandler accepts direct commit notifications, the non-webhook intake
// used by pollers and the CLI.
type CommitHandler struct {
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

// NewCommitHandler creates a new commit notification handler.
func NewCommitHandler(dispatcher core.JobDispatcher, logger *slog.Logger) *CommitHandler {
	return &CommitHandler{dispatcher: dispatcher, logger: logger}
}

// Handle queues a job for a notified commit.
func (h *CommitHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var n core.CommitNotification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.dispatcher.Submit(r.Context(), n)
	switch {
	case errors.Is(err, queue.ErrDuplicateActiveJob):
		// Redelivery of a commit that is already in flight is not a failure.
		respondJSON(w, http.StatusOK, map[string]string{
			"status": "already queued",
			"commit": n.CommitID,
		})
		return
	case err != nil:
		h.logger.Error("failed to queue commit", "commit", n.CommitID, "error", err)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, job)
}
