package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/dispatch"
)

// WorkerHandler serves the runner-facing side of the API: registration,
// heartbeats, and result reports.
type WorkerHandler struct {
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

// NewWorkerHandler creates a new worker traffic handler.
func NewWorkerHandler(dispatcher core.JobDispatcher, logger *slog.Logger) *WorkerHandler {
	return &WorkerHandler{dispatcher: dispatcher, logger: logger}
}

type registerRequest struct {
	Address string `json:"address"`
}

// Register adds a runner to the pool and returns its assigned identity.
func (h *WorkerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	worker, err := h.dispatcher.RegisterWorker(r.Context(), req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, worker)
}

// Heartbeat refreshes a worker's liveness. An evicted or never-registered
// worker gets a 404 and is expected to re-register.
func (h *WorkerHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")

	err := h.dispatcher.Heartbeat(r.Context(), workerID)
	if errors.Is(err, dispatch.ErrUnknownWorker) {
		respondError(w, http.StatusNotFound, "unknown worker")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Results ingests a worker's result report for a finished job.
func (h *WorkerHandler) Results(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")

	var report core.ResultReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	report.WorkerID = workerID
	if err := report.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.dispatcher.HandleResult(r.Context(), &report); err != nil {
		h.logger.Error("failed to ingest result report",
			"worker_id", workerID,
			"job_id", report.JobID,
			"error", err,
		)
		respondError(w, http.StatusInternalServerError, "failed to record results")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
