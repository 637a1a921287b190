package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/testherd/testherd/internal/store"
)

// ResultsHandler serves recorded test outcomes.
type ResultsHandler struct {
	results store.ResultStore
	logger  *slog.Logger
}

// NewResultsHandler creates a new results query handler.
func NewResultsHandler(results store.ResultStore, logger *slog.Logger) *ResultsHandler {
	return &ResultsHandler{results: results, logger: logger}
}

// Latest returns the result set with the highest commit sequence.
func (h *ResultsHandler) Latest(w http.ResponseWriter, r *http.Request) {
	rs, err := h.results.Latest(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no results recorded yet")
		return
	}
	if err != nil {
		h.logger.Error("failed to load latest results", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load results")
		return
	}
	respondJSON(w, http.StatusOK, rs)
}

// Get returns the recorded result set for one commit.
func (h *ResultsHandler) Get(w http.ResponseWriter, r *http.Request) {
	commitID := chi.URLParam(r, "commitID")

	rs, err := h.results.Get(r.Context(), commitID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no results for commit "+commitID)
		return
	}
	if err != nil {
		h.logger.Error("failed to load results", "commit", commitID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load results")
		return
	}
	respondJSON(w, http.StatusOK, rs)
}
