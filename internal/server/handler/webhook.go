package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v73/github"

	"github.com/testherd/testherd/internal/config"
	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/queue"
)

// WebhookHandler processes incoming webhooks from GitHub.
type WebhookHandler struct {
	cfg        *config.Config
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

// NewWebhookHandler creates a new webhook handler with the given configuration
// and dispatcher.
func NewWebhookHandler(cfg *config.Config, dispatcher core.JobDispatcher, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Handle processes GitHub webhook requests.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, []byte(h.cfg.WebhookSecret))
	if err != nil {
		h.logger.Error("invalid webhook payload signature", "error", err)
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		h.logger.Error("could not parse webhook", "error", err)
		http.Error(w, "Could not parse webhook", http.StatusBadRequest)
		return
	}

	switch e := event.(type) {
	case *github.PushEvent:
		h.handlePush(r.Context(), w, e)
	default:
		h.logger.Debug("ignoring unhandled webhook event type", "type", github.WebHookType(r))
		_, _ = fmt.Fprint(w, "Event type not handled")
	}
}

// handlePush processes push events from GitHub.
func (h *WebhookHandler) handlePush(ctx context.Context, w http.ResponseWriter, event *github.PushEvent) {
	n, err := core.NotificationFromPush(event)
	if err != nil {
		h.logger.Debug("ignoring push event", "reason", err.Error(), "repo", event.GetRepo().GetFullName())
		_, _ = fmt.Fprint(w, "Push ignored")
		return
	}

	job, err := h.dispatcher.Submit(ctx, *n)
	if errors.Is(err, queue.ErrDuplicateActiveJob) {
		h.logger.Debug("push redelivered for commit already in flight", "commit", n.CommitID)
		_, _ = fmt.Fprint(w, "Commit already queued")
		return
	}
	if err != nil {
		h.logger.Error("failed to queue pushed commit", "error", err, "commit", n.CommitID)
		http.Error(w, "Failed to queue commit", http.StatusInternalServerError)
		return
	}

	h.logger.Info("push queued for testing", "commit", n.CommitID, "sequence", job.Commit.Sequence)
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprint(w, "Commit accepted")
}
