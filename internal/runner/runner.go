package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/testherd/testherd/internal/core"
)

// registerRetryDelay paces registration attempts while the dispatcher is
// unreachable, typically during a rolling restart.
const registerRetryDelay = 3 * time.Second

// maxMissedHeartbeats is how many consecutive heartbeat failures the runner
// tolerates before concluding the dispatcher is gone and shutting down. A
// supervisor restarting the process gets a clean re-registration instead of
// an agent heartbeating into the void.
const maxMissedHeartbeats = 5

// Config holds the runner agent's settings.
type Config struct {
	// DispatcherURL is the base URL of the dispatcher's API.
	DispatcherURL string
	// Address is how the dispatcher reaches this runner's job endpoint.
	Address string
	// HeartbeatInterval is how often liveness is reported. It must be well
	// under the dispatcher's heartbeat timeout.
	HeartbeatInterval time.Duration
	// JobTimeout bounds a single suite run.
	JobTimeout time.Duration
}

// Agent is one pipeline worker. It runs at most one job at a time and refuses
// overlapping assignments with 409, letting the dispatcher reschedule instead
// of queueing work behind a busy runner.
type Agent struct {
	cfg      Config
	executor *Executor
	client   *http.Client
	logger   *slog.Logger

	busy     atomic.Bool
	workerID atomic.Value // string
	jobs     chan core.Assignment
}

// NewAgent creates a runner agent around an executor.
func NewAgent(cfg Config, executor *Executor, logger *slog.Logger) *Agent {
	return &Agent{
		cfg:      cfg,
		executor: executor,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
		jobs:     make(chan core.Assignment, 1),
	}
}

// Router returns the runner's HTTP surface: a health check and the job
// intake the dispatcher posts assignments to.
func (a *Agent) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Post("/api/v1/jobs", a.handleAssignment)
	return r
}

// handleAssignment accepts one job if the runner is free.
func (a *Agent) handleAssignment(w http.ResponseWriter, r *http.Request) {
	var assignment core.Assignment
	if err := json.NewDecoder(r.Body).Decode(&assignment); err != nil {
		http.Error(w, "invalid assignment body", http.StatusBadRequest)
		return
	}
	if assignment.JobID == "" || assignment.CommitID == "" {
		http.Error(w, "assignment is missing job or commit id", http.StatusBadRequest)
		return
	}

	if !a.busy.CompareAndSwap(false, true) {
		a.logger.Warn("refusing assignment, already running a job", "job_id", assignment.JobID)
		http.Error(w, "runner is busy", http.StatusConflict)
		return
	}

	a.jobs <- assignment
	w.WriteHeader(http.StatusAccepted)
}

// Run registers with the dispatcher and drives the heartbeat and job loops
// until the context ends.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.heartbeatLoop(ctx) })
	g.Go(func() error { return a.jobLoop(ctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// register announces this runner to the dispatcher, retrying until it is
// reachable. The dispatcher assigns the worker identity.
func (a *Agent) register(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"address": a.cfg.Address})

	for {
		worker, err := a.postRegistration(ctx, body)
		if err == nil {
			a.workerID.Store(worker.ID)
			a.logger.Info("registered with dispatcher",
				"worker_id", worker.ID,
				"dispatcher", a.cfg.DispatcherURL,
			)
			return nil
		}

		a.logger.Warn("registration failed, retrying", "error", err, "delay", registerRetryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(registerRetryDelay):
		}
	}
}

func (a *Agent) postRegistration(ctx context.Context, body []byte) (*core.Worker, error) {
	url := strings.TrimSuffix(a.cfg.DispatcherURL, "/") + "/api/v1/workers"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach dispatcher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("registration rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var worker core.Worker
	if err := json.NewDecoder(resp.Body).Decode(&worker); err != nil {
		return nil, fmt.Errorf("failed to decode registration response: %w", err)
	}
	return &worker, nil
}

// heartbeatLoop reports liveness. A 404 means the dispatcher evicted this
// runner, in which case it re-registers under a fresh identity.
func (a *Agent) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	missed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		status, err := a.postHeartbeat(ctx)
		switch {
		case err != nil:
			missed++
			if missed >= maxMissedHeartbeats {
				return fmt.Errorf("dispatcher unreachable after %d heartbeats: %w", missed, err)
			}
			a.logger.Warn("heartbeat failed", "error", err, "missed", missed)
			continue
		case status == http.StatusNotFound:
			a.logger.Warn("evicted by dispatcher, re-registering")
			if err := a.register(ctx); err != nil {
				return err
			}
		}
		missed = 0
	}
}

func (a *Agent) postHeartbeat(ctx context.Context) (int, error) {
	id, _ := a.workerID.Load().(string)
	url := fmt.Sprintf("%s/api/v1/workers/%s/heartbeat", strings.TrimSuffix(a.cfg.DispatcherURL, "/"), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

// jobLoop runs accepted assignments one at a time.
func (a *Agent) jobLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case assignment := <-a.jobs:
			a.runJob(ctx, assignment)
			a.busy.Store(false)
		}
	}
}

func (a *Agent) runJob(ctx context.Context, assignment core.Assignment) {
	a.logger.Info("starting job", "job_id", assignment.JobID, "commit", assignment.CommitID)

	jobCtx, cancel := context.WithTimeout(ctx, a.cfg.JobTimeout)
	defer cancel()

	report := &core.ResultReport{
		JobID:    assignment.JobID,
		CommitID: assignment.CommitID,
	}
	results, err := a.executor.Run(jobCtx, assignment)
	if err != nil {
		report.ExecError = err.Error()
	} else {
		report.Results = results
	}

	if err := a.postResults(ctx, report); err != nil {
		// The dispatcher's job timeout recovers the job; nothing to do here.
		a.logger.Error("failed to report results", "job_id", assignment.JobID, "error", err)
		return
	}
	a.logger.Info("job finished",
		"job_id", assignment.JobID,
		"commit", assignment.CommitID,
		"exec_error", report.ExecError != "",
	)
}

func (a *Agent) postResults(ctx context.Context, report *core.ResultReport) error {
	id, _ := a.workerID.Load().(string)
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode result report: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/workers/%s/results", strings.TrimSuffix(a.cfg.DispatcherURL, "/"), id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach dispatcher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("report rejected: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
