package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/testherd/testherd/internal/config"
	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/dispatch"
	"github.com/testherd/testherd/internal/queue"
	"github.com/testherd/testherd/internal/server"
	"github.com/testherd/testherd/internal/store"
)

type fakeDispatcher struct {
	submitted  []core.CommitNotification
	submitErr  error
	workers    map[string]bool
	reports    []*core.ResultReport
	lastStatus core.PipelineStatus
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{workers: make(map[string]bool)}
}

func (f *fakeDispatcher) Submit(_ context.Context, n core.CommitNotification) (*core.Job, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, n)
	return &core.Job{
		ID:      "job-1",
		Commit:  core.Commit{ID: n.CommitID, Sequence: uint64(len(f.submitted)), RepoURL: n.RepoURL},
		State:   core.JobQueued,
		Attempt: 1,
	}, nil
}

func (f *fakeDispatcher) RegisterWorker(_ context.Context, address string) (*core.Worker, error) {
	if address == "" {
		return nil, assert.AnError
	}
	f.workers["worker-1"] = true
	return &core.Worker{ID: "worker-1", Address: address, State: core.WorkerIdle}, nil
}

func (f *fakeDispatcher) Heartbeat(_ context.Context, workerID string) error {
	if !f.workers[workerID] {
		return dispatch.ErrUnknownWorker
	}
	return nil
}

func (f *fakeDispatcher) HandleResult(_ context.Context, report *core.ResultReport) error {
	f.reports = append(f.reports, report)
	return nil
}

func (f *fakeDispatcher) Status() core.PipelineStatus { return f.lastStatus }

func newTestRouter(t *testing.T, fd *fakeDispatcher, results store.ResultStore) http.Handler {
	t.Helper()
	if results == nil {
		results = store.NewMemoryStore()
	}
	return server.NewRouter(server.Deps{
		Config:     &config.Config{WebhookSecret: ""},
		Dispatcher: fd,
		Status:     fd,
		Results:    results,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestRouter(t, newFakeDispatcher(), nil)
	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCommitIntake(t *testing.T) {
	t.Run("valid notification is accepted", func(t *testing.T) {
		fd := newFakeDispatcher()
		h := newTestRouter(t, fd, nil)

		rec := doJSON(t, h, http.MethodPost, "/api/v1/commits", core.CommitNotification{
			CommitID: "a1b2c3d4e5f60718",
			RepoURL:  "https://example.com/acme/service.git",
		})

		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Len(t, fd.submitted, 1)

		var job core.Job
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		assert.Equal(t, "a1b2c3d4e5f60718", job.Commit.ID)
		assert.Equal(t, core.JobQueued, job.State)
	})

	t.Run("redelivered commit reports already queued", func(t *testing.T) {
		fd := newFakeDispatcher()
		fd.submitErr = queue.ErrDuplicateActiveJob
		h := newTestRouter(t, fd, nil)

		rec := doJSON(t, h, http.MethodPost, "/api/v1/commits", core.CommitNotification{
			CommitID: "a1b2c3d4e5f60718",
			RepoURL:  "https://example.com/acme/service.git",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "already queued")
	})

	t.Run("missing commit id is rejected", func(t *testing.T) {
		h := newTestRouter(t, newFakeDispatcher(), nil)
		rec := doJSON(t, h, http.MethodPost, "/api/v1/commits", core.CommitNotification{
			RepoURL: "https://example.com/acme/service.git",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body is rejected", func(t *testing.T) {
		h := newTestRouter(t, newFakeDispatcher(), nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/commits", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWorkerEndpoints(t *testing.T) {
	fd := newFakeDispatcher()
	h := newTestRouter(t, fd, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/workers", map[string]string{"address": "runner:9000"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var w core.Worker
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))
	assert.Equal(t, "worker-1", w.ID)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/workers/worker-1/heartbeat", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/workers/ghost/heartbeat", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/workers/worker-1/results", core.ResultReport{
		JobID:    "job-1",
		CommitID: "a1b2c3d4e5f60718",
		Results: []core.Result{
			{TestName: "TestCheckout", Kind: core.ResultPass},
		},
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, fd.reports, 1)
	// The worker identity comes from the URL, not the body.
	assert.Equal(t, "worker-1", fd.reports[0].WorkerID)
}

func TestWorkerResults_RejectsMalformedReport(t *testing.T) {
	tests := []struct {
		name   string
		report core.ResultReport
	}{
		{
			name: "unknown result kind",
			report: core.ResultReport{
				JobID:    "job-1",
				CommitID: "a1b2c3d4e5f60718",
				Results:  []core.Result{{TestName: "TestCheckout", Kind: "banana"}},
			},
		},
		{
			name: "missing job id",
			report: core.ResultReport{
				CommitID: "a1b2c3d4e5f60718",
				Results:  []core.Result{{TestName: "TestCheckout", Kind: core.ResultPass}},
			},
		},
		{
			name: "missing commit id",
			report: core.ResultReport{
				JobID:   "job-1",
				Results: []core.Result{{TestName: "TestCheckout", Kind: core.ResultPass}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := newFakeDispatcher()
			h := newTestRouter(t, fd, nil)

			rec := doJSON(t, h, http.MethodPost, "/api/v1/workers/worker-1/results", tt.report)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, fd.reports, "a rejected report must never reach the dispatcher")
		})
	}
}

func TestResultsEndpoints(t *testing.T) {
	results := store.NewMemoryStore()
	h := newTestRouter(t, newFakeDispatcher(), results)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/results/latest", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, results.Put(context.Background(), &core.ResultSet{
		CommitID: "a1b2c3d4e5f60718",
		Sequence: 7,
		Results: []core.Result{
			{TestName: "test_x", Kind: core.ResultFail, Reasons: []string{"AssertionError"}},
		},
		ProducedAt: time.Now().UTC(),
	}))

	rec = doJSON(t, h, http.MethodGet, "/api/v1/results/latest", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var rs core.ResultSet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rs))
	assert.Equal(t, uint64(7), rs.Sequence)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/results/a1b2c3d4e5f60718", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/results/ffffffffffffffff", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusEndpoint(t *testing.T) {
	fd := newFakeDispatcher()
	fd.lastStatus = core.PipelineStatus{QueuedJobs: 2, ActiveJobs: 3, IdleWorkers: 1, BusyWorkers: 1}
	h := newTestRouter(t, fd, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status core.PipelineStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, fd.lastStatus, status)
}

func TestWebhookPushEvent(t *testing.T) {
	fd := newFakeDispatcher()
	h := newTestRouter(t, fd, nil)

	payload := `{
		"after": "a1b2c3d4e5f60718",
		"deleted": false,
		"repository": {"clone_url": "https://github.com/acme/service.git", "full_name": "acme/service"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/github", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, fd.submitted, 1)
	assert.Equal(t, "a1b2c3d4e5f60718", fd.submitted[0].CommitID)
	assert.Equal(t, "https://github.com/acme/service.git", fd.submitted[0].RepoURL)
}

func TestWebhookIgnoresBranchDeletion(t *testing.T) {
	fd := newFakeDispatcher()
	h := newTestRouter(t, fd, nil)

	payload := `{
		"ref": "refs/heads/old-feature",
		"deleted": true,
		"repository": {"clone_url": "https://github.com/acme/service.git", "full_name": "acme/service"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/github", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fd.submitted)
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	fd := newFakeDispatcher()
	h := newTestRouter(t, fd, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhook/github", bytes.NewBufferString(`{"zen": "keep it simple"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "ping")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, fd.submitted)
}
