package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/testherd/testherd/internal/core"
)

// ErrWorkerBusy reports that a runner refused an assignment because it is
// already executing a job. The dispatcher returns the job to the backlog
// without charging an attempt.
var ErrWorkerBusy = errors.New("worker is busy")

// WorkerClient delivers job assignments to remote runners. The HTTP
// implementation is the production one; tests substitute fakes.
type WorkerClient interface {
	Assign(ctx context.Context, address string, a core.Assignment) error
}

type httpWorkerClient struct {
	client *http.Client
}

// NewHTTPWorkerClient returns a WorkerClient speaking the runner's HTTP API.
// The timeout covers only the assignment handshake; job execution itself is
// bounded separately by the dispatcher's job deadline.
func NewHTTPWorkerClient(timeout time.Duration) WorkerClient {
	return &httpWorkerClient{
		client: &http.Client{Timeout: timeout},
	}
}

func (c *httpWorkerClient) Assign(ctx context.Context, address string, a core.Assignment) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode assignment: %w", err)
	}

	url := workerBaseURL(address) + "/api/v1/jobs"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build assignment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("worker at %s unreachable: %w", address, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return ErrWorkerBusy
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("worker at %s rejected assignment: %s: %s", address, resp.Status, strings.TrimSpace(string(msg)))
	}
}

func workerBaseURL(address string) string {
	if strings.Contains(address, "://") {
		return strings.TrimSuffix(address, "/")
	}
	return "http://" + strings.TrimSuffix(address, "/")
}
