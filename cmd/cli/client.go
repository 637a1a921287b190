package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/testherd/testherd/internal/core"
)

// apiClient is a thin wrapper over the dispatcher's HTTP API.
type apiClient struct {
	baseURL string
	client  *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *apiClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *apiClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach dispatcher at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dispatcher answered %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode dispatcher response: %w", err)
	}
	return nil
}

func (c *apiClient) status(ctx context.Context) (core.PipelineStatus, error) {
	var status core.PipelineStatus
	err := c.get(ctx, "/api/v1/status", &status)
	return status, err
}

func (c *apiClient) results(ctx context.Context, commitID string) (*core.ResultSet, error) {
	path := "/api/v1/results/latest"
	if commitID != "" {
		path = "/api/v1/results/" + commitID
	}
	var rs core.ResultSet
	if err := c.get(ctx, path, &rs); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (c *apiClient) submit(ctx context.Context, n core.CommitNotification) (*core.Job, error) {
	var job core.Job
	if err := c.post(ctx, "/api/v1/commits", n, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
