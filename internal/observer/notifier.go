package observer

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

// HTTPNotifier delivers commit notifications to a remote dispatcher over its
// commits API. It lets the observer run as a standalone binary next to the
// repository while the dispatcher runs elsewhere.
type HTTPNotifier struct {
	baseURL string
	client  *http.Client
}

// NewHTTPNotifier creates a notifier for the dispatcher at baseURL.
func NewHTTPNotifier(baseURL string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Notify posts one commit notification. The dispatcher answers redeliveries
// with 200, so duplicates are not an error here.
func (n *HTTPNotifier) Notify(ctx context.Context, notification core.CommitNotification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode commit notification: %w", err)
	}

	url := n.baseURL + "/api/v1/commits"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach dispatcher at %s: %w", n.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dispatcher rejected commit %s: status %d: %s",
			notification.CommitID, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return nil
}
