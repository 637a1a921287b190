package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/testherd/testherd/internal/core"
)

const refreshInterval = 3 * time.Second

var httpClient = &http.Client{Timeout: 5 * time.Second}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchStatusCmd(baseURL string) tea.Cmd {
	return func() tea.Msg {
		var status core.PipelineStatus
		if err := getJSON(baseURL+"/api/v1/status", &status); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{status: status}
	}
}

func fetchResultsCmd(baseURL string) tea.Cmd {
	return func() tea.Msg {
		var rs core.ResultSet
		err := getJSON(baseURL+"/api/v1/results/latest", &rs)
		if err != nil {
			if strings.Contains(err.Error(), "status 404") {
				return resultsMsg{}
			}
			return resultsMsg{err: err}
		}
		return resultsMsg{rs: &rs}
	}
}

func getJSON(url string, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach dispatcher: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("dispatcher answered status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
