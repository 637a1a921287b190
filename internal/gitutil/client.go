// Package gitutil provides a client for working with Git repositories.
package gitutil

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Client handles interacting with Git repositories.
type Client struct {
	Logger *slog.Logger
}

// NewClient returns a new Client instance.
func NewClient(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Logger: logger}
}

// Clone clones a repository to a specific path. It does not checkout a
// specific SHA.
func (c *Client) Clone(ctx context.Context, repoURL, path string) error {
	if err := validateRepoURL(repoURL); err != nil {
		return err
	}

	c.Logger.InfoContext(ctx, "cloning repository", "url", repoURL, "path", path)
	// Use git CLI to clone with longpaths enabled
	cmd := exec.CommandContext(ctx, "git", "-c", "core.longpaths=true", "clone", repoURL, path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone failed: %s: %w", string(out), err)
	}

	// Make sure we can open it with go-git for later inspection
	if _, err := git.PlainOpen(path); err != nil {
		return fmt.Errorf("failed to open cloned repo: %w", err)
	}
	return nil
}

// Fetch fetches updates from the 'origin' remote using git CLI.
func (c *Client) Fetch(ctx context.Context, path string) error {
	c.Logger.InfoContext(ctx, "fetching latest changes from origin", "path", path)

	args := []string{"-c", "core.longpaths=true", "fetch", "origin", "--force", "--prune"}

	// Retry logic for transient errors (e.g. 500 Internal Server Error)
	const maxRetries = 3
	const baseDelay = 2 * time.Second

	var err error
	for i := 0; i <= maxRetries; i++ {
		cmd := exec.CommandContext(ctx, "git", args...)
		cmd.Dir = path

		if i > 0 {
			delay := baseDelay * time.Duration(1<<(i-1))
			c.Logger.WarnContext(ctx, "git fetch failed, retrying",
				"attempt", i,
				"max_retries", maxRetries,
				"delay", delay,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if out, cmdErr := cmd.CombinedOutput(); cmdErr != nil {
			err = fmt.Errorf("git fetch failed: %s: %w", string(out), cmdErr)
			continue
		}
		return nil
	}

	return err
}

// Checkout switches the repository's worktree to a specific commit using
// git CLI.
func (c *Client) Checkout(ctx context.Context, path string, sha string) error {
	c.Logger.InfoContext(ctx, "checking out commit", "sha", sha, "path", path)

	// Force avoids lingering locks from an interrupted previous run
	cmd := exec.CommandContext(ctx, "git", "-c", "core.longpaths=true", "checkout", "--force", "--detach", sha)
	cmd.Dir = path

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout failed: %s: %w", string(out), err)
	}
	return nil
}

// Sync brings a cached working copy to an exact commit, cloning on first use
// and fetching on every later one. Runners call this once per job.
func (c *Client) Sync(ctx context.Context, repoURL, path, sha string) error {
	if _, err := git.PlainOpen(path); err != nil {
		if err := c.Clone(ctx, repoURL, path); err != nil {
			return err
		}
	} else if err := c.Fetch(ctx, path); err != nil {
		return err
	}
	return c.Checkout(ctx, path, sha)
}

// RemoteHead resolves the current tip of a remote branch without cloning.
func (c *Client) RemoteHead(ctx context.Context, repoURL, branch string) (string, error) {
	if err := validateRepoURL(repoURL); err != nil {
		return "", err
	}

	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{repoURL},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to list remote refs for %s: %w", repoURL, err)
	}

	want := fmt.Sprintf("refs/heads/%s", branch)
	for _, ref := range refs {
		if ref.Name().String() == want {
			return ref.Hash().String(), nil
		}
	}
	return "", fmt.Errorf("branch '%s' not found or repository is empty", branch)
}

// HeadSHA returns the current HEAD SHA of the repository at the given path.
func (c *Client) HeadSHA(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "-c", "core.longpaths=true", "rev-parse", "HEAD")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

func validateRepoURL(repoURL string) error {
	// Local paths are allowed directly. file:// is intentionally unsupported.
	if !strings.Contains(repoURL, "://") {
		return nil
	}
	if !strings.HasPrefix(repoURL, "https://") && !strings.HasPrefix(repoURL, "http://") {
		return fmt.Errorf("invalid repository URL: %s", repoURL)
	}
	return nil
}
