// Package observer watches a repository for new commits and feeds them into
// the pipeline.
package observer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/queue"
)

// HeadResolver resolves the current tip of a remote branch. gitutil.Client
// satisfies this.
type HeadResolver interface {
	RemoteHead(ctx context.Context, repoURL, branch string) (string, error)
}

// Poller is a core.CommitSource that polls a repository's branch head at a
// fixed interval and notifies on every change.
type Poller struct {
	git      HeadResolver
	repoURL  string
	branch   string
	interval time.Duration
	logger   *slog.Logger

	lastSHA string
}

// NewPoller creates a poller for one repository branch.
func NewPoller(git HeadResolver, repoURL, branch string, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		git:      git,
		repoURL:  repoURL,
		branch:   branch,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until the context ends. Resolution and delivery failures are
// logged and retried on the next tick; a poller outage delays notifications
// but never loses the newest commit.
func (p *Poller) Run(ctx context.Context, notify core.NotifyFunc) error {
	p.logger.Info("watching repository",
		"repo", p.repoURL,
		"branch", p.branch,
		"interval", p.interval,
	)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx, notify)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Poller) poll(ctx context.Context, notify core.NotifyFunc) {
	sha, err := p.git.RemoteHead(ctx, p.repoURL, p.branch)
	if err != nil {
		p.logger.Warn("failed to resolve remote head", "repo", p.repoURL, "error", err)
		return
	}
	if sha == p.lastSHA {
		return
	}

	n := core.CommitNotification{CommitID: sha, RepoURL: p.repoURL}
	err = notify(ctx, n)
	switch {
	case errors.Is(err, queue.ErrDuplicateActiveJob):
		// Already in flight, nothing to do. Remember the SHA so the next
		// tick stays quiet.
	case err != nil:
		// Leave lastSHA unchanged so delivery is retried next tick.
		p.logger.Warn("failed to deliver commit notification", "commit", sha, "error", err)
		return
	default:
		p.logger.Info("new commit noticed", "commit", sha, "branch", p.branch)
	}
	p.lastSHA = sha
}
