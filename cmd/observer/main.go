package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/testherd/testherd/internal/config"
	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/gitutil"
	"github.com/testherd/testherd/internal/logger"
	"github.com/testherd/testherd/internal/observer"
)

// notifyTimeout bounds one delivery to the dispatcher.
const notifyTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("observer failed to run", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.RepoURL == "" {
		return fmt.Errorf("REPO_URL must be set for the observer")
	}
	log := logger.New(cfg.Logger, os.Stdout)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poller := observer.NewPoller(gitutil.NewClient(log), cfg.RepoURL, cfg.RepoBranch, cfg.PollInterval, log)
	notifier := observer.NewHTTPNotifier(cfg.DispatcherURL, notifyTimeout)

	notify := func(ctx context.Context, n core.CommitNotification) error {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		return notifier.Notify(ctx, n)
	}

	log.Info("starting testherd observer", "repo", cfg.RepoURL, "dispatcher", cfg.DispatcherURL)
	return poller.Run(ctx, notify)
}
