package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/testherd/testherd/internal/config"
	"github.com/testherd/testherd/internal/gitutil"
	"github.com/testherd/testherd/internal/logger"
	"github.com/testherd/testherd/internal/runner"
	"github.com/testherd/testherd/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("runner failed to run", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(cfg.Logger, os.Stdout)
	slog.SetDefault(log)

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "testherd-runner")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory %s: %w", workDir, err)
	}

	address := cfg.RunnerAddress
	if address == "" {
		address = "localhost:" + cfg.RunnerPort
	}

	executor := runner.NewExecutor(gitutil.NewClient(log), workDir, log)
	agent := runner.NewAgent(runner.Config{
		DispatcherURL:     cfg.DispatcherURL,
		Address:           address,
		HeartbeatInterval: heartbeatInterval(cfg.HeartbeatTimeout),
		JobTimeout:        cfg.JobTimeout,
	}, executor, log)

	srv := server.NewServer(cfg.RunnerPort, agent.Router(), log)

	log.Info("starting testherd runner",
		"address", address,
		"dispatcher", cfg.DispatcherURL,
		"work_dir", workDir,
	)

	go func() {
		if err := srv.Start(); err != nil {
			log.Error("server error", "error", err)
			cancel()
		}
	}()
	go func() {
		if err := agent.Run(ctx); err != nil {
			log.Error("agent error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
		log.Info("received shutdown signal")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down")
	}

	cancel()
	if err := srv.Stop(); err != nil {
		return fmt.Errorf("failed to stop runner server: %w", err)
	}
	return nil
}

// heartbeatInterval keeps liveness reports comfortably inside the
// dispatcher's eviction window.
func heartbeatInterval(timeout time.Duration) time.Duration {
	interval := timeout / 3
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}
