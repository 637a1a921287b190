package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/testherd/testherd/internal/app"
	"github.com/testherd/testherd/internal/config"
	"github.com/testherd/testherd/internal/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("dispatcher failed to run", "error", err)
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

	a, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	go func() {
		if err := a.Start(); err != nil {
			log.Error("server error", "error", err)
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

	if err := a.Stop(); err != nil {
		return fmt.Errorf("failed to stop dispatcher: %w", err)
	}
	return nil
}
