// Package app initializes and orchestrates the dispatcher's components. It
// wires together the configuration, queue, scheduler, result store, commit
// source, and HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/testherd/testherd/internal/config"
	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/db"
	"github.com/testherd/testherd/internal/dispatch"
	"github.com/testherd/testherd/internal/gitutil"
	"github.com/testherd/testherd/internal/metrics"
	"github.com/testherd/testherd/internal/observer"
	"github.com/testherd/testherd/internal/queue"
	"github.com/testherd/testherd/internal/server"
	"github.com/testherd/testherd/internal/store"
)

// workerClientTimeout bounds one assignment handshake with a runner. Slow
// suites do not matter here; the runner answers 202 before running anything.
const workerClientTimeout = 15 * time.Second

// App holds the main application components.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	queue      *queue.Queue
	dispatcher *dispatch.Dispatcher
	server     *server.Server
	poller     *observer.Poller

	runCtx  context.Context
	cancel  context.CancelFunc
	group   *errgroup.Group
	dbClose func()
}

// NewApp sets up the application with all its dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("initializing testherd dispatcher",
		"source_mode", cfg.SourceMode,
		"storage_driver", cfg.StorageDriver,
		"max_attempts", cfg.MaxAttempts,
		"heartbeat_timeout", cfg.HeartbeatTimeout,
		"job_timeout", cfg.JobTimeout,
	)

	results, dbClose, err := newResultStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	q := queue.New()
	mets := metrics.NewCollector()
	dispatcher := dispatch.New(dispatch.Config{
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		JobTimeout:       cfg.JobTimeout,
		MaxAttempts:      cfg.MaxAttempts,
	}, q, results, dispatch.NewHTTPWorkerClient(workerClientTimeout), mets, logger)

	router := server.NewRouter(server.Deps{
		Config:     cfg,
		Dispatcher: dispatcher,
		Status:     dispatcher,
		Results:    results,
		Metrics:    mets.Handler(),
		Logger:     logger,
	})
	httpServer := server.NewServer(cfg.ServerPort, router, logger)

	var poller *observer.Poller
	if cfg.SourceMode == "poll" {
		poller = observer.NewPoller(gitutil.NewClient(logger), cfg.RepoURL, cfg.RepoBranch, cfg.PollInterval, logger)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, runCtx := errgroup.WithContext(runCtx)

	logger.Info("testherd dispatcher initialized successfully")
	return &App{
		cfg:        cfg,
		logger:     logger,
		queue:      q,
		dispatcher: dispatcher,
		server:     httpServer,
		poller:     poller,
		runCtx:     runCtx,
		cancel:     cancel,
		group:      g,
		dbClose:    dbClose,
	}, nil
}

// Start launches the scheduler and commit source, then runs the HTTP server.
// It blocks until the server exits.
func (a *App) Start() error {
	a.logger.Info("starting testherd dispatcher", "server_port", a.cfg.ServerPort)

	a.group.Go(func() error {
		return a.dispatcher.Run(a.runCtx)
	})
	if a.poller != nil {
		notify := func(ctx context.Context, n core.CommitNotification) error {
			_, err := a.dispatcher.Submit(ctx, n)
			return err
		}
		a.group.Go(func() error {
			err := a.poller.Run(a.runCtx, notify)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := a.server.Start(); err != nil {
		a.logger.Error("failed to start HTTP server", "error", err)
		return err
	}
	return nil
}

// Stop shuts down the application cleanly.
func (a *App) Stop() error {
	a.logger.Info("shutting down testherd dispatcher")

	// Stop the HTTP server first to prevent new incoming requests.
	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
		// Continue to stop other components even if the server failed.
	}

	a.cancel()
	a.queue.Close()
	if err := a.group.Wait(); err != nil {
		a.logger.Error("background component exited with error", "error", err)
	}

	if a.dbClose != nil {
		a.logger.Info("closing database connection")
		a.dbClose()
	}

	if serverErr != nil {
		return serverErr
	}
	a.logger.Info("testherd dispatcher stopped successfully")
	return nil
}

func newResultStore(cfg *config.Config, logger *slog.Logger) (store.ResultStore, func(), error) {
	switch cfg.StorageDriver {
	case "postgres":
		conn, cleanup, err := db.New(cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("result store ready", "driver", "postgres", "database", cfg.Database.Database)
		return store.NewPostgresStore(conn.DB), cleanup, nil
	default:
		logger.Info("result store ready", "driver", "memory")
		return store.NewMemoryStore(), nil, nil
	}
}
