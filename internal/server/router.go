package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/testherd/testherd/internal/config"
	"github.com/testherd/testherd/internal/core"
	"github.com/testherd/testherd/internal/server/handler"
	"github.com/testherd/testherd/internal/store"
)

// Deps bundles everything the router serves.
type Deps struct {
	Config     *config.Config
	Dispatcher core.JobDispatcher
	Status     handler.StatusReporter
	Results    store.ResultStore
	Metrics    http.Handler
	Logger     *slog.Logger
}

// NewRouter creates and configures a new HTTP router with middleware and API
// routes.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Configure middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		commitHandler := handler.NewCommitHandler(deps.Dispatcher, deps.Logger)
		r.Post("/commits", commitHandler.Handle)

		webhookHandler := handler.NewWebhookHandler(deps.Config, deps.Dispatcher, deps.Logger)
		r.Post("/webhook/github", webhookHandler.Handle)

		workerHandler := handler.NewWorkerHandler(deps.Dispatcher, deps.Logger)
		r.Post("/workers", workerHandler.Register)
		r.Post("/workers/{workerID}/heartbeat", workerHandler.Heartbeat)
		r.Post("/workers/{workerID}/results", workerHandler.Results)

		resultsHandler := handler.NewResultsHandler(deps.Results, deps.Logger)
		r.Get("/results/latest", resultsHandler.Latest)
		r.Get("/results/{commitID}", resultsHandler.Get)

		if deps.Status != nil {
			statusHandler := handler.NewStatusHandler(deps.Status)
			r.Get("/status", statusHandler.Handle)
		}
	})

	return r
}
