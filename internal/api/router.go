// Package api wires the HTTP surface: router, middleware chain and
// endpoint handlers.
package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/solverlab/bellman/internal/api/handlers"
	mw "github.com/solverlab/bellman/internal/api/middleware"
	"github.com/solverlab/bellman/internal/buildconfig"
	"github.com/solverlab/bellman/internal/config"
	"github.com/solverlab/bellman/internal/domain"
	"github.com/solverlab/bellman/internal/service"
	"github.com/solverlab/bellman/internal/solver"
	"github.com/solverlab/bellman/internal/store"
)

// App holds the router and background services for lifecycle
// management.
type App struct {
	Router    *chi.Mux
	Retention *service.RetentionService

	db           *pgxpool.Pool
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(cfg *config.Config, db *pgxpool.Pool, logger *zap.Logger) *App {
	var runStore domain.RunStore
	if db != nil {
		runStore = store.NewRunStore(db)
	}

	solveSvc := service.NewSolveService(runStore, logger)
	solveSvc.SetDefaults(solver.Config{
		Gamma:         cfg.Solver.Gamma,
		Epsilon:       cfg.Solver.Epsilon,
		MaxIterations: cfg.Solver.MaxIterations,
		Workers:       cfg.Solver.Workers,
	})
	validationSvc := service.NewValidationService(logger)

	var retention *service.RetentionService
	if runStore != nil {
		retention = service.NewRetentionService(runStore, logger)
		retention.SetMaxAge(cfg.Retention.MaxAge)
		retention.SetInterval(cfg.Retention.Interval)
	}

	solveHandler := handlers.NewSolveHandler(solveSvc)
	validateHandler := handlers.NewValidateHandler(validationSvc)

	r := chi.NewRouter()
	app := &App{
		Router:    r,
		Retention: retention,
		db:        db,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// order matters: request ID first so logging can pick it up
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	r.Get("/healthz", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.BearerAuth(cfg.Server.APIKey))

		r.Post("/solve", solveHandler.Solve)
		r.Post("/validate", validateHandler.Validate)

		if runStore != nil {
			runHandler := handlers.NewRunHandler(runStore)
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", runHandler.List)
				r.Get("/{id}", runHandler.GetByID)
				r.Get("/{id}/similar", runHandler.Similar)
			})
		}
	})

	return app
}

// Start launches the background services, if any.
func (app *App) Start() {
	if app.Retention != nil {
		app.Retention.Start()
	}
}

// Stop shuts the background services down.
func (app *App) Stop() {
	if app.Retention != nil {
		app.Retention.Stop()
	}
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":  "ok",
			"version": buildconfig.Version(),
			"commit":  buildconfig.Commit(),
			"uptime":  time.Since(app.startTime).Round(time.Second).String(),
		}
		status := http.StatusOK
		if app.db != nil {
			if err := app.db.Ping(r.Context()); err != nil {
				resp["status"] = "error"
				resp["error"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)
		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb": float64(memStats.Alloc) / 1024 / 1024,
				"sys_mb":   float64(memStats.Sys) / 1024 / 1024,
				"num_gc":   memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
