/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the instructor compensation server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (defaults, PAYROLL_CONFIG YAML, PAYROLL_* env)
  2. Initialize the structured logger
  3. Open the SQLite store
  4. Build the compensation engine (calendar, time zone, fallback, batch limits)
  5. Configure the HTTP router and /metrics
  6. Start the cache warm-up scheduler when enabled
  7. Serve until SIGINT/SIGTERM

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the warm-up scheduler, waiting for a running batch
  4. Close database connection

EXAMPLES:
  # Run with file database
  PAYROLL_DB_PATH=./data/payroll.db ./server

  # Run with in-memory database and demo data loaded via the API
  PAYROLL_DB_PATH=:memory: ./server

  # YAML config with env overrides
  PAYROLL_CONFIG=./payroll.yaml PAYROLL_LOG_LEVEL=debug ./server

SEE ALSO:
  - config/config.go: every setting and its default
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/compensation-engine/api"
	"github.com/warp/compensation-engine/compensation"
	"github.com/warp/compensation-engine/config"
	"github.com/warp/compensation-engine/logger"
	"github.com/warp/compensation-engine/metrics"
	"github.com/warp/compensation-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.Init(); err != nil {
		return err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		return err
	}
	log := logger.Named("server")

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	engine, m, err := newEngine(cfg, store)
	if err != nil {
		return err
	}

	handler := api.NewHandler(store, engine, logger.Get())
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.CORSOrigins,
		Metrics:        m,
	})

	var warmup *api.WarmupScheduler
	if cfg.WarmupEnabled {
		warmup = api.NewWarmupScheduler(engine, cfg.WarmupSchedule, logger.Get())
		if err := warmup.Start(); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.InstructorTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "server starting",
			logger.String("addr", cfg.Addr),
			logger.String("db", cfg.DBPath),
			logger.String("timezone", cfg.Timezone),
			logger.String("fallback_policy", cfg.FallbackPolicy),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	if warmup != nil {
		warmup.Stop(shutdownCtx)
	}

	log.Info(ctx, "server stopped")
	return nil
}

// newEngine translates configuration into engine options.
func newEngine(cfg *config.Config, store *sqlite.Store) (*compensation.Engine, *metrics.Manager, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	restDay, err := cfg.RestWeekday()
	if err != nil {
		return nil, nil, err
	}

	m := metrics.NewManager(metrics.WithNamespace("compensation"))
	engine, err := compensation.New(compensation.SourcesFrom(store),
		compensation.WithLogger(logger.Get()),
		compensation.WithMetrics(m),
		compensation.WithLocation(loc),
		compensation.WithCalendar(compensation.Calendar{
			IncludeRestDay:   cfg.IncludeRestDay,
			RestDay:          restDay,
			UnknownAsMissing: cfg.UnknownPatternFallback,
		}),
		compensation.WithFallbackPolicy(compensation.FallbackPolicy(cfg.FallbackPolicy)),
		compensation.WithConcurrency(cfg.BatchConcurrency),
		compensation.WithInstructorTimeout(cfg.InstructorTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize engine: %w", err)
	}
	return engine, m, nil
}
