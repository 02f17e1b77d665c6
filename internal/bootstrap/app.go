// Package bootstrap handles application initialization and lifecycle
// management for the attribution service.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/commercetrack/attribution/internal/logger"
	"github.com/commercetrack/attribution/internal/profiling"
	"github.com/commercetrack/attribution/internal/session"
	"github.com/commercetrack/attribution/internal/telemetry"
)

const (
	serviceName = "attribution"
	version     = "dev"
)

// Start initializes and runs the attribution service.
func Start() error {
	// Phase 0: profiling (if enabled)
	profiling.StartPprofServer()

	profiler, err := profiling.StartPyroscope(serviceName)
	if err != nil {
		return fmt.Errorf("failed to start profiler: %w", err)
	}
	defer func() { _ = profiler.Stop() }()

	// Phase 1: config and logger
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := CreateLogger(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	metrics := telemetry.New()

	// Phase 2: durable store
	db, err := SetupDatabase(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("Failed to close database", logger.Error(closeErr))
		}
	}()

	// Phase 3: cache tiers and event publisher
	tiers, err := SetupCacheTiers(cfg, metrics, log)
	if err != nil {
		return fmt.Errorf("failed to set up cache tiers: %w", err)
	}
	defer tiers.Close(log)

	publisher := SetupEventPublisher(cfg, tiers, log)

	// Phase 4: domain services and HTTP server
	app := SetupServices(cfg, db, tiers, publisher, metrics, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Session.SweepInterval > 0 {
		sweeper := session.NewSweeper(app.Manager, cfg.Session.SweepInterval, log)
		go sweeper.Run(ctx)
	}

	server := SetupHTTPServer(cfg, app, log)

	if runErr := server.Run(ctx); runErr != nil {
		log.Error("Server error", logger.Error(runErr))
		return fmt.Errorf("server error: %w", runErr)
	}

	log.Info("Server exited")
	return nil
}
