// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

// Package main is the entry point for the Civitas server application.
//
// Civitas is a civic issue reporting platform: citizens report problems
// (potholes, broken streetlights, garbage) with a location, the server
// resolves the location to a city via reverse geocoding, and municipal
// administrators move each issue through its lifecycle. Connected clients
// receive real-time notifications scoped to a city or to the whole system.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Database: Initialize DuckDB for issues, cities, history, and the admin audit trail
//  3. Notification Hub: Enable real-time updates to connected WebSocket clients
//  4. Geo Resolver: Reverse geocoding with circuit breaker and rate limiting
//  5. Lifecycle Manager: Issue creation and status transition rules
//  6. HTTP Server: REST API plus the WebSocket endpoint
//
// Components 3 and 6 run under a suture supervisor tree with failure
// isolation between the messaging and API layers.
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (see internal/config)
//   - Config file (config.yaml)
//   - Built-in defaults
//
// Required settings:
//   - GEOCODING_URL: reverse geocoding endpoint (Google Geocoding API shape)
//   - GEOCODING_API_KEY: provider API key
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Notifies connected WebSocket clients and closes the hub
//   - Closes the database connection
//
// # Example Usage
//
// Development:
//
//	export GEOCODING_URL=https://maps.googleapis.com/maps/api/geocode/json
//	export GEOCODING_API_KEY=your-api-key
//	export LOG_LEVEL=debug
//	./civitas
//
// Production with strict lifecycle enforcement:
//
//	export GEOCODING_URL=https://maps.googleapis.com/maps/api/geocode/json
//	export GEOCODING_API_KEY=your-api-key
//	export STRICT_TRANSITIONS=true
//	export CORS_ORIGINS=https://civitas.example.org
//	./civitas
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

	"github.com/tomtom215/civitas/internal/api"
	"github.com/tomtom215/civitas/internal/config"
	"github.com/tomtom215/civitas/internal/database"
	"github.com/tomtom215/civitas/internal/geo"
	"github.com/tomtom215/civitas/internal/hub"
	"github.com/tomtom215/civitas/internal/lifecycle"
	"github.com/tomtom215/civitas/internal/logging"
	"github.com/tomtom215/civitas/internal/supervisor"
	"github.com/tomtom215/civitas/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Civitas with supervisor tree")

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("geocoding_url", cfg.Geocoding.URL).
		Bool("strict_transitions", cfg.Lifecycle.StrictTransitions).
		Msg("Configuration loaded")

	// Initialize database
	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create structured logger for supervisor using our slog adapter
	// This bridges zerolog to slog for sutureslog compatibility
	slogLogger := logging.NewSlogLogger()

	// Create supervisor tree
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Create notification hub for real-time updates (before the manager,
	// handlers publish to it after each successful write)
	notificationHub := hub.NewHub()

	// Reverse geocoding provider with circuit breaker and rate limiter,
	// then the resolver that maps addresses to deduplicated cities
	provider := geo.NewHTTPProvider(&cfg.Geocoding)
	resolver := geo.NewResolver(provider, db)

	// Lifecycle manager owns issue creation and status transition rules
	manager := lifecycle.NewManager(db, resolver, cfg.Lifecycle.StrictTransitions)
	if cfg.Lifecycle.StrictTransitions {
		logging.Info().Msg("Strict lifecycle transitions enabled")
	} else {
		logging.Warn().Msg("Permissive lifecycle transitions: any valid status accepted as next state")
	}

	handler := api.NewHandler(db, manager, notificationHub, cfg)
	router := api.NewRouter(handler, &cfg.Security)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// === ADD SERVICES TO SUPERVISOR TREE ===

	// Messaging layer services
	tree.AddMessagingService(services.NewNotificationHubService(notificationHub))
	logging.Info().Msg("Notification hub added to supervisor tree")

	// API layer services
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	// === START SUPERVISOR TREE ===

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// Wait for supervisor to finish (either from signal or error)
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Wait for the error channel to close (supervisor finished)
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
