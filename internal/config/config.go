// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

// Package config provides application configuration loaded with Koanf v2.
//
// Configuration loading order (highest priority wins):
//  1. Built-in defaults
//  2. Optional YAML config file (config.yaml)
//  3. Environment variables
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Geocoding GeocodingConfig `koanf:"geocoding"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment variables: HTTP_HOST, HTTP_PORT, HTTP_TIMEOUT.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds DuckDB settings.
//
// Environment variables: DUCKDB_PATH, DUCKDB_MAX_MEMORY, DUCKDB_THREADS.
type DatabaseConfig struct {
	// Path is the database file location. Parent directories are created.
	Path string `koanf:"path"`

	// MaxMemory caps DuckDB memory usage (e.g. "1GB").
	MaxMemory string `koanf:"max_memory"`

	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// GeocodingConfig holds settings for the external reverse-geocoding provider.
//
// The provider call is the only external dependency on the issue-report path,
// so it carries a bounded timeout, a circuit breaker, and a client-side rate
// limiter.
type GeocodingConfig struct {
	// URL is the geocode endpoint (Google Geocoding API shape).
	URL string `koanf:"url"`

	// APIKey authenticates requests to the provider.
	APIKey string `koanf:"api_key"`

	// Timeout bounds each provider call. Expiry surfaces as provider
	// unavailability, never as a hung request.
	Timeout time.Duration `koanf:"timeout"`

	// BreakerFailureThreshold is the consecutive-failure count that trips
	// the circuit breaker.
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold"`

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`

	// RatePerSecond limits outbound provider calls. 0 disables the limiter.
	RatePerSecond float64 `koanf:"rate_per_second"`

	// RateBurst is the limiter burst size.
	RateBurst int `koanf:"rate_burst"`
}

// LifecycleConfig controls issue status transition policy.
type LifecycleConfig struct {
	// StrictTransitions enforces the lifecycle transition table
	// (SUBMITTED -> IN_PROGRESS/RESOLVED/REJECTED, IN_PROGRESS ->
	// RESOLVED/REJECTED, terminal states final). When false, any
	// recognized status is accepted as the next state, matching the
	// historically observed behavior.
	StrictTransitions bool `koanf:"strict_transitions"`
}

// SecurityConfig holds CORS and rate limiting settings.
// Authentication itself is an external collaborator; Civitas only consumes
// the actor identity it injects.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive, got %s", c.Server.Timeout)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Geocoding.URL == "" {
		return fmt.Errorf("geocoding.url is required")
	}
	if c.Geocoding.Timeout <= 0 {
		return fmt.Errorf("geocoding.timeout must be positive, got %s", c.Geocoding.Timeout)
	}
	if c.Geocoding.RatePerSecond < 0 {
		return fmt.Errorf("geocoding.rate_per_second must not be negative")
	}
	if c.Security.RateLimitReqs <= 0 && !c.Security.RateLimitDisabled {
		return fmt.Errorf("security.rate_limit_requests must be positive when rate limiting is enabled")
	}
	return nil
}
