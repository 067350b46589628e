// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in priority order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/civitas/config.yaml",
	"/etc/civitas/config.yml",
}

// ConfigPathEnvVar overrides the config file path when set.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with sensible defaults for every optional
// setting. Defaults are applied first, then overridden by file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    4326, // EPSG:4326, the lat/lon coordinate system issues are reported in
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:      "/data/civitas.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Geocoding: GeocodingConfig{
			URL:                     "https://maps.googleapis.com/maps/api/geocode/json",
			APIKey:                  "",
			Timeout:                 10 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          30 * time.Second,
			RatePerSecond:           10,
			RateBurst:               20,
		},
		Lifecycle: LifecycleConfig{
			StrictTransitions: false,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds configuration from layered sources:
//  1. Defaults from struct
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Transform env var names to koanf paths: GEOCODING_API_KEY -> geocoding.api_key
	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file, env override first.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines config paths parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars come in as strings but the config expects
// slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// Already a slice (from the YAML file), leave it alone
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - DUCKDB_PATH -> database.path
//   - GEOCODING_API_KEY -> geocoding.api_key
//   - STRICT_TRANSITIONS -> lifecycle.strict_transitions
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"http_host":    "server.host",
		"http_port":    "server.port",
		"http_timeout": "server.timeout",

		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		"geocoding_url":               "geocoding.url",
		"geocoding_api_key":           "geocoding.api_key",
		"geocoding_timeout":           "geocoding.timeout",
		"geocoding_breaker_failures":  "geocoding.breaker_failure_threshold",
		"geocoding_breaker_timeout":   "geocoding.breaker_timeout",
		"geocoding_rate_per_second":   "geocoding.rate_per_second",
		"geocoding_rate_burst":        "geocoding.rate_burst",
		"google_maps_api_key":         "geocoding.api_key", // legacy deployment name
		"strict_transitions":          "lifecycle.strict_transitions",
		"cors_origins":                "security.cors_origins",
		"rate_limit_requests":         "security.rate_limit_requests",
		"rate_limit_window":           "security.rate_limit_window",
		"disable_rate_limit":          "security.rate_limit_disabled",
		"log_level":                   "logging.level",
		"log_format":                  "logging.format",
		"log_caller":                  "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	// Unknown variables are ignored rather than polluting the config tree.
	return ""
}
