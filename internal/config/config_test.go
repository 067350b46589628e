// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
		{
			name:    "non-positive server timeout",
			mutate:  func(c *Config) { c.Server.Timeout = 0 },
			wantErr: "server.timeout",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "missing geocoding url",
			mutate:  func(c *Config) { c.Geocoding.URL = "" },
			wantErr: "geocoding.url",
		},
		{
			name:    "non-positive geocoding timeout",
			mutate:  func(c *Config) { c.Geocoding.Timeout = -time.Second },
			wantErr: "geocoding.timeout",
		},
		{
			name:    "negative geocoding rate",
			mutate:  func(c *Config) { c.Geocoding.RatePerSecond = -1 },
			wantErr: "geocoding.rate_per_second",
		},
		{
			name:    "zero rate limit while enabled",
			mutate:  func(c *Config) { c.Security.RateLimitReqs = 0 },
			wantErr: "security.rate_limit_requests",
		},
		{
			name: "zero rate limit allowed when disabled",
			mutate: func(c *Config) {
				c.Security.RateLimitReqs = 0
				c.Security.RateLimitDisabled = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error mentioning %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 4326 {
		t.Errorf("Expected default port 4326, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "/data/civitas.duckdb" {
		t.Errorf("Expected default database path, got %q", cfg.Database.Path)
	}
	if cfg.Lifecycle.StrictTransitions {
		t.Error("Expected permissive transitions by default")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Expected info/json logging defaults, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DUCKDB_PATH", "/tmp/test.duckdb")
	t.Setenv("STRICT_TRANSITIONS", "true")
	t.Setenv("GEOCODING_API_KEY", "env-key")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Expected env port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.duckdb" {
		t.Errorf("Expected env database path, got %q", cfg.Database.Path)
	}
	if !cfg.Lifecycle.StrictTransitions {
		t.Error("Expected strict transitions from env")
	}
	if cfg.Geocoding.APIKey != "env-key" {
		t.Errorf("Expected env api key, got %q", cfg.Geocoding.APIKey)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Security.CORSOrigins) != 2 ||
		cfg.Security.CORSOrigins[0] != want[0] || cfg.Security.CORSOrigins[1] != want[1] {
		t.Errorf("Expected parsed CORS origins %v, got %v", want, cfg.Security.CORSOrigins)
	}
}

func TestLoad_FileOverridesDefaultsEnvWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "server:\n  port: 5050\ndatabase:\n  path: /tmp/file.duckdb\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("DUCKDB_PATH", "/tmp/env.duckdb")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// File overrides the built-in default.
	if cfg.Server.Port != 5050 {
		t.Errorf("Expected file port 5050, got %d", cfg.Server.Port)
	}
	// Env overrides the file.
	if cfg.Database.Path != "/tmp/env.duckdb" {
		t.Errorf("Expected env path to win over file, got %q", cfg.Database.Path)
	}
}

func TestLoad_RejectsInvalidEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "99999")

	if _, err := Load(); err == nil {
		t.Fatal("Expected validation error for out-of-range port")
	}
}
