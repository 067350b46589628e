// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

// Package database provides the DuckDB-backed persistent store for cities,
// issues, status history, and admin actions.
//
// All access goes through a bounded connection pool shared across the
// application; callers must not assume exclusive access. The two writes with
// coordination hazards are handled here: city creation recovers from
// concurrent duplicate inserts via the UNIQUE(name) constraint, and status
// transitions run all three of their writes in one transaction.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/civitas/internal/config"
	"github.com/tomtom215/civitas/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  *config.DatabaseConfig
}

// New creates a new database connection and initializes the schema.
func New(cfg *config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// Ensure parent directory exists for the database file.
	// Use 0750 permissions (owner: rwx, group: rx, other: none) per gosec G301
	dbDir := filepath.Dir(cfg.Path)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	connStr := fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
		cfg.Path, numThreads, cfg.MaxMemory)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{
		conn: conn,
		cfg:  cfg,
	}

	db.configureConnectionPool()

	if err := db.createSchema(); err != nil {
		closeWithLog(conn, "database")
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// configureConnectionPool sets bounded connection pool parameters.
func (db *DB) configureConnectionPool() {
	db.conn.SetMaxOpenConns(runtime.NumCPU())
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// Conn exposes the underlying pool for health checks.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping verifies the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// closeQuietly closes a resource ignoring the error.
func closeQuietly(c io.Closer) {
	_ = c.Close()
}

// closeWithLog closes a resource and logs any error.
func closeWithLog(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		logging.Error().Err(err).Str("resource", what).Msg("failed to close resource")
	}
}

// isUniqueViolation checks whether an error is a DuckDB unique constraint
// violation. DuckDB reports these as constraint errors with messages like
// `Duplicate key "name: X" violates unique constraint` or
// `PRIMARY KEY or UNIQUE constraint violated`.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "violates unique constraint") ||
		strings.Contains(msg, "PRIMARY KEY or UNIQUE constraint violated") ||
		strings.Contains(msg, "Duplicate key")
}
