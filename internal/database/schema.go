// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates sequences, tables, and indexes.
//
// Numeric ids come from sequences (DuckDB has no AUTO_INCREMENT).
// cities.name carries the UNIQUE constraint the geo resolver's get-or-create
// relies on for duplicate-insert recovery.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	queries := []string{
		`CREATE SEQUENCE IF NOT EXISTS cities_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS issues_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS issue_status_history_id_seq`,
		`CREATE SEQUENCE IF NOT EXISTS admin_actions_id_seq`,

		`CREATE TABLE IF NOT EXISTS cities (
			id BIGINT PRIMARY KEY DEFAULT nextval('cities_id_seq'),
			name TEXT NOT NULL UNIQUE,
			region TEXT NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS issues (
			id BIGINT PRIMARY KEY DEFAULT nextval('issues_id_seq'),
			reporter_id BIGINT NOT NULL,
			reporter_name TEXT NOT NULL,
			city_id BIGINT NOT NULL,
			title TEXT NOT NULL,
			category TEXT NOT NULL,
			description TEXT NOT NULL,
			severity TEXT NOT NULL,
			status TEXT NOT NULL,
			latitude DOUBLE NOT NULL,
			longitude DOUBLE NOT NULL,
			image_url TEXT,
			video_url TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Append-only: rows are inserted inside the transition transaction
		// and never updated or deleted.
		`CREATE TABLE IF NOT EXISTS issue_status_history (
			id BIGINT PRIMARY KEY DEFAULT nextval('issue_status_history_id_seq'),
			issue_id BIGINT NOT NULL,
			status TEXT NOT NULL,
			remark TEXT NOT NULL DEFAULT '',
			actor_id BIGINT NOT NULL,
			actor_name TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// Operator audit log, distinct from status history. Write-only for
		// this application.
		`CREATE TABLE IF NOT EXISTS admin_actions (
			id BIGINT PRIMARY KEY DEFAULT nextval('admin_actions_id_seq'),
			actor_id BIGINT NOT NULL,
			issue_id BIGINT,
			action TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_issues_city ON issues(city_id)`,
		`CREATE INDEX IF NOT EXISTS idx_issues_reporter ON issues(reporter_id)`,
		`CREATE INDEX IF NOT EXISTS idx_history_issue ON issue_status_history(issue_id, updated_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema statement: %s: %w", query, err)
		}
	}

	return nil
}
