// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/civitas/internal/metrics"
	"github.com/tomtom215/civitas/internal/models"
)

// CreateIssue inserts a new issue row and returns its id and creation time.
// Status and severity are taken as given; the lifecycle manager fixes the
// initial status before calling.
func (db *DB) CreateIssue(ctx context.Context, issue *models.Issue) (int64, time.Time, error) {
	start := time.Now()

	var (
		id        int64
		createdAt time.Time
	)
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO issues (reporter_id, reporter_name, city_id, title, category,
			description, severity, status, latitude, longitude, image_url, video_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 RETURNING id, created_at`,
		issue.ReporterID, issue.ReporterName, issue.CityID, issue.Title, issue.Category,
		issue.Description, string(issue.Severity), string(issue.Status),
		issue.Latitude, issue.Longitude, issue.ImageURL, issue.VideoURL).
		Scan(&id, &createdAt)
	metrics.RecordDBQuery("insert", "issues", time.Since(start), err)

	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to insert issue: %w", err)
	}

	metrics.IssuesCreated.Inc()
	return id, createdAt, nil
}

// IssueByID fetches one issue with its city name joined in.
// Returns ErrNotFound when absent.
func (db *DB) IssueByID(ctx context.Context, id int64) (*models.Issue, error) {
	start := time.Now()

	row := db.conn.QueryRowContext(ctx, issueSelect+` WHERE i.id = ?`, id)

	issue, err := scanIssue(row)
	metrics.RecordDBQuery("select", "issues", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query issue %d: %w", id, err)
	}
	return issue, nil
}

// IssueFilter narrows ListIssues to one reporter or one city.
// Zero values mean no constraint (super admin view).
type IssueFilter struct {
	ReporterID int64
	CityID     int64
}

// ListIssues returns issues newest-first, optionally scoped to a reporter
// (citizen view) or a city (city admin view).
func (db *DB) ListIssues(ctx context.Context, filter IssueFilter) ([]models.Issue, error) {
	start := time.Now()

	query := issueSelect
	var args []interface{}
	switch {
	case filter.ReporterID != 0:
		query += ` WHERE i.reporter_id = ?`
		args = append(args, filter.ReporterID)
	case filter.CityID != 0:
		query += ` WHERE i.city_id = ?`
		args = append(args, filter.CityID)
	}
	query += ` ORDER BY i.created_at DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	metrics.RecordDBQuery("select", "issues", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer closeQuietly(rows)

	var issues []models.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue row: %w", err)
		}
		issues = append(issues, *issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate issue rows: %w", err)
	}

	return issues, nil
}

// HistoryForIssue returns the full audit trail for an issue, oldest first.
func (db *DB) HistoryForIssue(ctx context.Context, issueID int64) ([]models.StatusHistoryEntry, error) {
	start := time.Now()

	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, issue_id, status, remark, actor_id, actor_name, updated_at
		 FROM issue_status_history WHERE issue_id = ? ORDER BY updated_at ASC, id ASC`,
		issueID)
	metrics.RecordDBQuery("select", "issue_status_history", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query history for issue %d: %w", issueID, err)
	}
	defer closeQuietly(rows)

	var entries []models.StatusHistoryEntry
	for rows.Next() {
		var e models.StatusHistoryEntry
		if err := rows.Scan(&e.ID, &e.IssueID, &e.Status, &e.Remark,
			&e.ActorID, &e.ActorName, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}

	return entries, nil
}

// TransitionParams carries one status transition through the store.
type TransitionParams struct {
	IssueID   int64
	NewStatus models.IssueStatus
	ActorID   int64
	ActorName string
	Remark    string

	// Detail is the admin action audit line.
	Detail string

	// Allowed is consulted with the issue's current status inside the
	// transaction, before any write. A non-nil return aborts the transition
	// with no effect. Evaluating inside the transaction closes the gap
	// between reading the current status and acting on it.
	Allowed func(current models.IssueStatus) error
}

// TransitionIssueStatus applies a status transition as one atomic unit:
// the issue's status column, a new status history entry, and a new admin
// action record all commit together or not at all. No reader observes a
// state where status and history disagree.
//
// Returns the updated issue snapshot. Returns ErrNotFound for unknown ids.
func (db *DB) TransitionIssueStatus(ctx context.Context, p TransitionParams) (*models.Issue, error) {
	start := time.Now()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transition transaction: %w", err)
	}
	// Rollback is a no-op after a successful commit.
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, issueSelect+` WHERE i.id = ?`, p.IssueID)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read issue %d for transition: %w", p.IssueID, err)
	}

	if p.Allowed != nil {
		if err := p.Allowed(issue.Status); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE issues SET status = ? WHERE id = ?`,
		string(p.NewStatus), p.IssueID); err != nil {
		return nil, fmt.Errorf("failed to update issue %d status: %w", p.IssueID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO issue_status_history (issue_id, status, remark, actor_id, actor_name)
		 VALUES (?, ?, ?, ?, ?)`,
		p.IssueID, string(p.NewStatus), p.Remark, p.ActorID, p.ActorName); err != nil {
		return nil, fmt.Errorf("failed to append history for issue %d: %w", p.IssueID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO admin_actions (actor_id, issue_id, action, detail)
		 VALUES (?, ?, ?, ?)`,
		p.ActorID, p.IssueID, "UPDATE_STATUS", p.Detail); err != nil {
		return nil, fmt.Errorf("failed to record admin action for issue %d: %w", p.IssueID, err)
	}

	if err := tx.Commit(); err != nil {
		metrics.RecordDBQuery("transition", "issues", time.Since(start), err)
		return nil, fmt.Errorf("failed to commit transition for issue %d: %w", p.IssueID, err)
	}
	metrics.RecordDBQuery("transition", "issues", time.Since(start), nil)
	metrics.StatusTransitions.WithLabelValues(string(p.NewStatus)).Inc()

	issue.Status = p.NewStatus
	return issue, nil
}

// RecordAdminAction appends a standalone operator audit entry outside a
// transition (e.g. bulk exports). Write-only: nothing in the application
// reads these back.
func (db *DB) RecordAdminAction(ctx context.Context, action *models.AdminAction) error {
	start := time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO admin_actions (actor_id, issue_id, action, detail)
		 VALUES (?, ?, ?, ?)`,
		action.ActorID, action.IssueID, action.Action, action.Detail)
	metrics.RecordDBQuery("insert", "admin_actions", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("failed to record admin action: %w", err)
	}
	return nil
}

// issueSelect joins city names onto issue rows. Reporter display names are
// denormalized onto the issues table at creation time; user accounts live
// with the external auth service.
const issueSelect = `
	SELECT i.id, i.reporter_id, i.reporter_name, i.city_id, c.name,
		i.title, i.category, i.description, i.severity, i.status,
		i.latitude, i.longitude, i.image_url, i.video_url, i.created_at
	FROM issues i JOIN cities c ON i.city_id = c.id`

func scanIssue(row rowScanner) (*models.Issue, error) {
	var i models.Issue
	if err := row.Scan(&i.ID, &i.ReporterID, &i.ReporterName, &i.CityID, &i.CityName,
		&i.Title, &i.Category, &i.Description, &i.Severity, &i.Status,
		&i.Latitude, &i.Longitude, &i.ImageURL, &i.VideoURL, &i.CreatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}
