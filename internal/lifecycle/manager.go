// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

// Package lifecycle owns the issue state machine: creation, status
// transitions, and the event descriptors that feed the notification hub.
//
// The manager validates and decides; the store executes. A transition's
// three writes (issue status, history entry, admin action) commit as one
// transaction in the store, with legality re-checked against the current
// status inside that transaction.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/civitas/internal/database"
	"github.com/tomtom215/civitas/internal/logging"
	"github.com/tomtom215/civitas/internal/models"
)

var (
	// ErrInvalidStatus means the requested status is not a recognized
	// lifecycle state. Rejected before any write.
	ErrInvalidStatus = errors.New("invalid issue status")

	// ErrIllegalTransition means the requested status is recognized but the
	// active transition table forbids moving there from the current state.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// Store is the persistence surface the manager needs.
type Store interface {
	CreateIssue(ctx context.Context, issue *models.Issue) (int64, time.Time, error)
	IssueByID(ctx context.Context, id int64) (*models.Issue, error)
	ListIssues(ctx context.Context, filter database.IssueFilter) ([]models.Issue, error)
	HistoryForIssue(ctx context.Context, issueID int64) ([]models.StatusHistoryEntry, error)
	TransitionIssueStatus(ctx context.Context, p database.TransitionParams) (*models.Issue, error)
}

// Resolver turns coordinates into city records.
type Resolver interface {
	Resolve(ctx context.Context, lat, lng float64) (*models.City, error)
}

// Manager coordinates issue creation and status transitions.
type Manager struct {
	store    Store
	resolver Resolver
	rules    TransitionTable
}

// NewManager creates a lifecycle manager. strict selects the forward-only
// transition table; the default permissive table matches operator workflows
// that re-open or re-classify issues freely.
func NewManager(store Store, resolver Resolver, strict bool) *Manager {
	return &Manager{
		store:    store,
		resolver: resolver,
		rules:    NewTransitionTable(strict),
	}
}

// CreateIssueParams carries one issue report.
type CreateIssueParams struct {
	Reporter    models.Actor
	Title       string
	Category    string
	Description string
	Severity    models.Severity
	Latitude    float64
	Longitude   float64
	ImageURL    *string
	VideoURL    *string
}

// CreateIssue resolves the report's coordinates to a city, persists the
// issue with status SUBMITTED, and returns the stored issue plus the event
// descriptor for the hub. Severity defaults to MEDIUM when the report
// carries none. No history entry is written at creation; the history
// records transitions only.
func (m *Manager) CreateIssue(ctx context.Context, p CreateIssueParams) (*models.Issue, *models.IssueCreated, error) {
	city, err := m.resolver.Resolve(ctx, p.Latitude, p.Longitude)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve city for issue: %w", err)
	}

	severity := p.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}

	issue := &models.Issue{
		ReporterID:   p.Reporter.ID,
		ReporterName: p.Reporter.Name,
		CityID:       city.ID,
		CityName:     city.Name,
		Title:        p.Title,
		Category:     p.Category,
		Description:  p.Description,
		Severity:     severity,
		Status:       models.StatusSubmitted,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		ImageURL:     p.ImageURL,
		VideoURL:     p.VideoURL,
	}

	id, createdAt, err := m.store.CreateIssue(ctx, issue)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to persist issue: %w", err)
	}
	issue.ID = id
	issue.CreatedAt = createdAt

	logging.Ctx(ctx).Info().
		Int64("issue_id", id).
		Int64("city_id", city.ID).
		Str("city", city.Name).
		Str("severity", string(issue.Severity)).
		Msg("Issue created")

	return issue, &models.IssueCreated{CityID: city.ID, Snapshot: issue}, nil
}

// TransitionStatus moves an issue to newStatus on behalf of actor. The
// status value is validated before any database work; legality against the
// current status is checked inside the store transaction so a concurrent
// transition cannot slip between the check and the write.
//
// Returns the updated issue and the event descriptor. The descriptor's
// city is the issue's own city, regardless of which city the acting admin
// belongs to.
func (m *Manager) TransitionStatus(ctx context.Context, actor models.Actor, issueID int64, newStatus models.IssueStatus, remark string) (*models.Issue, *models.StatusChanged, error) {
	if !models.ValidStatus(newStatus) {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}

	updated, err := m.store.TransitionIssueStatus(ctx, database.TransitionParams{
		IssueID:   issueID,
		NewStatus: newStatus,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Remark:    remark,
		Detail:    fmt.Sprintf("Status changed to %s. Remark: %s", newStatus, remark),
		Allowed: func(current models.IssueStatus) error {
			if !m.rules.Allowed(current, newStatus) {
				return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, current, newStatus)
			}
			return nil
		},
	})
	if err != nil {
		return nil, nil, err
	}

	logging.Ctx(ctx).Info().
		Int64("issue_id", issueID).
		Int64("actor_id", actor.ID).
		Str("new_status", string(newStatus)).
		Msg("Issue status updated")

	return updated, &models.StatusChanged{
		IssueID:   updated.ID,
		CityID:    updated.CityID,
		NewStatus: newStatus,
	}, nil
}

// Issue fetches one issue by id.
func (m *Manager) Issue(ctx context.Context, id int64) (*models.Issue, error) {
	return m.store.IssueByID(ctx, id)
}

// IssuesFor lists issues visible to the actor: citizens see their own
// reports, city admins their city, super admins everything.
func (m *Manager) IssuesFor(ctx context.Context, actor models.Actor) ([]models.Issue, error) {
	var filter database.IssueFilter
	switch actor.Role {
	case models.RoleCityAdmin:
		filter.CityID = actor.CityID
	case models.RoleSuperAdmin:
		// Unscoped.
	default:
		filter.ReporterID = actor.ID
	}
	return m.store.ListIssues(ctx, filter)
}

// History returns the transition trail for an issue, oldest first.
func (m *Manager) History(ctx context.Context, issueID int64) ([]models.StatusHistoryEntry, error) {
	return m.store.HistoryForIssue(ctx, issueID)
}
