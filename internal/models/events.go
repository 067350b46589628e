// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package models

// Event type names carried on the real-time channel, server to client.
const (
	EventTypeNewIssue      = "new_issue"
	EventTypeStatusUpdated = "status_updated"
)

// IssueCreated is the event descriptor produced by issue creation.
// Snapshot carries every persisted field plus the reporter's display name,
// delivered verbatim as the new_issue payload.
type IssueCreated struct {
	CityID   int64
	Snapshot *Issue
}

// StatusChanged is the event descriptor produced by a status transition.
// The hub delivers {issue_id, new_status} to city-scoped recipients and
// additionally includes city_id for global recipients.
type StatusChanged struct {
	IssueID   int64
	CityID    int64
	NewStatus IssueStatus
}

// StatusUpdatePayload is the wire shape of a status_updated event.
// CityID is populated only on the copy delivered to global subscribers.
type StatusUpdatePayload struct {
	IssueID   int64       `json:"issueId"`
	NewStatus IssueStatus `json:"newStatus"`
	CityID    int64       `json:"cityId,omitempty"`
}
