// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

// Package models defines the core data structures shared across Civitas:
// cities, issues, status history, admin actions, and the API response envelope.
package models

import "time"

// IssueStatus is the lifecycle state of a reported issue.
type IssueStatus string

const (
	StatusSubmitted  IssueStatus = "SUBMITTED"
	StatusInProgress IssueStatus = "IN_PROGRESS"
	StatusResolved   IssueStatus = "RESOLVED"
	StatusRejected   IssueStatus = "REJECTED"
)

// ValidStatus reports whether s is one of the recognized lifecycle states.
func ValidStatus(s IssueStatus) bool {
	switch s {
	case StatusSubmitted, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// Severity indicates the reported urgency of an issue.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ValidSeverity reports whether s is one of the recognized severities.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// City is the deduplicated geographic grouping used to route issues and
// notifications. Name is unique; once created a city is never renamed or
// deleted. Created by the geo resolver on first encounter of a name.
type City struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Region    string    `json:"region" db:"region"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Issue is a civic problem reported by a citizen. Owned by its reporter at
// creation; mutated thereafter only through status transitions. Never deleted.
type Issue struct {
	ID           int64       `json:"id" db:"id"`
	ReporterID   int64       `json:"reporter_id" db:"reporter_id"`
	ReporterName string      `json:"reported_by,omitempty" db:"reporter_name"`
	CityID       int64       `json:"city_id" db:"city_id"`
	CityName     string      `json:"city_name,omitempty" db:"city_name"`
	Title        string      `json:"title" db:"title"`
	Category     string      `json:"category" db:"category"`
	Description  string      `json:"description" db:"description"`
	Severity     Severity    `json:"severity" db:"severity"`
	Status       IssueStatus `json:"status" db:"status"`
	Latitude     float64     `json:"latitude" db:"latitude"`
	Longitude    float64     `json:"longitude" db:"longitude"`
	ImageURL     *string     `json:"image_url,omitempty" db:"image_url"`
	VideoURL     *string     `json:"video_url,omitempty" db:"video_url"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
}

// StatusHistoryEntry is an append-only audit record of one status transition.
// Entries are never mutated or removed; ordered by UpdatedAt they form the
// issue's full audit trail. Issue.Status always equals the status of the most
// recent entry (the initial SUBMITTED state is implicit and has no entry).
type StatusHistoryEntry struct {
	ID        int64       `json:"id" db:"id"`
	IssueID   int64       `json:"issue_id" db:"issue_id"`
	Status    IssueStatus `json:"status" db:"status"`
	Remark    string      `json:"remark" db:"remark"`
	ActorID   int64       `json:"updated_by" db:"actor_id"`
	ActorName string      `json:"updated_by_name,omitempty" db:"actor_name"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

// AdminAction is an append-only operator audit record, distinct from the
// status history. Written for auditing only; never read back by core logic.
type AdminAction struct {
	ID        int64     `json:"id" db:"id"`
	ActorID   int64     `json:"admin_id" db:"actor_id"`
	IssueID   *int64    `json:"issue_id,omitempty" db:"issue_id"`
	Action    string    `json:"action" db:"action"`
	Detail    string    `json:"detail" db:"detail"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// Role identifies the visibility scope of an authenticated actor.
type Role string

const (
	RoleCitizen    Role = "CITIZEN"
	RoleCityAdmin  Role = "CITY_ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// Actor is the already-authenticated caller supplied by the external auth
// collaborator. Civitas never validates credentials itself.
type Actor struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	CityID int64  `json:"city_id,omitempty"`
}
