// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package api

import (
	"errors"
	"net/http"

	"github.com/tomtom215/civitas/internal/database"
	"github.com/tomtom215/civitas/internal/geo"
	"github.com/tomtom215/civitas/internal/lifecycle"
	"github.com/tomtom215/civitas/internal/models"
)

// CreateIssueRequest is the payload for POST /api/v1/issues.
type CreateIssueRequest struct {
	Title       string  `json:"title" validate:"required,max=200"`
	Category    string  `json:"category" validate:"required,max=100"`
	Description string  `json:"description" validate:"max=5000"`
	Severity    string  `json:"severity" validate:"omitempty,issue_severity"`
	Latitude    float64 `json:"latitude" validate:"latitude"`
	Longitude   float64 `json:"longitude" validate:"longitude"`
	ImageURL    *string `json:"image_url" validate:"omitempty,url"`
	VideoURL    *string `json:"video_url" validate:"omitempty,url"`
}

// UpdateStatusRequest is the payload for PATCH /api/v1/issues/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Remark string `json:"remark" validate:"max=1000"`
}

// IssueDetail is the response shape for GET /api/v1/issues/{id}: the issue
// plus its full transition trail.
type IssueDetail struct {
	Issue   *models.Issue               `json:"issue"`
	History []models.StatusHistoryEntry `json:"history"`
}

// CreateIssue handles new issue reports. The response is written only
// after the issue is durably stored; the new_issue event goes out to the
// hub afterwards and its delivery never affects this request's outcome.
func (h *Handler) CreateIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateIssueRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	issue, event, err := h.manager.CreateIssue(r.Context(), lifecycle.CreateIssueParams{
		Reporter:    actor,
		Title:       req.Title,
		Category:    req.Category,
		Description: req.Description,
		Severity:    models.Severity(req.Severity),
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		ImageURL:    req.ImageURL,
		VideoURL:    req.VideoURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, geo.ErrUnavailable):
			respondError(w, http.StatusServiceUnavailable, "GEOCODING_UNAVAILABLE",
				"Location service is temporarily unavailable, please retry", err)
		case errors.Is(err, geo.ErrCityUnresolvable):
			respondError(w, http.StatusUnprocessableEntity, "CITY_UNRESOLVABLE",
				"No city could be determined for the given coordinates", err)
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to create issue", err)
		}
		return
	}

	h.hub.PublishNewIssue(event)

	respondSuccess(w, http.StatusCreated, issue)
}

// ListIssues returns the issues visible to the caller, newest first.
func (h *Handler) ListIssues(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	issues, err := h.manager.IssuesFor(r.Context(), actor)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list issues", err)
		return
	}
	if issues == nil {
		issues = []models.Issue{}
	}

	respondSuccess(w, http.StatusOK, issues)
}

// GetIssue returns one issue with its full status history. Visibility
// follows the listing rules: citizens see their own reports, city admins
// their city's, super admins everything.
func (h *Handler) GetIssue(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Issue id must be a positive integer", nil)
		return
	}

	issue, err := h.manager.Issue(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Issue not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch issue", err)
		return
	}

	if !canViewIssue(actor, issue) {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this issue", nil)
		return
	}

	history, err := h.manager.History(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch issue history", err)
		return
	}
	if history == nil {
		history = []models.StatusHistoryEntry{}
	}

	respondSuccess(w, http.StatusOK, IssueDetail{Issue: issue, History: history})
}

// canViewIssue applies the per-issue visibility rules: citizens may read
// only issues they reported, city admins only issues in their city.
func canViewIssue(actor models.Actor, issue *models.Issue) bool {
	switch actor.Role {
	case models.RoleSuperAdmin:
		return true
	case models.RoleCityAdmin:
		return actor.CityID == issue.CityID
	default:
		return actor.ID == issue.ReporterID
	}
}

// UpdateIssueStatus transitions an issue's status. The status update,
// history entry, and admin action commit atomically before the response is
// written; the status_updated event goes out afterwards.
func (h *Handler) UpdateIssueStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Issue id must be a positive integer", nil)
		return
	}

	var req UpdateStatusRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	updated, event, err := h.manager.TransitionStatus(r.Context(), actor, id,
		models.IssueStatus(req.Status), req.Remark)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrInvalidStatus):
			respondError(w, http.StatusBadRequest, "INVALID_STATUS",
				"Status must be one of: SUBMITTED, IN_PROGRESS, RESOLVED, REJECTED", nil)
		case errors.Is(err, lifecycle.ErrIllegalTransition):
			respondError(w, http.StatusConflict, "ILLEGAL_TRANSITION", err.Error(), nil)
		case errors.Is(err, database.ErrNotFound):
			respondError(w, http.StatusNotFound, "NOT_FOUND", "Issue not found", nil)
		default:
			respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to update issue status", err)
		}
		return
	}

	h.hub.PublishStatusUpdate(event)

	respondSuccess(w, http.StatusOK, updated)
}
