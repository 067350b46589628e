// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package lifecycle

import (
	"github.com/tomtom215/civitas/internal/models"
)

// TransitionTable decides which status transitions are legal.
type TransitionTable interface {
	Allowed(from, to models.IssueStatus) bool
}

// permissiveTable allows any transition between recognized statuses,
// including re-opening resolved issues and repeating the current status.
type permissiveTable struct{}

func (permissiveTable) Allowed(from, to models.IssueStatus) bool {
	return models.ValidStatus(from) && models.ValidStatus(to)
}

// strictTable enforces the forward-only lifecycle: submitted issues get
// picked up, resolved directly, or rejected; in-progress issues get
// resolved or rejected; RESOLVED and REJECTED are terminal.
type strictTable struct{}

var strictTransitions = map[models.IssueStatus][]models.IssueStatus{
	models.StatusSubmitted:  {models.StatusInProgress, models.StatusResolved, models.StatusRejected},
	models.StatusInProgress: {models.StatusResolved, models.StatusRejected},
	models.StatusResolved:   {},
	models.StatusRejected:   {},
}

func (strictTable) Allowed(from, to models.IssueStatus) bool {
	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NewTransitionTable returns the strict table when strict is set, otherwise
// the permissive one.
func NewTransitionTable(strict bool) TransitionTable {
	if strict {
		return strictTable{}
	}
	return permissiveTable{}
}
