// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package database

import "errors"

var (
	// ErrNotFound indicates no row matched the query.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateCity indicates a city insert lost a race to a concurrent
	// insert of the same name. Callers recover by re-querying; this error
	// never reaches API clients.
	ErrDuplicateCity = errors.New("city already exists")
)
