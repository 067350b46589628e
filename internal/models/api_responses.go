// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package models

import "time"

// APIResponse is the standardized response wrapper used by all HTTP endpoints.
//
// Status field values:
//   - "success": request completed, see Data
//   - "error": request failed, see Error
//
// Example error response:
//
//	{
//	  "status": "error",
//	  "error": {"code": "VALIDATION_ERROR", "message": "latitude out of range"},
//	  "metadata": {"timestamp": "2026-08-30T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata contains response metadata for observability.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMs int64     `json:"query_time_ms,omitempty"`
}

// APIError carries structured error details in an error response.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewSuccessResponse builds a success envelope around data.
func NewSuccessResponse(data interface{}) *APIResponse {
	return &APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: Metadata{Timestamp: time.Now().UTC()},
	}
}

// NewErrorResponse builds an error envelope.
func NewErrorResponse(code, message string) *APIResponse {
	return &APIResponse{
		Status:   "error",
		Metadata: Metadata{Timestamp: time.Now().UTC()},
		Error:    &APIError{Code: code, Message: message},
	}
}
