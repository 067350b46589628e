// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/civitas/internal/models"
)

// Health returns overall health: database connectivity, connected
// WebSocket clients, and uptime.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	status := "healthy"
	if !dbConnected {
		status = "degraded"
	}

	clients := 0
	if h.hub != nil {
		clients = h.hub.GetClientCount()
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"status":             status,
		"database_connected": dbConnected,
		"websocket_clients":  clients,
		"uptime":             time.Since(h.startTime).Seconds(),
	})
}

// HealthLive handles liveness probe requests (Kubernetes-style).
// Returns 200 OK if the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probe requests (Kubernetes-style).
// Returns 200 OK only if the service can reach its database.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	dbConnected := h.db != nil && h.db.Ping(r.Context()) == nil

	statusCode := http.StatusOK
	status := "ready"
	if !dbConnected {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	respondJSON(w, statusCode, &models.APIResponse{
		Status: status,
		Data: map[string]interface{}{
			"database_connected": dbConnected,
			"ready_to_serve":     dbConnected,
			"uptime":             time.Since(h.startTime).Seconds(),
		},
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
	})
}
