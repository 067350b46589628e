// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

// Package api provides the HTTP surface: issue reporting and lifecycle
// endpoints, the WebSocket entry point, health probes, and Chi routing.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/civitas/internal/config"
	"github.com/tomtom215/civitas/internal/database"
	"github.com/tomtom215/civitas/internal/hub"
	"github.com/tomtom215/civitas/internal/lifecycle"
	"github.com/tomtom215/civitas/internal/logging"
)

// Handler processes HTTP requests.
type Handler struct {
	db        *database.DB
	manager   *lifecycle.Manager
	hub       *hub.Hub
	config    *config.Config
	startTime time.Time
}

// NewHandler creates an API handler with all required dependencies.
func NewHandler(db *database.DB, manager *lifecycle.Manager, h *hub.Hub, cfg *config.Config) *Handler {
	return &Handler{
		db:        db,
		manager:   manager,
		hub:       h,
		config:    cfg,
		startTime: time.Now(),
	}
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates WebSocket connection origins.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	// Legitimate browser WebSockets always include Origin; allowing empty
	// Origin would bypass CORS entirely. Non-browser clients are expected
	// to set it explicitly.
	if origin == "" {
		logging.Warn().Msg("WebSocket connection rejected: missing Origin header")
		return false
	}

	// Fail open for tests when no config is wired.
	if h.config == nil {
		return true
	}

	for _, allowedOrigin := range h.config.Security.CORSOrigins {
		if allowedOrigin == "*" || allowedOrigin == origin {
			return true
		}
	}

	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// WebSocket upgrades the connection and hands it to the notification hub.
// Group membership is established afterwards by join-city and join-global
// messages from the client.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		logging.Warn().Msg("WebSocket connection rejected: hub not initialized")
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("WebSocket upgrade error")
		return
	}

	client := hub.NewClient(h.hub, conn)
	h.hub.Register <- client
	client.Start()
}
