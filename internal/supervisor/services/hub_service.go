// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package services

import (
	"context"
)

// ContextHub interface matches *hub.Hub's RunWithContext method.
//
// This interface allows the NotificationHubService to work with the Hub
// without importing the hub package, avoiding circular dependencies.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// NotificationHubService wraps the notification hub as a supervised service.
//
// The hub's RunWithContext method already implements the suture.Service
// pattern, so this wrapper simply delegates to it and provides a name
// for logging.
//
// Example usage:
//
//	h := hub.NewHub()
//	svc := services.NewNotificationHubService(h)
//	tree.AddMessagingService(svc)
type NotificationHubService struct {
	hub  ContextHub
	name string
}

// NewNotificationHubService creates a new notification hub service wrapper.
func NewNotificationHubService(hub ContextHub) *NotificationHubService {
	return &NotificationHubService{
		hub:  hub,
		name: "notification-hub",
	}
}

// Serve implements suture.Service.
//
// This method delegates to hub.RunWithContext which:
//  1. Processes client registration, scope membership, and event delivery
//  2. Returns when the context is canceled
//  3. Gracefully closes all clients on shutdown
//
// The method returns ctx.Err() on normal shutdown.
func (n *NotificationHubService) Serve(ctx context.Context) error {
	return n.hub.RunWithContext(ctx)
}

// String implements fmt.Stringer for logging.
// Suture uses this to identify the service in log messages.
func (n *NotificationHubService) String() string {
	return n.name
}
