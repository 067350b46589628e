// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

// Package hub fans lifecycle events out to live WebSocket subscribers.
//
// Subscriptions are scoped: a connection may join at most one city group,
// and independently the global group. Publishing an event for a city
// delivers it to that city's group and to the global group, nobody else.
// Delivery is push, fire-and-forget, at-most-once per connection; there is
// no acknowledgement, retry, or replay for connections that join later.
package hub

import (
	"context"
	"sort"
	"sync"

	"github.com/tomtom215/civitas/internal/logging"
	"github.com/tomtom215/civitas/internal/metrics"
	"github.com/tomtom215/civitas/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung shutdown operation.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types for server-to-client WebSocket communication.
const (
	MessageTypeNewIssue      = models.EventTypeNewIssue
	MessageTypeStatusUpdated = models.EventTypeStatusUpdated
	MessageTypePong          = "pong"
)

// Inbound message types, client to server.
const (
	inboundJoinCity   = "join-city"
	inboundJoinGlobal = "join-global"
	inboundPing       = "ping"
)

// Message represents a WebSocket message.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// joinRequest moves a connection into a subscriber group. City and global
// memberships are independent: neither implies the other.
type joinRequest struct {
	client *Client
	global bool
	cityID int64
}

// publishJob carries one event through the run loop. City-scoped and
// global recipients can receive different payload shapes, so both copies
// are built up front by the caller.
type publishJob struct {
	eventType string
	cityID    int64
	cityMsg   Message
	globalMsg Message
}

// Hub maintains the scoped subscriber groups and distributes events.
//
// All membership mutation and delivery runs through one goroutine
// (RunWithContext), so join, leave, and publish are serialized against
// each other; the mutex exists for read access from request handlers.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	cityGroups  map[int64]map[*Client]bool
	globalGroup map[*Client]bool

	Register   chan *Client
	Unregister chan *Client
	joins      chan joinRequest
	publish    chan publishJob
}

// NewHub creates a hub with no subscribers.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		cityGroups:  make(map[int64]map[*Client]bool),
		globalGroup: make(map[*Client]bool),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		joins:       make(chan joinRequest),
		publish:     make(chan publishJob, 256),
	}
}

// RunWithContext starts the hub loop; designed for suture supervision.
// When the context is canceled all connected clients are closed and the
// method returns ctx.Err() so the supervisor can restart cleanly.
//
// Selection is priority-based so behavior stays predictable when several
// channels are ready at once: shutdown first, then membership changes,
// then event delivery. Membership is always settled before the next event
// fans out.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		// Priority 1: shutdown (non-blocking check).
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: membership changes (non-blocking check).
		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		case req := <-h.joins:
			h.join(req)
			continue
		default:
		}

		// Priority 3: event delivery, or block until anything arrives.
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case req := <-h.joins:
			h.join(req)
		case job := <-h.publish:
			h.deliver(job)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.HubClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client connected")
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		h.removeFromGroupsLocked(client)
		delete(h.clients, client)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	metrics.HubClients.Set(float64(total))
	logging.Info().Int("total_clients", total).Msg("websocket client disconnected")
}

// join applies a membership request. Joining a city while already in
// another city group moves the connection; joining global is independent
// of any city membership.
func (h *Hub) join(req joinRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[req.client] {
		return
	}

	if req.global {
		h.globalGroup[req.client] = true
		logging.Debug().Uint64("client_id", req.client.id).Msg("client joined global group")
		return
	}

	if req.client.cityID != 0 {
		h.leaveCityLocked(req.client)
	}
	group, ok := h.cityGroups[req.cityID]
	if !ok {
		group = make(map[*Client]bool)
		h.cityGroups[req.cityID] = group
	}
	group[req.client] = true
	req.client.cityID = req.cityID
	logging.Debug().
		Uint64("client_id", req.client.id).
		Int64("city_id", req.cityID).
		Msg("client joined city group")
}

func (h *Hub) removeFromGroupsLocked(client *Client) {
	if client.cityID != 0 {
		h.leaveCityLocked(client)
	}
	delete(h.globalGroup, client)
}

// leaveCityLocked drops the client from its city group, tearing the group
// down when it empties.
func (h *Hub) leaveCityLocked(client *Client) {
	if group, ok := h.cityGroups[client.cityID]; ok {
		delete(group, client)
		if len(group) == 0 {
			delete(h.cityGroups, client.cityID)
		}
	}
	client.cityID = 0
}

// deliver fans one event out: the city-shaped copy to the event's city
// group, the global-shaped copy to the global group. A connection holding
// both memberships receives both copies. Clients whose send buffer is
// full are dropped; a slow consumer must not stall the loop.
func (h *Hub) deliver(job publishJob) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client

	for _, client := range sortedClients(h.cityGroups[job.cityID]) {
		select {
		case client.send <- job.cityMsg:
			metrics.HubEventsDelivered.WithLabelValues("city").Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range sortedClients(h.globalGroup) {
		select {
		case client.send <- job.globalMsg:
			metrics.HubEventsDelivered.WithLabelValues("global").Inc()
		default:
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		if h.clients[client] {
			h.removeFromGroupsLocked(client)
			delete(h.clients, client)
			close(client.send)
			metrics.HubEventsDropped.Inc()
			logging.Warn().
				Uint64("client_id", client.id).
				Str("event_type", job.eventType).
				Msg("dropped slow websocket client")
		}
	}
}

// sortedClients returns group members ordered by client id so delivery
// order is stable within a process run.
func sortedClients(group map[*Client]bool) []*Client {
	clients := make([]*Client, 0, len(group))
	for client := range group {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// PublishNewIssue fans a freshly created issue out to its city's group and
// the global group. Both scopes receive the full issue snapshot. Never
// blocks: if the hub's queue is full the event is dropped and the
// triggering request proceeds untouched.
func (h *Hub) PublishNewIssue(event *models.IssueCreated) {
	msg := Message{Type: MessageTypeNewIssue, Data: event.Snapshot}
	h.enqueue(publishJob{
		eventType: MessageTypeNewIssue,
		cityID:    event.CityID,
		cityMsg:   msg,
		globalMsg: msg,
	})
}

// PublishStatusUpdate fans a status transition out. City-scoped recipients
// get {issueId, newStatus}; global recipients additionally get the cityId
// since the event may concern any city.
func (h *Hub) PublishStatusUpdate(event *models.StatusChanged) {
	h.enqueue(publishJob{
		eventType: MessageTypeStatusUpdated,
		cityID:    event.CityID,
		cityMsg: Message{
			Type: MessageTypeStatusUpdated,
			Data: models.StatusUpdatePayload{
				IssueID:   event.IssueID,
				NewStatus: event.NewStatus,
			},
		},
		globalMsg: Message{
			Type: MessageTypeStatusUpdated,
			Data: models.StatusUpdatePayload{
				IssueID:   event.IssueID,
				NewStatus: event.NewStatus,
				CityID:    event.CityID,
			},
		},
	})
}

func (h *Hub) enqueue(job publishJob) {
	select {
	case h.publish <- job:
	default:
		metrics.HubEventsDropped.Inc()
		logging.Warn().Str("event_type", job.eventType).Msg("publish queue full, dropping event")
	}
}

// logGracefulShutdown closes all clients and logs structured shutdown
// information. Context cancellation is expected behavior here, so it is
// not logged as an error.
func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.GetClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "notification-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("notification hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// closeAllClients tears down every connection in id order.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range sortedClients(h.clients) {
		h.removeFromGroupsLocked(client)
		delete(h.clients, client)
		close(client.send)
	}
	metrics.HubClients.Set(0)
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CityGroupSize returns the membership count for one city group.
func (h *Hub) CityGroupSize(cityID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.cityGroups[cityID])
}

// GlobalGroupSize returns the global group's membership count.
func (h *Hub) GlobalGroupSize() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.globalGroup)
}
