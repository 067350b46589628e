// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package hub

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/tomtom215/civitas/internal/logging"
	"github.com/tomtom215/civitas/internal/models"
)

func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub creates and starts a hub, stopping it when the test ends.
func setupHub(t *testing.T) *Hub {
	t.Helper()

	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.RunWithContext(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("Hub did not stop within 1s")
		}
	})
	time.Sleep(10 * time.Millisecond)
	return h
}

// createTestClient creates a client without a real connection.
func createTestClient(h *Hub) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: h, conn: nil, send: make(chan Message, 64)}
}

func registerClient(h *Hub, client *Client) {
	h.Register <- client
	time.Sleep(20 * time.Millisecond)
}

func joinCity(h *Hub, client *Client, cityID int64) {
	h.joins <- joinRequest{client: client, cityID: cityID}
	time.Sleep(20 * time.Millisecond)
}

func joinGlobal(h *Hub, client *Client) {
	h.joins <- joinRequest{client: client, global: true}
	time.Sleep(20 * time.Millisecond)
}

func receive(t *testing.T, client *Client) Message {
	t.Helper()
	select {
	case msg := <-client.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for message")
		return Message{}
	}
}

func expectNothing(t *testing.T, client *Client) {
	t.Helper()
	select {
	case msg := <-client.send:
		t.Errorf("Expected no message, got %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func testSnapshot(cityID int64) *models.Issue {
	return &models.Issue{
		ID:           10,
		ReporterID:   7,
		ReporterName: "Asha K",
		CityID:       cityID,
		CityName:     "New Delhi",
		Title:        "Open manhole",
		Category:     "ROADS",
		Severity:     models.SeverityHigh,
		Status:       models.StatusSubmitted,
	}
}

func TestNewHub(t *testing.T) {
	h := NewHub()

	if h == nil {
		t.Fatal("NewHub returned nil")
	}
	if h.clients == nil || h.cityGroups == nil || h.globalGroup == nil {
		t.Error("Membership maps not initialized")
	}
	if h.Register == nil || h.Unregister == nil || h.joins == nil || h.publish == nil {
		t.Error("Channels not initialized")
	}
	if h.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients initially, got %d", h.GetClientCount())
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := setupHub(t)
	client := createTestClient(h)

	registerClient(h, client)
	if h.GetClientCount() != 1 {
		t.Errorf("Expected 1 client after register, got %d", h.GetClientCount())
	}

	h.Unregister <- client
	time.Sleep(20 * time.Millisecond)
	if h.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients after unregister, got %d", h.GetClientCount())
	}
}

func TestHub_StatusUpdateScopedDelivery(t *testing.T) {
	h := setupHub(t)

	cityAdmin := createTestClient(h)
	otherCityAdmin := createTestClient(h)
	superAdmin := createTestClient(h)
	registerClient(h, cityAdmin)
	registerClient(h, otherCityAdmin)
	registerClient(h, superAdmin)

	joinCity(h, cityAdmin, 3)
	joinCity(h, otherCityAdmin, 7)
	joinGlobal(h, superAdmin)

	h.PublishStatusUpdate(&models.StatusChanged{IssueID: 10, CityID: 3, NewStatus: models.StatusResolved})

	cityMsg := receive(t, cityAdmin)
	if cityMsg.Type != MessageTypeStatusUpdated {
		t.Errorf("Expected status_updated, got %q", cityMsg.Type)
	}
	cityPayload, ok := cityMsg.Data.(models.StatusUpdatePayload)
	if !ok {
		t.Fatalf("Unexpected payload type %T", cityMsg.Data)
	}
	if cityPayload.IssueID != 10 || cityPayload.NewStatus != models.StatusResolved {
		t.Errorf("Unexpected city payload: %+v", cityPayload)
	}
	if cityPayload.CityID != 0 {
		t.Errorf("City-scoped payload must not carry cityId, got %d", cityPayload.CityID)
	}

	globalMsg := receive(t, superAdmin)
	globalPayload, ok := globalMsg.Data.(models.StatusUpdatePayload)
	if !ok {
		t.Fatalf("Unexpected payload type %T", globalMsg.Data)
	}
	if globalPayload.CityID != 3 {
		t.Errorf("Global payload must carry cityId 3, got %d", globalPayload.CityID)
	}

	expectNothing(t, otherCityAdmin)
}

func TestHub_NewIssueDelivery(t *testing.T) {
	h := setupHub(t)

	cityAdmin := createTestClient(h)
	superAdmin := createTestClient(h)
	registerClient(h, cityAdmin)
	registerClient(h, superAdmin)
	joinCity(h, cityAdmin, 3)
	joinGlobal(h, superAdmin)

	snapshot := testSnapshot(3)
	h.PublishNewIssue(&models.IssueCreated{CityID: 3, Snapshot: snapshot})

	for _, client := range []*Client{cityAdmin, superAdmin} {
		msg := receive(t, client)
		if msg.Type != MessageTypeNewIssue {
			t.Errorf("Expected new_issue, got %q", msg.Type)
		}
		got, ok := msg.Data.(*models.Issue)
		if !ok {
			t.Fatalf("Unexpected payload type %T", msg.Data)
		}
		if got.ID != snapshot.ID || got.ReporterName != "Asha K" {
			t.Errorf("Expected full snapshot, got %+v", got)
		}
	}
}

// A connection in both the event's city group and the global group
// receives the event once per membership.
func TestHub_DualMembershipReceivesTwice(t *testing.T) {
	h := setupHub(t)

	client := createTestClient(h)
	registerClient(h, client)
	joinCity(h, client, 3)
	joinGlobal(h, client)

	h.PublishStatusUpdate(&models.StatusChanged{IssueID: 10, CityID: 3, NewStatus: models.StatusInProgress})

	first := receive(t, client)
	second := receive(t, client)

	payloads := []models.StatusUpdatePayload{
		first.Data.(models.StatusUpdatePayload),
		second.Data.(models.StatusUpdatePayload),
	}
	var sawCity, sawGlobal bool
	for _, p := range payloads {
		if p.CityID == 0 {
			sawCity = true
		} else {
			sawGlobal = true
		}
	}
	if !sawCity || !sawGlobal {
		t.Errorf("Expected one city-shaped and one global-shaped delivery, got %+v", payloads)
	}
	expectNothing(t, client)
}

func TestHub_MembershipsAreIndependent(t *testing.T) {
	h := setupHub(t)

	cityOnly := createTestClient(h)
	globalOnly := createTestClient(h)
	registerClient(h, cityOnly)
	registerClient(h, globalOnly)
	joinCity(h, cityOnly, 3)
	joinGlobal(h, globalOnly)

	if h.CityGroupSize(3) != 1 {
		t.Errorf("Expected 1 member in city 3, got %d", h.CityGroupSize(3))
	}
	if h.GlobalGroupSize() != 1 {
		t.Errorf("Expected 1 global member, got %d", h.GlobalGroupSize())
	}

	// Publishing for a different city reaches the global member only.
	h.PublishStatusUpdate(&models.StatusChanged{IssueID: 11, CityID: 7, NewStatus: models.StatusRejected})
	receive(t, globalOnly)
	expectNothing(t, cityOnly)
}

func TestHub_JoinCityMovesMembership(t *testing.T) {
	h := setupHub(t)

	client := createTestClient(h)
	registerClient(h, client)
	joinCity(h, client, 3)
	joinCity(h, client, 7)

	if h.CityGroupSize(3) != 0 {
		t.Errorf("Expected old city group to be empty, got %d", h.CityGroupSize(3))
	}
	if h.CityGroupSize(7) != 1 {
		t.Errorf("Expected new city group to have 1 member, got %d", h.CityGroupSize(7))
	}
}

func TestHub_UnregisterLeavesGroups(t *testing.T) {
	h := setupHub(t)

	client := createTestClient(h)
	registerClient(h, client)
	joinCity(h, client, 3)
	joinGlobal(h, client)

	h.Unregister <- client
	time.Sleep(20 * time.Millisecond)

	if h.CityGroupSize(3) != 0 {
		t.Errorf("Expected city group emptied on disconnect, got %d", h.CityGroupSize(3))
	}
	if h.GlobalGroupSize() != 0 {
		t.Errorf("Expected global group emptied on disconnect, got %d", h.GlobalGroupSize())
	}
}

func TestHub_JoinBeforeRegisterIgnored(t *testing.T) {
	h := setupHub(t)

	client := createTestClient(h)
	joinCity(h, client, 3)

	if h.CityGroupSize(3) != 0 {
		t.Errorf("Expected join from unregistered client to be ignored, got %d members", h.CityGroupSize(3))
	}
}

func TestHub_SlowClientDropped(t *testing.T) {
	h := setupHub(t)

	slow := createTestClient(h)
	slow.send = make(chan Message, 1)
	registerClient(h, slow)
	joinCity(h, slow, 3)

	// First event fills the buffer, second finds it full.
	h.PublishStatusUpdate(&models.StatusChanged{IssueID: 1, CityID: 3, NewStatus: models.StatusInProgress})
	h.PublishStatusUpdate(&models.StatusChanged{IssueID: 2, CityID: 3, NewStatus: models.StatusResolved})
	time.Sleep(50 * time.Millisecond)

	if h.GetClientCount() != 0 {
		t.Errorf("Expected slow client to be dropped, count = %d", h.GetClientCount())
	}
	if h.CityGroupSize(3) != 0 {
		t.Errorf("Expected dropped client removed from its group, got %d", h.CityGroupSize(3))
	}
}

func TestHub_GracefulShutdownClosesClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- h.RunWithContext(ctx) }()
	time.Sleep(10 * time.Millisecond)

	client := createTestClient(h)
	registerClient(h, client)

	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Hub did not stop after cancel")
	}

	if h.GetClientCount() != 0 {
		t.Errorf("Expected all clients closed on shutdown, got %d", h.GetClientCount())
	}
	if _, open := <-client.send; open {
		t.Error("Expected client send channel to be closed")
	}
}

func TestGetShutdownReason(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(canceled); got != ShutdownReasonContextCanceled {
		t.Errorf("Expected context_canceled, got %s", got)
	}

	deadline, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	<-deadline.Done()
	if got := getShutdownReason(deadline); got != ShutdownReasonContextDeadline {
		t.Errorf("Expected context_deadline, got %s", got)
	}
}
