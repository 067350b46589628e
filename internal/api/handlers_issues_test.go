// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/tomtom215/civitas/internal/database"
	"github.com/tomtom215/civitas/internal/geo"
	"github.com/tomtom215/civitas/internal/hub"
	"github.com/tomtom215/civitas/internal/lifecycle"
	"github.com/tomtom215/civitas/internal/logging"
	"github.com/tomtom215/civitas/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

// memStore is an in-memory lifecycle.Store for handler tests.
type memStore struct {
	nextID  int64
	issues  map[int64]*models.Issue
	history map[int64][]models.StatusHistoryEntry
}

func newMemStore() *memStore {
	return &memStore{
		issues:  make(map[int64]*models.Issue),
		history: make(map[int64][]models.StatusHistoryEntry),
	}
}

func (s *memStore) CreateIssue(_ context.Context, issue *models.Issue) (int64, time.Time, error) {
	s.nextID++
	stored := *issue
	stored.ID = s.nextID
	stored.CreatedAt = time.Now().UTC()
	s.issues[stored.ID] = &stored
	return stored.ID, stored.CreatedAt, nil
}

func (s *memStore) IssueByID(_ context.Context, id int64) (*models.Issue, error) {
	issue, ok := s.issues[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *issue
	return &c, nil
}

func (s *memStore) ListIssues(_ context.Context, filter database.IssueFilter) ([]models.Issue, error) {
	var out []models.Issue
	for _, issue := range s.issues {
		if filter.ReporterID != 0 && issue.ReporterID != filter.ReporterID {
			continue
		}
		if filter.CityID != 0 && issue.CityID != filter.CityID {
			continue
		}
		out = append(out, *issue)
	}
	return out, nil
}

func (s *memStore) HistoryForIssue(_ context.Context, issueID int64) ([]models.StatusHistoryEntry, error) {
	return s.history[issueID], nil
}

func (s *memStore) TransitionIssueStatus(_ context.Context, p database.TransitionParams) (*models.Issue, error) {
	issue, ok := s.issues[p.IssueID]
	if !ok {
		return nil, database.ErrNotFound
	}
	if p.Allowed != nil {
		if err := p.Allowed(issue.Status); err != nil {
			return nil, err
		}
	}
	issue.Status = p.NewStatus
	s.history[p.IssueID] = append(s.history[p.IssueID], models.StatusHistoryEntry{
		IssueID:   p.IssueID,
		Status:    p.NewStatus,
		Remark:    p.Remark,
		ActorID:   p.ActorID,
		ActorName: p.ActorName,
		UpdatedAt: time.Now().UTC(),
	})
	c := *issue
	return &c, nil
}

type staticResolver struct {
	city *models.City
	err  error
}

func (r *staticResolver) Resolve(_ context.Context, _, _ float64) (*models.City, error) {
	return r.city, r.err
}

type testEnv struct {
	store   *memStore
	handler http.Handler
}

func setupAPI(t *testing.T) *testEnv {
	t.Helper()

	store := newMemStore()
	resolver := &staticResolver{
		city: &models.City{ID: 3, Name: "New Delhi", Region: "Delhi"},
	}
	manager := lifecycle.NewManager(store, resolver, false)

	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.RunWithContext(ctx) }()

	handler := NewHandler(nil, manager, h, nil)
	router := NewRouter(handler, nil)

	return &testEnv{store: store, handler: router.Setup()}
}

func withIdentity(r *http.Request, actor models.Actor) *http.Request {
	r.Header.Set(HeaderActorID, strconv.FormatInt(actor.ID, 10))
	r.Header.Set(HeaderActorName, actor.Name)
	r.Header.Set(HeaderActorRole, string(actor.Role))
	if actor.CityID != 0 {
		r.Header.Set(HeaderActorCityID, strconv.FormatInt(actor.CityID, 10))
	}
	return r
}

func citizen() models.Actor {
	return models.Actor{ID: 7, Name: "Asha K", Role: models.RoleCitizen}
}

func cityAdmin() models.Actor {
	return models.Actor{ID: 42, Name: "Ward Officer", Role: models.RoleCityAdmin, CityID: 3}
}

func createBody() []byte {
	body, _ := json.Marshal(CreateIssueRequest{
		Title:     "Open manhole",
		Category:  "ROADS",
		Severity:  "HIGH",
		Latitude:  28.6139,
		Longitude: 77.2090,
	})
	return body
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *models.APIResponse {
	t.Helper()
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return &resp
}

func createIssue(t *testing.T, env *testEnv) int64 {
	t.Helper()

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/issues", bytes.NewReader(createBody())), citizen())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating issue, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var issue models.Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		t.Fatalf("Failed to decode issue: %v", err)
	}
	return issue.ID
}

func TestCreateIssue_Success(t *testing.T) {
	env := setupAPI(t)

	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/issues", bytes.NewReader(createBody())), citizen())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	if resp.Status != "success" {
		t.Errorf("Expected success status, got %q", resp.Status)
	}

	data, _ := json.Marshal(resp.Data)
	var issue models.Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		t.Fatalf("Failed to decode issue: %v", err)
	}
	if issue.Status != models.StatusSubmitted {
		t.Errorf("Expected status SUBMITTED, got %s", issue.Status)
	}
	if issue.CityName != "New Delhi" {
		t.Errorf("Expected resolved city New Delhi, got %q", issue.CityName)
	}
	if issue.ReporterName != "Asha K" {
		t.Errorf("Expected reporter name from identity, got %q", issue.ReporterName)
	}
}

func TestCreateIssue_SeverityDefaultsToMedium(t *testing.T) {
	env := setupAPI(t)

	body, _ := json.Marshal(CreateIssueRequest{
		Title:     "Flickering streetlight",
		Category:  "LIGHTING",
		Latitude:  28.6139,
		Longitude: 77.2090,
	})
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/issues", bytes.NewReader(body)), citizen())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201 without severity, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var issue models.Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		t.Fatalf("Failed to decode issue: %v", err)
	}
	if issue.Severity != models.SeverityMedium {
		t.Errorf("Expected severity to default to MEDIUM, got %s", issue.Severity)
	}
}

func TestCreateIssue_RequiresIdentity(t *testing.T) {
	env := setupAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/issues", bytes.NewReader(createBody()))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without identity, got %d", rec.Code)
	}
}

func TestCreateIssue_ValidationFailure(t *testing.T) {
	env := setupAPI(t)

	body, _ := json.Marshal(CreateIssueRequest{
		Title:     "Open manhole",
		Category:  "ROADS",
		Severity:  "EXTREME",
		Latitude:  200,
		Longitude: 77.2,
	})
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/issues", bytes.NewReader(body)), citizen())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR, got %+v", resp.Error)
	}
}

func TestCreateIssue_GeocodingFailures(t *testing.T) {
	store := newMemStore()
	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.RunWithContext(ctx) }()

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantAPI  string
	}{
		{"provider unavailable", geo.ErrUnavailable, http.StatusServiceUnavailable, "GEOCODING_UNAVAILABLE"},
		{"city unresolvable", geo.ErrCityUnresolvable, http.StatusUnprocessableEntity, "CITY_UNRESOLVABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := lifecycle.NewManager(store, &staticResolver{err: tt.err}, false)
			router := NewRouter(NewHandler(nil, manager, h, nil), nil)
			handler := router.Setup()

			req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/issues", bytes.NewReader(createBody())), citizen())
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
			resp := decodeResponse(t, rec)
			if resp.Error == nil || resp.Error.Code != tt.wantAPI {
				t.Errorf("Expected error code %s, got %+v", tt.wantAPI, resp.Error)
			}
		})
	}
}

func TestGetIssue_WithHistory(t *testing.T) {
	env := setupAPI(t)
	id := createIssue(t, env)

	patchBody, _ := json.Marshal(UpdateStatusRequest{Status: "IN_PROGRESS", Remark: "Crew dispatched"})
	patch := withIdentity(httptest.NewRequest(http.MethodPatch,
		"/api/v1/issues/"+strconv.FormatInt(id, 10)+"/status", bytes.NewReader(patchBody)), cityAdmin())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, patch)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 transitioning, got %d: %s", rec.Code, rec.Body.String())
	}

	get := withIdentity(httptest.NewRequest(http.MethodGet,
		"/api/v1/issues/"+strconv.FormatInt(id, 10), nil), citizen())
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, get)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	resp := decodeResponse(t, rec)
	data, _ := json.Marshal(resp.Data)
	var detail IssueDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		t.Fatalf("Failed to decode detail: %v", err)
	}
	if detail.Issue.Status != models.StatusInProgress {
		t.Errorf("Expected status IN_PROGRESS, got %s", detail.Issue.Status)
	}
	if len(detail.History) != 1 || detail.History[0].Remark != "Crew dispatched" {
		t.Errorf("Expected 1 history entry with remark, got %+v", detail.History)
	}
}

func TestGetIssue_VisibilityScopedByRole(t *testing.T) {
	env := setupAPI(t)
	id := createIssue(t, env)
	path := "/api/v1/issues/" + strconv.FormatInt(id, 10)

	tests := []struct {
		name  string
		actor models.Actor
		want  int
	}{
		{"reporter reads own issue", citizen(), http.StatusOK},
		{"other citizen is rejected", models.Actor{ID: 99, Name: "Meera", Role: models.RoleCitizen}, http.StatusForbidden},
		{"admin of the issue's city reads it", cityAdmin(), http.StatusOK},
		{"admin of another city is rejected", models.Actor{ID: 55, Name: "Outsider", Role: models.RoleCityAdmin, CityID: 5}, http.StatusForbidden},
		{"super admin reads anything", models.Actor{ID: 1, Name: "Root", Role: models.RoleSuperAdmin}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withIdentity(httptest.NewRequest(http.MethodGet, path, nil), tt.actor)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tt.want == http.StatusForbidden {
				resp := decodeResponse(t, rec)
				if resp.Error == nil || resp.Error.Code != "FORBIDDEN" {
					t.Errorf("Expected FORBIDDEN, got %+v", resp.Error)
				}
			}
		})
	}
}

func TestGetIssue_NotFound(t *testing.T) {
	env := setupAPI(t)

	req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/issues/999", nil), citizen())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestUpdateIssueStatus_RequiresAdminRole(t *testing.T) {
	env := setupAPI(t)
	id := createIssue(t, env)

	body, _ := json.Marshal(UpdateStatusRequest{Status: "IN_PROGRESS"})
	req := withIdentity(httptest.NewRequest(http.MethodPatch,
		"/api/v1/issues/"+strconv.FormatInt(id, 10)+"/status", bytes.NewReader(body)), citizen())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for citizen, got %d", rec.Code)
	}
}

func TestUpdateIssueStatus_InvalidStatus(t *testing.T) {
	env := setupAPI(t)
	id := createIssue(t, env)

	body, _ := json.Marshal(UpdateStatusRequest{Status: "ESCALATED"})
	req := withIdentity(httptest.NewRequest(http.MethodPatch,
		"/api/v1/issues/"+strconv.FormatInt(id, 10)+"/status", bytes.NewReader(body)), cityAdmin())
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != "INVALID_STATUS" {
		t.Errorf("Expected INVALID_STATUS, got %+v", resp.Error)
	}
}

func TestListIssues_ScopedByRole(t *testing.T) {
	env := setupAPI(t)
	createIssue(t, env)

	// A second reporter's issue in the same city.
	other := models.Actor{ID: 8, Name: "Ravi", Role: models.RoleCitizen}
	req := withIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/issues", bytes.NewReader(createBody())), other)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}

	tests := []struct {
		name  string
		actor models.Actor
		want  int
	}{
		{"citizen sees own", citizen(), 1},
		{"city admin sees city", cityAdmin(), 2},
		{"super admin sees all", models.Actor{ID: 1, Name: "Root", Role: models.RoleSuperAdmin}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withIdentity(httptest.NewRequest(http.MethodGet, "/api/v1/issues", nil), tt.actor)
			rec := httptest.NewRecorder()
			env.handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", rec.Code)
			}

			resp := decodeResponse(t, rec)
			data, _ := json.Marshal(resp.Data)
			var issues []models.Issue
			if err := json.Unmarshal(data, &issues); err != nil {
				t.Fatalf("Failed to decode issues: %v", err)
			}
			if len(issues) != tt.want {
				t.Errorf("Expected %d issues, got %d", tt.want, len(issues))
			}
		})
	}
}
