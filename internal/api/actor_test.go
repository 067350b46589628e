// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tomtom215/civitas/internal/models"
)

func TestActorContext_ParsesIdentityHeaders(t *testing.T) {
	var got models.Actor
	var present bool
	handler := ActorContext(func(_ http.ResponseWriter, r *http.Request) {
		got, present = ActorFrom(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "42")
	req.Header.Set(HeaderActorName, "Ward Officer")
	req.Header.Set(HeaderActorRole, "CITY_ADMIN")
	req.Header.Set(HeaderActorCityID, "3")

	handler(httptest.NewRecorder(), req)

	if !present {
		t.Fatal("Expected actor on context")
	}
	want := models.Actor{ID: 42, Name: "Ward Officer", Role: models.RoleCityAdmin, CityID: 3}
	if got != want {
		t.Errorf("Expected actor %+v, got %+v", want, got)
	}
}

func TestActorContext_NoHeadersPassesThrough(t *testing.T) {
	var present bool
	handler := ActorContext(func(_ http.ResponseWriter, r *http.Request) {
		_, present = ActorFrom(r.Context())
	})

	handler(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if present {
		t.Error("Expected no actor without identity headers")
	}
}

func TestActorContext_MalformedID(t *testing.T) {
	called := false
	handler := ActorContext(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderActorID, "not-a-number")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if called {
		t.Error("Expected handler not to run with malformed identity")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", rec.Code)
	}
}
