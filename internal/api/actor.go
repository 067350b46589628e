// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/tomtom215/civitas/internal/models"
)

// Authentication happens upstream: the gateway verifies credentials and
// forwards the caller's identity in X-Actor-* headers. This layer only
// translates those headers into a models.Actor on the request context.

type actorCtxKey struct{}

// Identity headers set by the upstream auth layer.
const (
	HeaderActorID     = "X-Actor-Id"
	HeaderActorName   = "X-Actor-Name"
	HeaderActorRole   = "X-Actor-Role"
	HeaderActorCityID = "X-Actor-City-Id"
)

// WithActor returns a context carrying the acting caller.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFrom extracts the acting caller from context.
func ActorFrom(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorCtxKey{}).(models.Actor)
	return actor, ok
}

// ActorContext reads the identity headers into the request context. A
// request without identity passes through unchanged; handlers that need
// an actor reject it there.
func ActorContext(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawID := r.Header.Get(HeaderActorID)
		if rawID == "" {
			next(w, r)
			return
		}

		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusUnauthorized, "INVALID_IDENTITY", "Malformed identity headers", err)
			return
		}

		actor := models.Actor{
			ID:   id,
			Name: r.Header.Get(HeaderActorName),
			Role: models.Role(r.Header.Get(HeaderActorRole)),
		}
		if rawCity := r.Header.Get(HeaderActorCityID); rawCity != "" {
			cityID, err := strconv.ParseInt(rawCity, 10, 64)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "INVALID_IDENTITY", "Malformed identity headers", err)
				return
			}
			actor.CityID = cityID
		}

		next(w, r.WithContext(WithActor(r.Context(), actor)))
	}
}

// requireActor fetches the actor or rejects with 401.
func requireActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Caller identity is required", nil)
		return models.Actor{}, false
	}
	return actor, true
}

// requireAdmin fetches the actor and rejects non-admin roles with 403.
func requireAdmin(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return models.Actor{}, false
	}
	if actor.Role != models.RoleCityAdmin && actor.Role != models.RoleSuperAdmin {
		respondError(w, http.StatusForbidden, "FORBIDDEN", "Admin role is required", nil)
		return models.Actor{}, false
	}
	return actor, true
}
