// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/civitas/internal/config"
	"github.com/tomtom215/civitas/internal/middleware"
)

// Router wires handlers and middleware into the Chi route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router for the given handler and security settings.
func NewRouter(handler *Handler, security *config.SecurityConfig) *Router {
	mwConfig := DefaultChiMiddlewareConfig()
	if security != nil {
		mwConfig.CORSAllowedOrigins = security.CORSOrigins
		if security.RateLimitReqs > 0 {
			mwConfig.RateLimitRequests = security.RateLimitReqs
		}
		if security.RateLimitWindow > 0 {
			mwConfig.RateLimitWindow = security.RateLimitWindow
		}
		mwConfig.RateLimitDisabled = security.RateLimitDisabled
	}

	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddleware(mwConfig),
	}
}

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler so the existing middleware works with
// r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// chiPathValue bridges Chi URL params to r.PathValue().
func chiPathValue(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		if rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				if i < len(rctx.URLParams.Values) {
					r.SetPathValue(key, rctx.URLParams.Values[i])
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS()) // global so OPTIONS preflight works everywhere

	// Health endpoints: permissive rate limiting for monitoring probes.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Issue endpoints. Identity arrives in X-Actor-* headers from the
	// upstream auth layer; handlers enforce presence and role.
	r.Route("/api/v1/issues", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(ActorContext))
		r.Use(chiPathValue)

		r.Post("/", router.handler.CreateIssue)
		r.Get("/", router.handler.ListIssues)
		r.Get("/{id}", router.handler.GetIssue)
		r.Patch("/{id}/status", router.handler.UpdateIssueStatus)
	})

	// Real-time channel. Rate limiting is skipped: the connection is
	// long-lived and upgraded once.
	r.Route("/api/v1/ws", func(r chi.Router) {
		r.Use(chiMiddleware(ActorContext))
		r.Get("/", router.handler.WebSocket)
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
