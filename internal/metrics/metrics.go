// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

// Package metrics provides Prometheus instrumentation for
// database queries, API endpoints, geocoding calls, and hub fan-out.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Issue lifecycle metrics
	IssuesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "issues_created_total",
			Help: "Total number of issues reported",
		},
	)

	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "issue_status_transitions_total",
			Help: "Total number of issue status transitions",
		},
		[]string{"status"},
	)

	CitiesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cities_created_total",
			Help: "Total number of city rows created by geo resolution",
		},
	)

	// Geocoding provider metrics
	GeocodingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geocoding_requests_total",
			Help: "Total number of reverse-geocoding provider calls",
		},
		[]string{"outcome"}, // "success", "unavailable", "unresolvable"
	)

	GeocodingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geocoding_request_duration_seconds",
			Help:    "Reverse-geocoding provider call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// Notification hub metrics
	HubClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connected_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	HubEventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_events_delivered_total",
			Help: "Total events delivered to subscribers, by group scope",
		},
		[]string{"scope"}, // "city", "global"
	)

	HubEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_events_dropped_total",
			Help: "Total events dropped due to slow or closed subscribers",
		},
	)

	// API endpoint metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)
)

// RecordDBQuery observes a completed database query.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest observes a completed HTTP request.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest adjusts the in-flight request gauge.
func TrackActiveRequest(start bool) {
	if start {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
