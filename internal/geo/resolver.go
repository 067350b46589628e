// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

// Package geo resolves raw coordinates to deduplicated city records.
//
// Resolution is the first step of every issue report: the reporter's
// coordinates are reverse-geocoded through an external provider, a city
// name is extracted from the address components, and the matching city row
// is looked up or created. City identity is by exact name; the database's
// UNIQUE constraint is the arbiter when concurrent reports race to create
// the same city.
package geo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/civitas/internal/database"
	"github.com/tomtom215/civitas/internal/logging"
	"github.com/tomtom215/civitas/internal/metrics"
	"github.com/tomtom215/civitas/internal/models"
)

var (
	// ErrUnavailable means the geocoding provider could not be reached or
	// answered abnormally. The caller should surface a retryable failure.
	ErrUnavailable = errors.New("geocoding provider unavailable")

	// ErrCityUnresolvable means the provider answered normally but no city
	// could be extracted from the address components.
	ErrCityUnresolvable = errors.New("city could not be resolved from coordinates")
)

// CityStore is the persistence surface Resolver needs.
type CityStore interface {
	CityByName(ctx context.Context, name string) (*models.City, error)
	CreateCity(ctx context.Context, city *models.City) (int64, error)
}

// Resolver turns coordinates into deduplicated city records.
type Resolver struct {
	provider Provider
	store    CityStore
}

// NewResolver creates a resolver backed by the given provider and store.
func NewResolver(provider Provider, store CityStore) *Resolver {
	return &Resolver{
		provider: provider,
		store:    store,
	}
}

// Resolve reverse-geocodes the coordinates and returns the matching city,
// creating it on first sight. Safe under concurrent calls for the same
// location: at most one row per city name ever exists.
//
// Returns ErrUnavailable when the provider fails and ErrCityUnresolvable
// when no city name can be extracted.
func (r *Resolver) Resolve(ctx context.Context, lat, lng float64) (*models.City, error) {
	start := time.Now()

	components, err := r.provider.Locate(ctx, lat, lng)
	if err != nil {
		metrics.GeocodingRequests.WithLabelValues("unavailable").Inc()
		logging.Ctx(ctx).Warn().Err(err).
			Float64("lat", lat).
			Float64("lng", lng).
			Msg("Geocoding provider call failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	metrics.GeocodingDuration.Observe(time.Since(start).Seconds())

	name, region, ok := extractCity(components)
	if !ok {
		metrics.GeocodingRequests.WithLabelValues("unresolvable").Inc()
		return nil, ErrCityUnresolvable
	}
	metrics.GeocodingRequests.WithLabelValues("success").Inc()

	return r.getOrCreate(ctx, name, region, lat, lng)
}

// extractCity pulls a city name out of address components in two passes:
// the locality component first, then the district-level component
// (administrative_area_level_2) as fallback. Region comes from the
// state-level component, defaulting to "Unknown".
func extractCity(components []AddressComponent) (name, region string, ok bool) {
	name = componentOfType(components, "locality")
	if name == "" {
		name = componentOfType(components, "administrative_area_level_2")
	}
	if name == "" {
		return "", "", false
	}

	region = componentOfType(components, "administrative_area_level_1")
	if region == "" {
		region = "Unknown"
	}
	return name, region, true
}

func componentOfType(components []AddressComponent, wanted string) string {
	for _, c := range components {
		for _, t := range c.Types {
			if t == wanted {
				return c.LongName
			}
		}
	}
	return ""
}

// getOrCreate returns the city row for name, inserting it if absent. A
// concurrent insert of the same name loses to the UNIQUE constraint and
// recovers by re-querying the winner's row.
func (r *Resolver) getOrCreate(ctx context.Context, name, region string, lat, lng float64) (*models.City, error) {
	city, err := r.store.CityByName(ctx, name)
	if err == nil {
		return city, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up city %q: %w", name, err)
	}

	created := &models.City{
		Name:      name,
		Region:    region,
		Latitude:  lat,
		Longitude: lng,
	}
	id, err := r.store.CreateCity(ctx, created)
	if err == nil {
		created.ID = id
		logging.Ctx(ctx).Info().
			Str("city", name).
			Str("region", region).
			Int64("city_id", id).
			Msg("Created new city")
		return created, nil
	}
	if !errors.Is(err, database.ErrDuplicateCity) {
		return nil, fmt.Errorf("failed to create city %q: %w", name, err)
	}

	// Lost the creation race; the winner's row must exist now.
	city, err = r.store.CityByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to re-query city %q after duplicate insert: %w", name, err)
	}
	return city, nil
}
