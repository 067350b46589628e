// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/civitas/internal/metrics"
	"github.com/tomtom215/civitas/internal/models"
)

// CityByName looks up a city by exact name. Returns ErrNotFound when the
// name has not been seen.
func (db *DB) CityByName(ctx context.Context, name string) (*models.City, error) {
	start := time.Now()

	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, region, latitude, longitude, created_at
		 FROM cities WHERE name = ?`, name)

	city, err := scanCity(row)
	metrics.RecordDBQuery("select", "cities", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query city %q: %w", name, err)
	}
	return city, nil
}

// CityByID looks up a city by id. Returns ErrNotFound when absent.
func (db *DB) CityByID(ctx context.Context, id int64) (*models.City, error) {
	start := time.Now()

	row := db.conn.QueryRowContext(ctx,
		`SELECT id, name, region, latitude, longitude, created_at
		 FROM cities WHERE id = ?`, id)

	city, err := scanCity(row)
	metrics.RecordDBQuery("select", "cities", time.Since(start), err)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query city %d: %w", id, err)
	}
	return city, nil
}

// CreateCity inserts a new city row and returns its id.
//
// UNIQUE(name) makes concurrent duplicate inserts fail deterministically;
// such failures surface as ErrDuplicateCity so the resolver can re-query and
// adopt the row the winning writer created.
func (db *DB) CreateCity(ctx context.Context, city *models.City) (int64, error) {
	start := time.Now()

	var id int64
	err := db.conn.QueryRowContext(ctx,
		`INSERT INTO cities (name, region, latitude, longitude)
		 VALUES (?, ?, ?, ?) RETURNING id`,
		city.Name, city.Region, city.Latitude, city.Longitude).Scan(&id)
	metrics.RecordDBQuery("insert", "cities", time.Since(start), err)

	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateCity
		}
		return 0, fmt.Errorf("failed to insert city %q: %w", city.Name, err)
	}

	metrics.CitiesCreated.Inc()
	return id, nil
}

// CountCitiesByName returns the number of city rows with the given name.
// At most one can ever exist; used by health checks and tests to assert the
// uniqueness invariant.
func (db *DB) CountCitiesByName(ctx context.Context, name string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cities WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cities named %q: %w", name, err)
	}
	return count, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCity(row rowScanner) (*models.City, error) {
	var c models.City
	if err := row.Scan(&c.ID, &c.Name, &c.Region, &c.Latitude, &c.Longitude, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}
