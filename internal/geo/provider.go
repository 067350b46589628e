// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package geo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/civitas/internal/config"
	"github.com/tomtom215/civitas/internal/logging"
)

// AddressComponent is one piece of a reverse-geocoded address, tagged with
// the provider's component types (locality, administrative_area_level_1, ...).
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// Provider resolves coordinates to address components.
type Provider interface {
	Locate(ctx context.Context, lat, lng float64) ([]AddressComponent, error)
}

// googleResponse mirrors the Google Geocoding API response envelope.
type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		AddressComponents []AddressComponent `json:"address_components"`
	} `json:"results"`
}

// HTTPProvider calls a Google-Geocoding-shaped HTTP endpoint.
//
// Every call passes through a client-side rate limiter and a circuit
// breaker: when the provider degrades, the breaker opens and calls fail
// fast instead of stacking up behind timeouts.
type HTTPProvider struct {
	cfg     *config.GeocodingConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]AddressComponent]
	limiter *rate.Limiter
}

// NewHTTPProvider creates a provider from configuration.
func NewHTTPProvider(cfg *config.GeocodingConfig) *HTTPProvider {
	settings := gobreaker.Settings{
		Name:    "geocoding",
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Geocoding circuit breaker state changed")
		},
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst)
	}

	return &HTTPProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: gobreaker.NewCircuitBreaker[[]AddressComponent](settings),
		limiter: limiter,
	}
}

// Locate reverse-geocodes the coordinates. Any provider failure (transport
// error, non-200 response, non-OK body status, open breaker) is returned as
// an error; an empty component list with nil error means the provider
// answered but found nothing at the location.
func (p *HTTPProvider) Locate(ctx context.Context, lat, lng float64) ([]AddressComponent, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("geocoding rate limiter: %w", err)
		}
	}

	return p.breaker.Execute(func() ([]AddressComponent, error) {
		return p.fetch(ctx, lat, lng)
	})
}

func (p *HTTPProvider) fetch(ctx context.Context, lat, lng float64) ([]AddressComponent, error) {
	endpoint, err := url.Parse(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid geocoding URL: %w", err)
	}
	q := endpoint.Query()
	q.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	q.Set("key", p.cfg.APIKey)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create geocoding request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding provider returned status %d", resp.StatusCode)
	}

	// Limit response size to 1MB; geocode responses are small.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to read geocoding response: %w", err)
	}

	var decoded googleResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode geocoding response: %w", err)
	}

	switch decoded.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, nil
	default:
		return nil, fmt.Errorf("geocoding provider returned body status %s", decoded.Status)
	}

	if len(decoded.Results) == 0 {
		return nil, nil
	}

	// The locality may appear in any result, not just the first: a response
	// can lead with a route or plus-code result that carries no city-level
	// component. Flatten all results in order so extraction scans every one.
	var components []AddressComponent
	for _, result := range decoded.Results {
		components = append(components, result.AddressComponents...)
	}
	return components, nil
}
