// Civitas - Civic Issue Reporting and Real-Time Tracking
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/civitas

package geo

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/tomtom215/civitas/internal/database"
	"github.com/tomtom215/civitas/internal/logging"
	"github.com/tomtom215/civitas/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

type fakeProvider struct {
	components []AddressComponent
	err        error
}

func (f *fakeProvider) Locate(_ context.Context, _, _ float64) ([]AddressComponent, error) {
	return f.components, f.err
}

// fakeCityStore is an in-memory CityStore with the same uniqueness
// semantics as the real one.
type fakeCityStore struct {
	mu     sync.Mutex
	nextID int64
	cities map[string]*models.City

	// failFirstCreate makes the first CreateCity report a duplicate while
	// still inserting the row, simulating a lost creation race.
	failFirstCreate bool
	createCalls     int
}

func newFakeCityStore() *fakeCityStore {
	return &fakeCityStore{cities: make(map[string]*models.City)}
}

func (s *fakeCityStore) CityByName(_ context.Context, name string) (*models.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if city, ok := s.cities[name]; ok {
		c := *city
		return &c, nil
	}
	return nil, database.ErrNotFound
}

func (s *fakeCityStore) CreateCity(_ context.Context, city *models.City) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++

	if _, exists := s.cities[city.Name]; exists {
		return 0, database.ErrDuplicateCity
	}

	s.nextID++
	stored := *city
	stored.ID = s.nextID
	s.cities[city.Name] = &stored

	if s.failFirstCreate && s.createCalls == 1 {
		return 0, database.ErrDuplicateCity
	}
	return stored.ID, nil
}

func delhiComponents() []AddressComponent {
	return []AddressComponent{
		{LongName: "Connaught Place", Types: []string{"sublocality", "political"}},
		{LongName: "New Delhi", Types: []string{"locality", "political"}},
		{LongName: "New Delhi District", Types: []string{"administrative_area_level_2", "political"}},
		{LongName: "Delhi", Types: []string{"administrative_area_level_1", "political"}},
		{LongName: "India", Types: []string{"country", "political"}},
	}
}

func TestResolve_CreatesCityOnFirstSight(t *testing.T) {
	store := newFakeCityStore()
	resolver := NewResolver(&fakeProvider{components: delhiComponents()}, store)

	city, err := resolver.Resolve(context.Background(), 28.6139, 77.2090)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if city.Name != "New Delhi" {
		t.Errorf("Expected locality New Delhi, got %q", city.Name)
	}
	if city.Region != "Delhi" {
		t.Errorf("Expected region Delhi, got %q", city.Region)
	}
	if city.ID == 0 {
		t.Error("Expected created city to carry its new id")
	}
	if city.Latitude != 28.6139 || city.Longitude != 77.2090 {
		t.Errorf("Expected query coordinates on created city, got (%f, %f)",
			city.Latitude, city.Longitude)
	}
}

func TestResolve_ReturnsExistingCity(t *testing.T) {
	store := newFakeCityStore()
	existing := &models.City{Name: "New Delhi", Region: "Delhi", Latitude: 28.6, Longitude: 77.2}
	if _, err := store.CreateCity(context.Background(), existing); err != nil {
		t.Fatalf("Failed to seed city: %v", err)
	}

	resolver := NewResolver(&fakeProvider{components: delhiComponents()}, store)

	// Different coordinates inside the same city resolve to the same row.
	city, err := resolver.Resolve(context.Background(), 28.5355, 77.2500)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if city.ID != 1 {
		t.Errorf("Expected existing city id 1, got %d", city.ID)
	}
	if city.Latitude != 28.6 {
		t.Errorf("Expected stored coordinates to be preserved, got %f", city.Latitude)
	}
	if store.createCalls != 1 {
		t.Errorf("Expected no create beyond the seed, got %d calls", store.createCalls)
	}
}

func TestResolve_FallsBackToDistrict(t *testing.T) {
	components := []AddressComponent{
		{LongName: "Rural County", Types: []string{"administrative_area_level_2", "political"}},
		{LongName: "Karnataka", Types: []string{"administrative_area_level_1", "political"}},
	}
	resolver := NewResolver(&fakeProvider{components: components}, newFakeCityStore())

	city, err := resolver.Resolve(context.Background(), 13.1, 77.1)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if city.Name != "Rural County" {
		t.Errorf("Expected district fallback Rural County, got %q", city.Name)
	}
}

func TestResolve_RegionDefaultsToUnknown(t *testing.T) {
	components := []AddressComponent{
		{LongName: "Islandville", Types: []string{"locality"}},
	}
	resolver := NewResolver(&fakeProvider{components: components}, newFakeCityStore())

	city, err := resolver.Resolve(context.Background(), 0.1, 0.1)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if city.Region != "Unknown" {
		t.Errorf("Expected region Unknown, got %q", city.Region)
	}
}

func TestResolve_Unresolvable(t *testing.T) {
	components := []AddressComponent{
		{LongName: "India", Types: []string{"country", "political"}},
	}
	resolver := NewResolver(&fakeProvider{components: components}, newFakeCityStore())

	_, err := resolver.Resolve(context.Background(), 20.0, 78.0)
	if !errors.Is(err, ErrCityUnresolvable) {
		t.Errorf("Expected ErrCityUnresolvable, got %v", err)
	}
}

func TestResolve_ProviderUnavailable(t *testing.T) {
	resolver := NewResolver(&fakeProvider{err: errors.New("connection refused")}, newFakeCityStore())

	_, err := resolver.Resolve(context.Background(), 28.6, 77.2)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestResolve_RecoversFromLostCreationRace(t *testing.T) {
	store := newFakeCityStore()
	store.failFirstCreate = true
	resolver := NewResolver(&fakeProvider{components: delhiComponents()}, store)

	city, err := resolver.Resolve(context.Background(), 28.6139, 77.2090)
	if err != nil {
		t.Fatalf("Resolve failed to recover from duplicate insert: %v", err)
	}
	if city.Name != "New Delhi" {
		t.Errorf("Expected re-queried city New Delhi, got %q", city.Name)
	}
	if city.ID == 0 {
		t.Error("Expected re-queried city to carry the winner's id")
	}
}

func TestResolve_ConcurrentSameCity(t *testing.T) {
	store := newFakeCityStore()
	resolver := NewResolver(&fakeProvider{components: delhiComponents()}, store)

	const goroutines = 10
	ids := make(chan int64, goroutines)
	errs := make(chan error, goroutines)

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			city, err := resolver.Resolve(context.Background(), 28.6139, 77.2090)
			if err != nil {
				errs <- err
				return
			}
			ids <- city.ID
		}()
	}
	wg.Wait()
	close(ids)
	close(errs)

	for err := range errs {
		t.Errorf("Concurrent Resolve failed: %v", err)
	}

	seen := make(map[int64]bool)
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Errorf("Expected all resolvers to converge on one city id, got %d distinct ids", len(seen))
	}
}
