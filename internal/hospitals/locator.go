// Package hospitals resolves the nearest hospital to a patient and
// persists it idempotently. The places lookup is behind a small provider
// interface so the locator is testable without the Google Places API.
package hospitals

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/ambulance-dispatch/internal/fault"
	"github.com/example/ambulance-dispatch/internal/geo"
	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/storage"
)

// SearchRadiusMeters bounds the places query around the patient.
const SearchRadiusMeters = 10000

// Candidate is one hospital returned by the places provider.
type Candidate struct {
	Name     string
	Address  string
	Phone    string
	Location models.Coord
}

// PlacesProvider finds hospitals near a coordinate.
type PlacesProvider interface {
	NearbyHospitals(ctx context.Context, center models.Coord, radiusMeters int) ([]Candidate, error)
}

// Locator picks the closest provider candidate and upserts it by name.
type Locator struct {
	provider PlacesProvider
	store    storage.HospitalStore
}

func NewLocator(provider PlacesProvider, store storage.HospitalStore) *Locator {
	return &Locator{provider: provider, store: store}
}

// LocateNearest returns the hospital closest to the patient coordinate.
// Provider failures surface as ExternalServiceError and are not retried
// here; zero candidates is a NotFoundError. Re-discovering a hospital
// with a known name reuses the stored record instead of inserting a
// duplicate.
func (l *Locator) LocateNearest(ctx context.Context, patient models.Coord) (models.Hospital, error) {
	candidates, err := l.provider.NearbyHospitals(ctx, patient, SearchRadiusMeters)
	if err != nil {
		return models.Hospital{}, fault.ExternalService(err, "hospital places lookup failed")
	}
	if len(candidates) == 0 {
		return models.Hospital{}, fault.NotFound("no hospitals found nearby")
	}

	// strict minimum, ties broken by provider order
	best := candidates[0]
	minDist := geo.Distance(patient, best.Location)
	for _, c := range candidates[1:] {
		if d := geo.Distance(patient, c.Location); d < minDist {
			minDist = d
			best = c
		}
	}

	existing, ok, err := l.store.FindHospitalByName(ctx, best.Name)
	if err != nil {
		return models.Hospital{}, err
	}
	if ok {
		return existing, nil
	}

	h := models.Hospital{
		ID:       uuid.NewString(),
		Name:     best.Name,
		Address:  best.Address,
		Phone:    best.Phone,
		Location: models.PointFromCoord(best.Location),
	}
	if err := l.store.CreateHospital(ctx, &h); err != nil {
		return models.Hospital{}, err
	}
	return h, nil
}
