package hospitals

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ambulance-dispatch/internal/fault"
	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/storage"
)

type fakeProvider struct {
	candidates []Candidate
	err        error
	calls      int
}

func (f *fakeProvider) NearbyHospitals(ctx context.Context, center models.Coord, radiusMeters int) ([]Candidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func TestLocateNearestPicksClosest(t *testing.T) {
	patient := models.Coord{Lat: 30.7333, Lon: 76.7794}
	provider := &fakeProvider{candidates: []Candidate{
		{Name: "Far Hospital", Location: models.Coord{Lat: 30.80, Lon: 76.78}},
		{Name: "Near Hospital", Location: models.Coord{Lat: 30.74, Lon: 76.78}},
		{Name: "Mid Hospital", Location: models.Coord{Lat: 30.77, Lon: 76.78}},
	}}
	l := NewLocator(provider, storage.NewMemoryStore())

	h, err := l.LocateNearest(context.Background(), patient)
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if h.Name != "Near Hospital" {
		t.Fatalf("expected Near Hospital, got %s", h.Name)
	}
	if h.Location.Lat != 30.74 || h.Location.Lon != 76.78 {
		t.Fatalf("coordinate transposed: %+v", h.Location)
	}
}

func TestLocateNearestTieFirstWins(t *testing.T) {
	same := models.Coord{Lat: 30.74, Lon: 76.78}
	provider := &fakeProvider{candidates: []Candidate{
		{Name: "First", Location: same},
		{Name: "Second", Location: same},
	}}
	l := NewLocator(provider, storage.NewMemoryStore())

	h, err := l.LocateNearest(context.Background(), models.Coord{Lat: 30.7333, Lon: 76.7794})
	if err != nil {
		t.Fatalf("locate: %v", err)
	}
	if h.Name != "First" {
		t.Fatalf("tie should keep provider order, got %s", h.Name)
	}
}

func TestLocateNearestNoCandidates(t *testing.T) {
	l := NewLocator(&fakeProvider{}, storage.NewMemoryStore())
	_, err := l.LocateNearest(context.Background(), models.Coord{Lat: 1, Lon: 1})
	if !fault.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestLocateNearestProviderFailure(t *testing.T) {
	l := NewLocator(&fakeProvider{err: errors.New("connection refused")}, storage.NewMemoryStore())
	_, err := l.LocateNearest(context.Background(), models.Coord{Lat: 1, Lon: 1})
	if !fault.IsExternalService(err) {
		t.Fatalf("expected ExternalServiceError, got %v", err)
	}
}

func TestLocateNearestIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	provider := &fakeProvider{candidates: []Candidate{
		{Name: "City General", Address: "Sector 16", Location: models.Coord{Lat: 30.74, Lon: 76.78}},
	}}
	l := NewLocator(provider, store)

	first, err := l.LocateNearest(ctx, models.Coord{Lat: 30.7333, Lon: 76.7794})
	if err != nil {
		t.Fatalf("first locate: %v", err)
	}
	second, err := l.LocateNearest(ctx, models.Coord{Lat: 30.7350, Lon: 76.7800})
	if err != nil {
		t.Fatalf("second locate: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("re-discovery created a duplicate: %s vs %s", first.ID, second.ID)
	}
	if provider.calls != 2 {
		t.Fatalf("expected provider consulted each time, got %d calls", provider.calls)
	}
}
