package geo

import (
	"math"
	"testing"

	"github.com/example/ambulance-dispatch/internal/models"
)

func TestDistanceKmZeroForIdenticalPoints(t *testing.T) {
	coords := [][2]float64{
		{0, 0},
		{30.7333, 76.7794},
		{-33.8688, 151.2093},
		{89.9, -179.9},
	}
	for _, c := range coords {
		if d := DistanceKm(c[0], c[1], c[0], c[1]); d != 0 {
			t.Fatalf("expected 0 for identical point (%v,%v), got %f", c[0], c[1], d)
		}
	}
}

func TestDistanceKmSymmetric(t *testing.T) {
	pairs := [][4]float64{
		{30.7333, 76.7794, 30.75, 76.78},
		{0, 0, 10, 10},
		{-45, 100, 45, -100},
	}
	for _, p := range pairs {
		ab := DistanceKm(p[0], p[1], p[2], p[3])
		ba := DistanceKm(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-9 {
			t.Fatalf("asymmetric: %f vs %f", ab, ba)
		}
	}
}

func TestDistanceKmKnownValue(t *testing.T) {
	// one degree of latitude is ~111.19 km on a 6371 km sphere
	d := DistanceKm(0, 0, 1, 0)
	if math.Abs(d-111.19) > 0.1 {
		t.Fatalf("expected ~111.19 km, got %f", d)
	}
}

func TestFormatKm(t *testing.T) {
	if got := FormatKm(1.234); got != "1.23 km" {
		t.Fatalf("expected %q, got %q", "1.23 km", got)
	}
	if got := FormatKm(0); got != "0.00 km" {
		t.Fatalf("expected %q, got %q", "0.00 km", got)
	}
}

func TestIndexNearbyFiltersByRadiusAndSorts(t *testing.T) {
	idx := NewIndex()
	idx.Upsert(models.Ambulance{ID: "close", Location: models.GeoPoint{Lat: 0.01, Lon: 0}})   // ~1.1 km
	idx.Upsert(models.Ambulance{ID: "far", Location: models.GeoPoint{Lat: 0.03, Lon: 0}})     // ~3.3 km
	idx.Upsert(models.Ambulance{ID: "outside", Location: models.GeoPoint{Lat: 0.1, Lon: 0}})  // ~11 km

	got := idx.Nearby(0, 0, 5000, 10)
	if len(got) != 2 {
		t.Fatalf("expected 2 units within 5 km, got %d", len(got))
	}
	if got[0].ID != "close" || got[1].ID != "far" {
		t.Fatalf("expected [close far], got [%s %s]", got[0].ID, got[1].ID)
	}
}
