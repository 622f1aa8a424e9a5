package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ambulance-dispatch/internal/fault"
	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/storage"
)

type capturePublisher struct {
	reports []models.PositionReport
	err     error
}

func (c *capturePublisher) PublishPosition(report models.PositionReport) error {
	c.reports = append(c.reports, report)
	return c.err
}

type captureIndex struct {
	upserts []models.Ambulance
}

func (c *captureIndex) Upsert(a models.Ambulance) { c.upserts = append(c.upserts, a) }
func (c *captureIndex) Nearby(lat, lon float64, radiusMeters float64, limit int) []models.Ambulance {
	return nil
}

func TestReportPositionLastWriterWins(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	a := models.Ambulance{ID: "a1", Phone: "201", VehicleNumber: "PB-01", Available: true}
	if err := store.CreateAmbulance(ctx, &a); err != nil {
		t.Fatalf("create: %v", err)
	}

	pub := &capturePublisher{}
	idx := &captureIndex{}
	svc := NewService(store, pub, idx, nil)

	if _, err := svc.ReportPosition(ctx, "a1", models.Coord{Lat: 30.70, Lon: 76.70}); err != nil {
		t.Fatalf("first report: %v", err)
	}
	got, err := svc.ReportPosition(ctx, "a1", models.Coord{Lat: 30.75, Lon: 76.78})
	if err != nil {
		t.Fatalf("second report: %v", err)
	}
	if got.Location.Lat != 30.75 || got.Location.Lon != 76.78 {
		t.Fatalf("position not replaced: %+v", got.Location)
	}
	if len(pub.reports) != 2 {
		t.Fatalf("expected 2 published reports, got %d", len(pub.reports))
	}
	if len(idx.upserts) != 2 {
		t.Fatalf("expected 2 index upserts, got %d", len(idx.upserts))
	}
}

func TestReportPositionUnknownAmbulance(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), nil, nil, nil)
	_, err := svc.ReportPosition(context.Background(), "nope", models.Coord{Lat: 1, Lon: 1})
	if !fault.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestReportPositionToleratesPublishFailure(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	a := models.Ambulance{ID: "a1", Phone: "201", VehicleNumber: "PB-01", Available: true}
	if err := store.CreateAmbulance(ctx, &a); err != nil {
		t.Fatalf("create: %v", err)
	}
	pub := &capturePublisher{err: errors.New("broker down")}
	svc := NewService(store, pub, nil, nil)

	got, err := svc.ReportPosition(ctx, "a1", models.Coord{Lat: 30.75, Lon: 76.78})
	if err != nil {
		t.Fatalf("report should succeed despite publish failure: %v", err)
	}
	if got.Location.Lat != 30.75 {
		t.Fatalf("store not updated: %+v", got.Location)
	}
}
