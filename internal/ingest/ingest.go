// Package ingest accepts periodic ambulance position reports. Reports go
// straight to the fleet store (last writer wins) and, when Kafka is
// configured, onto the ambulance-locations topic for the consumer that
// maintains the Redis GEO index.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ambulance-dispatch/internal/fault"
	"github.com/example/ambulance-dispatch/internal/geo"
	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/observability"
	"github.com/example/ambulance-dispatch/internal/storage"
)

// Publisher forwards position reports to the ingest pipeline.
type Publisher interface {
	PublishPosition(report models.PositionReport) error
}

// Service applies position reports to the fleet store.
type Service struct {
	fleet     storage.FleetStore
	publisher Publisher      // optional
	index     geo.FleetIndex // optional, for notification fan-out
	logger    *slog.Logger
}

func NewService(fleet storage.FleetStore, publisher Publisher, index geo.FleetIndex, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{fleet: fleet, publisher: publisher, index: index, logger: logger}
}

// ReportPosition replaces the ambulance's coordinate unconditionally.
// There is no smoothing or plausibility filtering; the dispatcher always
// matches against the latest reported position.
func (s *Service) ReportPosition(ctx context.Context, ambulanceID string, coord models.Coord) (models.Ambulance, error) {
	if ambulanceID == "" {
		return models.Ambulance{}, fault.Validation("ambulance id is required")
	}
	a, err := s.fleet.UpdatePosition(ctx, ambulanceID, models.PointFromCoord(coord))
	if err != nil {
		return models.Ambulance{}, err
	}
	observability.PositionReports.Inc()

	if s.index != nil {
		s.index.Upsert(a)
	}
	if s.publisher != nil {
		report := models.PositionReport{AmbulanceID: a.ID, Location: a.Location, ReportedAt: time.Now()}
		if err := s.publisher.PublishPosition(report); err != nil {
			// pipeline is best-effort; the store already has the position
			s.logger.Warn("position publish failed", "ambulance_id", a.ID, "error", err)
		}
	}
	return a, nil
}
