// Package dispatch implements the emergency state machine and the
// concurrency-safe reservation of ambulances. All mutations of a
// request's status and of an ambulance's availability funnel through
// this service.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/example/ambulance-dispatch/internal/fault"
	"github.com/example/ambulance-dispatch/internal/geo"
	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/observability"
	"github.com/example/ambulance-dispatch/internal/storage"
)

// DefaultNearbyRadiusMeters bounds PendingNearby when the caller does not
// override it.
const DefaultNearbyRadiusMeters = 5000

// HospitalLocator resolves the nearest hospital to a patient coordinate.
type HospitalLocator interface {
	LocateNearest(ctx context.Context, patient models.Coord) (models.Hospital, error)
}

// Notifier receives best-effort alerts about newly created emergencies.
// Failures are logged, never surfaced to the caller.
type Notifier interface {
	EmergencyCreated(req models.EmergencyRequest, hospital models.Hospital)
}

// Service orchestrates create -> accept -> complete over the repository
// interfaces.
type Service struct {
	store    storage.Store
	locator  HospitalLocator
	notifier Notifier
	logger   *slog.Logger
}

func NewService(store storage.Store, locator HospitalLocator, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, locator: locator, notifier: notifier, logger: logger}
}

// CreateResult is what the patient sees right after triggering.
type CreateResult struct {
	Emergency models.EmergencyRequest `json:"emergency"`
	Hospital  models.Hospital         `json:"hospital"`
}

// Create validates the patient, resolves the nearest hospital and
// persists a new pending request. Locator failures bubble up unchanged;
// nothing is persisted when they do.
func (s *Service) Create(ctx context.Context, patientID string, coord models.Coord) (CreateResult, error) {
	if patientID == "" {
		return CreateResult{}, fault.Validation("patient id is required")
	}
	if err := validCoord(coord); err != nil {
		return CreateResult{}, err
	}
	patient, err := s.store.GetUser(ctx, patientID)
	if err != nil {
		return CreateResult{}, err
	}

	hospital, err := s.locator.LocateNearest(ctx, coord)
	if err != nil {
		return CreateResult{}, err
	}

	req := models.EmergencyRequest{
		ID:               uuid.NewString(),
		PatientID:        patient.ID,
		HospitalID:       hospital.ID,
		PatientLocation:  models.PointFromCoord(coord),
		HospitalLocation: hospital.Location,
		Status:           models.StatusPending,
	}
	if err := s.store.CreateRequest(ctx, &req); err != nil {
		return CreateResult{}, err
	}
	if err := s.store.AppendEmergency(ctx, patient.ID, req.ID); err != nil {
		return CreateResult{}, err
	}

	observability.EmergenciesCreated.Inc()
	s.logger.Info("emergency created",
		"emergency_id", req.ID, "patient_id", patient.ID, "hospital", hospital.Name)

	if s.notifier != nil {
		s.notifier.EmergencyCreated(req, hospital)
	}
	return CreateResult{Emergency: req, Hospital: hospital}, nil
}

// AcceptResult is returned to the accepting driver.
type AcceptResult struct {
	Emergency models.EmergencyRequest `json:"emergency"`
	Ambulance models.Ambulance        `json:"ambulance"`
	Hospital  models.Hospital         `json:"hospital"`
}

// Accept reserves the nearest available ambulance for a pending request.
//
// Selection and reservation are split on purpose: the candidate list is a
// plain read, but the reservation itself is a conditional update keyed on
// available=true. When the swap fails another accept won that unit, so we
// drop it from consideration and re-select. The request's own transition
// is equally conditional on status=pending; losing that race releases the
// just-reserved unit before reporting the conflict, so no failure path
// leaves a half-bound ambulance behind.
func (s *Service) Accept(ctx context.Context, requestID, driverID string) (AcceptResult, error) {
	if requestID == "" || driverID == "" {
		return AcceptResult{}, fault.Validation("emergency id and driver id are required")
	}
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return AcceptResult{}, err
	}
	if req.Status != models.StatusPending {
		return AcceptResult{}, fault.Conflict("emergency already accepted")
	}
	patient := req.PatientLocation.Coord()

	tried := make(map[string]bool)
	for {
		candidates, err := s.store.FindAvailable(ctx)
		if err != nil {
			return AcceptResult{}, err
		}
		chosen, ok := nearest(patient, candidates, tried)
		if !ok {
			return AcceptResult{}, fault.Conflict("no available ambulances")
		}

		reserved, err := s.store.ReserveAmbulance(ctx, chosen.ID, requestID)
		if fault.IsNotFound(err) {
			// unit vanished between selection and reservation; re-select
			tried[chosen.ID] = true
			continue
		}
		if err != nil {
			return AcceptResult{}, err
		}
		if !reserved {
			observability.ReservationConflicts.Inc()
			tried[chosen.ID] = true
			continue
		}

		accepted, err := s.store.AcceptRequest(ctx, requestID, chosen.ID)
		if err != nil || !accepted {
			if relErr := s.store.ReleaseAmbulance(ctx, chosen.ID); relErr != nil {
				s.logger.Error("release after lost accept race failed",
					"ambulance_id", chosen.ID, "error", relErr)
			}
			if err != nil {
				return AcceptResult{}, err
			}
			return AcceptResult{}, fault.Conflict("emergency already accepted")
		}

		ambulance, err := s.store.GetAmbulance(ctx, chosen.ID)
		if err != nil {
			return AcceptResult{}, err
		}
		req, err = s.store.GetRequest(ctx, requestID)
		if err != nil {
			return AcceptResult{}, err
		}
		var hospital models.Hospital
		if req.HospitalID != "" {
			if h, herr := s.store.GetHospital(ctx, req.HospitalID); herr == nil {
				hospital = h
			}
		}

		observability.EmergenciesAccepted.Inc()
		s.logger.Info("emergency accepted",
			"emergency_id", req.ID, "ambulance_id", ambulance.ID, "driver_id", driverID,
			"distance_km", geo.Distance(patient, ambulance.Location.Coord()))
		return AcceptResult{Emergency: req, Ambulance: ambulance, Hospital: hospital}, nil
	}
}

// nearest returns the untried candidate minimizing the haversine distance
// to the patient; the first minimum encountered wins exact ties.
func nearest(patient models.Coord, candidates []models.Ambulance, tried map[string]bool) (models.Ambulance, bool) {
	var best models.Ambulance
	bestDist := 0.0
	found := false
	for _, c := range candidates {
		if tried[c.ID] {
			continue
		}
		d := geo.Distance(patient, c.Location.Coord())
		if !found || d < bestDist {
			best = c
			bestDist = d
			found = true
		}
	}
	return best, found
}

// Complete marks a request completed and releases its ambulance. A
// request with no bound ambulance completes with a no-op release.
// Completed and cancelled are terminal: completing either conflicts.
func (s *Service) Complete(ctx context.Context, requestID string) (models.EmergencyRequest, error) {
	if requestID == "" {
		return models.EmergencyRequest{}, fault.Validation("emergency id is required")
	}
	req, swapped, err := s.store.TransitionStatus(ctx, requestID, models.StatusCompleted,
		models.StatusPending, models.StatusAccepted, models.StatusEnroute)
	if err != nil {
		return models.EmergencyRequest{}, err
	}
	if !swapped {
		// only terminal states are excluded from the from-set above
		return models.EmergencyRequest{}, fault.Conflict("emergency already %s", req.Status)
	}
	if req.AmbulanceID != "" {
		if err := s.store.ReleaseAmbulance(ctx, req.AmbulanceID); err != nil && !fault.IsNotFound(err) {
			return models.EmergencyRequest{}, err
		}
	}
	observability.EmergenciesCompleted.Inc()
	s.logger.Info("emergency completed", "emergency_id", req.ID, "ambulance_id", req.AmbulanceID)
	return req, nil
}

// Cancel moves a pending or accepted request to the cancelled terminal
// state and releases any bound ambulance.
func (s *Service) Cancel(ctx context.Context, requestID string) (models.EmergencyRequest, error) {
	if requestID == "" {
		return models.EmergencyRequest{}, fault.Validation("emergency id is required")
	}
	req, swapped, err := s.store.TransitionStatus(ctx, requestID, models.StatusCancelled,
		models.StatusPending, models.StatusAccepted)
	if err != nil {
		return models.EmergencyRequest{}, err
	}
	if !swapped {
		if req.Status.Terminal() {
			return models.EmergencyRequest{}, fault.Conflict("emergency already %s", req.Status)
		}
		return models.EmergencyRequest{}, fault.Conflict("emergency cannot be cancelled from %s", req.Status)
	}
	if req.AmbulanceID != "" {
		if err := s.store.ReleaseAmbulance(ctx, req.AmbulanceID); err != nil && !fault.IsNotFound(err) {
			return models.EmergencyRequest{}, err
		}
	}
	s.logger.Info("emergency cancelled", "emergency_id", req.ID)
	return req, nil
}

// NearbyEmergency is a pending request annotated with its display
// distance from the caller.
type NearbyEmergency struct {
	EmergencyID     string          `json:"emergencyId"`
	Patient         PatientSummary  `json:"patient"`
	PatientLocation models.GeoPoint `json:"patientLocation"`
	Distance        string          `json:"distance"`
}

type PatientSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// PendingNearby lists pending requests whose patient coordinate lies
// within radiusMeters of the caller. Ordering within the radius is not
// significant.
func (s *Service) PendingNearby(ctx context.Context, coord models.Coord, radiusMeters float64) ([]NearbyEmergency, error) {
	if err := validCoord(coord); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		radiusMeters = DefaultNearbyRadiusMeters
	}
	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]NearbyEmergency, 0, len(pending))
	for _, r := range pending {
		km := geo.Distance(coord, r.PatientLocation.Coord())
		if km*1000 > radiusMeters {
			continue
		}
		summary := PatientSummary{ID: r.PatientID}
		if patient, err := s.store.GetUser(ctx, r.PatientID); err == nil {
			summary.Name = patient.Name
			summary.Phone = patient.Phone
		}
		out = append(out, NearbyEmergency{
			EmergencyID:     r.ID,
			Patient:         summary,
			PatientLocation: r.PatientLocation,
			Distance:        geo.FormatKm(km),
		})
	}
	return out, nil
}

// EmergencyDetail is the read projection behind the "current emergency"
// views: the request with its patient, hospital and ambulance resolved.
type EmergencyDetail struct {
	Emergency models.EmergencyRequest `json:"emergency"`
	Patient   *models.User            `json:"patient,omitempty"`
	Hospital  *models.Hospital        `json:"hospital,omitempty"`
	Ambulance *models.Ambulance       `json:"ambulance,omitempty"`
}

// CurrentForDriver resolves the request currently bound to the driver's
// ambulance. Returns (nil, nil) when the driver is idle.
func (s *Service) CurrentForDriver(ctx context.Context, ambulanceID string) (*EmergencyDetail, error) {
	if ambulanceID == "" {
		return nil, fault.Validation("driver id is required")
	}
	ambulance, err := s.store.GetAmbulance(ctx, ambulanceID)
	if err != nil {
		return nil, err
	}
	if ambulance.CurrentRequest == "" {
		return nil, nil
	}
	req, err := s.store.GetRequest(ctx, ambulance.CurrentRequest)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, req)
}

// CurrentForPatient resolves the patient's most recently created request
// regardless of status. Returns (nil, nil) when the patient has none.
func (s *Service) CurrentForPatient(ctx context.Context, userID string) (*EmergencyDetail, error) {
	if userID == "" {
		return nil, fault.Validation("user id is required")
	}
	req, ok, err := s.store.LatestForPatient(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return s.detail(ctx, req)
}

func (s *Service) detail(ctx context.Context, req models.EmergencyRequest) (*EmergencyDetail, error) {
	d := &EmergencyDetail{Emergency: req}
	if patient, err := s.store.GetUser(ctx, req.PatientID); err == nil {
		d.Patient = &patient
	}
	if req.HospitalID != "" {
		if hospital, err := s.store.GetHospital(ctx, req.HospitalID); err == nil {
			d.Hospital = &hospital
		}
	}
	if req.AmbulanceID != "" {
		if ambulance, err := s.store.GetAmbulance(ctx, req.AmbulanceID); err == nil {
			d.Ambulance = &ambulance
		}
	}
	return d, nil
}

func validCoord(c models.Coord) error {
	if c.Lat < -90 || c.Lat > 90 {
		return fault.Validation("latitude %v out of range", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fault.Validation("longitude %v out of range", c.Lon)
	}
	return nil
}
