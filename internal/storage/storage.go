// Package storage defines the repository interfaces the dispatch core
// depends on, plus an in-memory implementation used in tests and when no
// database is configured. The conditional (compare-and-swap) operations
// here are what close the read-then-write race on ambulance reservation.
package storage

import (
	"context"

	"github.com/example/ambulance-dispatch/internal/models"
)

// UserStore persists patients.
type UserStore interface {
	// CreateUser inserts a new patient. Fails with a ConflictError when
	// the phone number is already registered.
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (models.User, error)
	FindUserByPhone(ctx context.Context, phone string) (models.User, bool, error)
	// AppendEmergency appends a request id to the patient's history.
	AppendEmergency(ctx context.Context, userID, requestID string) error
}

// FleetStore persists ambulances. ReserveAmbulance and ReleaseAmbulance
// are the only writers of the available/currentRequest pair and must
// change both fields atomically.
type FleetStore interface {
	// CreateAmbulance inserts a new unit. Fails with a ConflictError
	// when the phone or vehicle number is already registered.
	CreateAmbulance(ctx context.Context, a *models.Ambulance) error
	GetAmbulance(ctx context.Context, id string) (models.Ambulance, error)
	FindAmbulanceByPhone(ctx context.Context, phone string) (models.Ambulance, bool, error)
	FindAvailable(ctx context.Context) ([]models.Ambulance, error)
	// ReserveAmbulance sets available=false and currentRequest=requestID
	// only if the unit is currently available. Returns false when the
	// precondition no longer holds (someone else won the race) and a
	// NotFoundError when the unit vanished entirely.
	ReserveAmbulance(ctx context.Context, ambulanceID, requestID string) (bool, error)
	// ReleaseAmbulance clears currentRequest and sets available=true.
	// Releasing an already-free unit is a no-op.
	ReleaseAmbulance(ctx context.Context, ambulanceID string) error
	// UpdatePosition replaces the unit's coordinate, last writer wins.
	UpdatePosition(ctx context.Context, ambulanceID string, loc models.GeoPoint) (models.Ambulance, error)
}

// HospitalStore persists lazily-discovered hospitals keyed by name.
type HospitalStore interface {
	FindHospitalByName(ctx context.Context, name string) (models.Hospital, bool, error)
	CreateHospital(ctx context.Context, h *models.Hospital) error
	GetHospital(ctx context.Context, id string) (models.Hospital, error)
}

// EmergencyStore persists emergency requests. Requests are transitioned,
// never deleted.
type EmergencyStore interface {
	CreateRequest(ctx context.Context, r *models.EmergencyRequest) error
	GetRequest(ctx context.Context, id string) (models.EmergencyRequest, error)
	// AcceptRequest atomically moves the request from pending to accepted
	// and binds the ambulance. Returns false if the request is no longer
	// pending.
	AcceptRequest(ctx context.Context, requestID, ambulanceID string) (bool, error)
	// TransitionStatus moves the request to `to` only while its current
	// status is one of `from`. Returns the post-transition request and
	// false when the precondition failed.
	TransitionStatus(ctx context.Context, requestID string, to models.RequestStatus, from ...models.RequestStatus) (models.EmergencyRequest, bool, error)
	ListPending(ctx context.Context) ([]models.EmergencyRequest, error)
	LatestForPatient(ctx context.Context, patientID string) (models.EmergencyRequest, bool, error)
}

// Store bundles the four repositories; both implementations satisfy it.
type Store interface {
	UserStore
	FleetStore
	HospitalStore
	EmergencyStore
}
