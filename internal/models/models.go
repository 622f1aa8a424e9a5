package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Coord is a (latitude, longitude) pair in degrees. All distance math
// takes coordinates in this order.
type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GeoPoint is the storage/wire representation of a coordinate. It
// serializes as a GeoJSON-style [longitude, latitude] array; keeping the
// transposition inside this type is what prevents lat/lon mixups at the
// boundary.
type GeoPoint struct {
	Lon float64
	Lat float64
}

func PointFromCoord(c Coord) GeoPoint { return GeoPoint{Lon: c.Lon, Lat: c.Lat} }

func (p GeoPoint) Coord() Coord { return Coord{Lat: p.Lat, Lon: p.Lon} }

func (p GeoPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lon, p.Lat})
}

func (p *GeoPoint) UnmarshalJSON(b []byte) error {
	var arr [2]float64
	if err := json.Unmarshal(b, &arr); err != nil {
		return fmt.Errorf("geo point must be a [lng, lat] array: %w", err)
	}
	p.Lon, p.Lat = arr[0], arr[1]
	return nil
}

// RequestStatus is the closed lifecycle enum for an emergency request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusAccepted  RequestStatus = "accepted"
	StatusEnroute   RequestStatus = "enroute" // declared but never transitioned into
	StatusCompleted RequestStatus = "completed"
	StatusCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusEnroute, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed out of s.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// User is a patient. Phone is the unique natural key.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Phone            string    `json:"phone"`
	Email            string    `json:"email,omitempty"`
	Location         GeoPoint  `json:"location"`
	EmergencyHistory []string  `json:"emergencyHistory"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Ambulance is a fleet unit. Available is false exactly when
// CurrentRequest is set; the two change together, atomically.
type Ambulance struct {
	ID             string    `json:"id"`
	DriverName     string    `json:"driverName"`
	Phone          string    `json:"phone"`
	VehicleNumber  string    `json:"vehicleNumber"`
	Location       GeoPoint  `json:"location"`
	Available      bool      `json:"available"`
	CurrentRequest string    `json:"currentRequest,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Hospital is discovered lazily from the places provider and never
// mutated afterwards by the dispatch core. Name is the natural key for
// de-duplication.
type Hospital struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	Phone         string    `json:"phone,omitempty"`
	Location      GeoPoint  `json:"location"`
	Specialties   []string  `json:"specialties,omitempty"`
	Capacity      int       `json:"capacity,omitempty"`
	AvailableBeds int       `json:"availableBeds,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// EmergencyRequest is the dispatch unit of work. Requests are never
// deleted; completed and cancelled rows stay as the audit trail.
type EmergencyRequest struct {
	ID               string        `json:"id"`
	PatientID        string        `json:"patient"`
	AmbulanceID      string        `json:"ambulance,omitempty"`
	HospitalID       string        `json:"hospital,omitempty"`
	PatientLocation  GeoPoint      `json:"patientLocation"`
	HospitalLocation GeoPoint      `json:"hospitalLocation"`
	Status           RequestStatus `json:"status"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// PositionReport is the ingest message emitted when a driver phones home
// with a fresh coordinate.
type PositionReport struct {
	AmbulanceID string    `json:"ambulance_id"`
	Location    GeoPoint  `json:"location"`
	ReportedAt  time.Time `json:"reported_at"`
}

// EmergencyAlert is pushed over a driver's websocket when a new pending
// request appears nearby.
type EmergencyAlert struct {
	EmergencyID     string   `json:"emergency_id"`
	PatientLocation GeoPoint `json:"patient_location"`
	HospitalName    string   `json:"hospital_name,omitempty"`
	DistanceKm      float64  `json:"distance_km"`
}
