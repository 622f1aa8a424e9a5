// Package notify pushes new-emergency alerts to connected drivers over
// websockets. Delivery is best-effort: the pull-based status endpoints
// remain the source of truth, the socket only saves the driver a poll.
package notify

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/example/ambulance-dispatch/internal/geo"
	"github.com/example/ambulance-dispatch/internal/models"
)

// WSSession is one connected driver socket.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(alert models.EmergencyAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(alert)
}

// WSRegistry tracks driver sessions keyed by ambulance id and fans new
// emergencies out to units near the patient.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession

	index        geo.FleetIndex
	radiusMeters float64
	maxFanout    int
	logger       *slog.Logger
}

func NewWSRegistry(index geo.FleetIndex, radiusMeters float64, maxFanout int, logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	if radiusMeters <= 0 {
		radiusMeters = 5000
	}
	if maxFanout <= 0 {
		maxFanout = 16
	}
	return &WSRegistry{
		sessions:     make(map[string]*WSSession),
		index:        index,
		radiusMeters: radiusMeters,
		maxFanout:    maxFanout,
		logger:       logger,
	}
}

func (r *WSRegistry) Add(ambulanceID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[ambulanceID] = &WSSession{conn: conn}
}

func (r *WSRegistry) Remove(ambulanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, ambulanceID)
}

func (r *WSRegistry) session(ambulanceID string) (*WSSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[ambulanceID]
	return s, ok
}

// EmergencyCreated pushes an alert to every connected driver whose unit
// is within the notification radius of the patient.
func (r *WSRegistry) EmergencyCreated(req models.EmergencyRequest, hospital models.Hospital) {
	if r.index == nil {
		return
	}
	patient := req.PatientLocation.Coord()
	units := r.index.Nearby(patient.Lat, patient.Lon, r.radiusMeters, r.maxFanout)
	for _, u := range units {
		s, ok := r.session(u.ID)
		if !ok {
			continue
		}
		alert := models.EmergencyAlert{
			EmergencyID:     req.ID,
			PatientLocation: req.PatientLocation,
			HospitalName:    hospital.Name,
			DistanceKm:      geo.Distance(patient, u.Location.Coord()),
		}
		if err := s.Send(alert); err != nil {
			r.logger.Warn("ws send failed", "ambulance_id", u.ID, "error", err)
			r.Remove(u.ID)
		}
	}
}
