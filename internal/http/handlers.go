package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ambulance-dispatch/internal/dispatch"
	"github.com/example/ambulance-dispatch/internal/fault"
	"github.com/example/ambulance-dispatch/internal/ingest"
	"github.com/example/ambulance-dispatch/internal/models"
	"github.com/example/ambulance-dispatch/internal/notify"
)

// Server is the HTTP binding over the dispatch core. Transport concerns
// only: decode typed requests, call the service, map fault kinds to
// status codes.
type Server struct {
	dispatcher *dispatch.Service
	ingest     *ingest.Service
	wsreg      *notify.WSRegistry
	logger     *slog.Logger
	mux        *mux.Router
}

func NewServer(dispatcher *dispatch.Service, ing *ingest.Service, wsreg *notify.WSRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{dispatcher: dispatcher, ingest: ing, wsreg: wsreg, logger: logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/auth/user", s.handleRegisterPatient).Methods("POST")
	s.mux.HandleFunc("/api/auth/ambulance", s.handleRegisterDriver).Methods("POST")
	s.mux.HandleFunc("/api/auth/login", s.handleLoginDriver).Methods("POST")
	s.mux.HandleFunc("/api/auth/userlogin", s.handleLoginPatient).Methods("POST")

	s.mux.HandleFunc("/api/emergency/create", s.handleCreateEmergency).Methods("POST")
	s.mux.HandleFunc("/api/emergency/accept", s.handleAcceptEmergency).Methods("POST")
	s.mux.HandleFunc("/api/emergency/complete", s.handleCompleteEmergency).Methods("POST")
	s.mux.HandleFunc("/api/emergency/cancel", s.handleCancelEmergency).Methods("POST")
	s.mux.HandleFunc("/api/emergency/nearby", s.handleNearbyEmergencies).Methods("GET")
	s.mux.HandleFunc("/api/emergency/update", s.handleUpdateLocation).Methods("POST")
	s.mux.HandleFunc("/api/emergency/current/user/{userId}", s.handleCurrentForPatient).Methods("GET")
	s.mux.HandleFunc("/api/emergency/current/{driverId}", s.handleCurrentForDriver).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type registerPatientRequest struct {
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	Email     string  `json:"email"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (s *Server) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req registerPatientRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.dispatcher.RegisterPatient(r.Context(), req.Name, req.Phone, req.Email,
		models.Coord{Lat: req.Latitude, Lon: req.Longitude})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"message": "user created successfully", "user": user})
}

type registerDriverRequest struct {
	DriverName    string  `json:"driverName"`
	Phone         string  `json:"phone"`
	VehicleNumber string  `json:"vehicleNumber"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
}

func (s *Server) handleRegisterDriver(w http.ResponseWriter, r *http.Request) {
	var req registerDriverRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ambulance, err := s.dispatcher.RegisterDriver(r.Context(), req.DriverName, req.Phone, req.VehicleNumber,
		models.Coord{Lat: req.Latitude, Lon: req.Longitude})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"message": "ambulance driver created successfully", "ambulance": ambulance})
}

type loginDriverRequest struct {
	DriverName string `json:"driverName"`
	Phone      string `json:"phone"`
}

func (s *Server) handleLoginDriver(w http.ResponseWriter, r *http.Request) {
	var req loginDriverRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ambulance, err := s.dispatcher.LoginDriver(r.Context(), req.DriverName, req.Phone)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "login successful", "driver": ambulance})
}

type loginPatientRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (s *Server) handleLoginPatient(w http.ResponseWriter, r *http.Request) {
	var req loginPatientRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.dispatcher.LoginPatient(r.Context(), req.Name, req.Phone)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "login successful", "user": user})
}

type createEmergencyRequest struct {
	UserID    string  `json:"userId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (s *Server) handleCreateEmergency(w http.ResponseWriter, r *http.Request) {
	var req createEmergencyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.dispatcher.Create(r.Context(), req.UserID, models.Coord{Lat: req.Latitude, Lon: req.Longitude})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"message":   "emergency created successfully",
		"emergency": res.Emergency,
		"hospital":  res.Hospital,
	})
}

type acceptEmergencyRequest struct {
	EmergencyID string `json:"emergencyId"`
	DriverID    string `json:"driverId"`
}

func (s *Server) handleAcceptEmergency(w http.ResponseWriter, r *http.Request) {
	var req acceptEmergencyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.dispatcher.Accept(r.Context(), req.EmergencyID, req.DriverID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":   "emergency accepted, ambulance assigned",
		"emergency": res.Emergency,
		"ambulance": res.Ambulance,
		"hospital":  res.Hospital,
	})
}

type completeEmergencyRequest struct {
	EmergencyID string `json:"emergencyId"`
}

func (s *Server) handleCompleteEmergency(w http.ResponseWriter, r *http.Request) {
	var req completeEmergencyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	emergency, err := s.dispatcher.Complete(r.Context(), req.EmergencyID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "emergency completed successfully", "emergency": emergency})
}

func (s *Server) handleCancelEmergency(w http.ResponseWriter, r *http.Request) {
	var req completeEmergencyRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	emergency, err := s.dispatcher.Cancel(r.Context(), req.EmergencyID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "emergency cancelled", "emergency": emergency})
}

func (s *Server) handleNearbyEmergencies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("latitude"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("longitude"), 64)
	if errLat != nil || errLon != nil {
		s.writeError(w, r, fault.Validation("latitude and longitude are required"))
		return
	}
	radius := float64(0)
	if v := q.Get("radius"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			radius = f
		}
	}
	list, err := s.dispatcher.PendingNearby(r.Context(), models.Coord{Lat: lat, Lon: lon}, radius)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"emergencies": list})
}

type updateLocationRequest struct {
	AmbulanceID string   `json:"ambulanceId"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

func (s *Server) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req updateLocationRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.AmbulanceID == "" || req.Lat == nil || req.Lng == nil {
		s.writeError(w, r, fault.Validation("ambulanceId, lng and lat are required"))
		return
	}
	ambulance, err := s.ingest.ReportPosition(r.Context(), req.AmbulanceID, models.Coord{Lat: *req.Lat, Lon: *req.Lng})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"message": "location updated", "ambulance": ambulance})
}

func (s *Server) handleCurrentForDriver(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driverId"]
	detail, err := s.dispatcher.CurrentForDriver(r.Context(), driverID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if detail == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"message": "no current emergency request for this driver"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "emergency": detail})
}

func (s *Server) handleCurrentForPatient(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	detail, err := s.dispatcher.CurrentForPatient(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if detail == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{"message": "no current emergency request for this user"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "emergency": detail})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.wsreg.Add(id, conn)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fault.Validation("invalid request body: %v", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case fault.IsValidation(err):
		status = http.StatusBadRequest
	case fault.IsNotFound(err):
		status = http.StatusNotFound
	case fault.IsConflict(err):
		status = http.StatusConflict
	case fault.IsExternalService(err):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
		s.writeJSON(w, status, map[string]any{"error": "server error"})
		return
	}
	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
