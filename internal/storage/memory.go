package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/ambulance-dispatch/internal/fault"
	"github.com/example/ambulance-dispatch/internal/models"
)

// MemoryStore keeps everything in maps behind one RWMutex. The
// compare-and-swap operations run under the write lock, which gives the
// same at-most-one-reservation guarantee the SQL store gets from
// conditional UPDATEs.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]*models.User
	ambulances map[string]*models.Ambulance
	hospitals  map[string]*models.Hospital
	requests   map[string]*models.EmergencyRequest

	// registration order, so FindAvailable and ListPending scan
	// deterministically like the SQL store's ORDER BY created_at
	ambulanceOrder []string
	requestOrder   []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*models.User),
		ambulances: make(map[string]*models.Ambulance),
		hospitals:  make(map[string]*models.Hospital),
		requests:   make(map[string]*models.EmergencyRequest),
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Phone == u.Phone {
			return fault.Conflict("user with phone %s already exists", u.Phone)
		}
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, fault.NotFound("user %s not found", id)
	}
	return *u, nil
}

func (m *MemoryStore) FindUserByPhone(ctx context.Context, phone string) (models.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if u.Phone == phone {
			return *u, true, nil
		}
	}
	return models.User{}, false, nil
}

func (m *MemoryStore) AppendEmergency(ctx context.Context, userID, requestID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return fault.NotFound("user %s not found", userID)
	}
	u.EmergencyHistory = append(u.EmergencyHistory, requestID)
	u.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) CreateAmbulance(ctx context.Context, a *models.Ambulance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.ambulances {
		if existing.Phone == a.Phone {
			return fault.Conflict("ambulance with phone %s already exists", a.Phone)
		}
		if a.VehicleNumber != "" && existing.VehicleNumber == a.VehicleNumber {
			return fault.Conflict("ambulance with vehicle number %s already exists", a.VehicleNumber)
		}
	}
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	m.ambulances[a.ID] = &cp
	m.ambulanceOrder = append(m.ambulanceOrder, a.ID)
	return nil
}

func (m *MemoryStore) GetAmbulance(ctx context.Context, id string) (models.Ambulance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.ambulances[id]
	if !ok {
		return models.Ambulance{}, fault.NotFound("ambulance %s not found", id)
	}
	return *a, nil
}

func (m *MemoryStore) FindAmbulanceByPhone(ctx context.Context, phone string) (models.Ambulance, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.ambulances {
		if a.Phone == phone {
			return *a, true, nil
		}
	}
	return models.Ambulance{}, false, nil
}

func (m *MemoryStore) FindAvailable(ctx context.Context) ([]models.Ambulance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Ambulance, 0, len(m.ambulances))
	for _, id := range m.ambulanceOrder {
		if a := m.ambulances[id]; a.Available {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *MemoryStore) ReserveAmbulance(ctx context.Context, ambulanceID, requestID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.ambulances[ambulanceID]
	if !ok {
		return false, fault.NotFound("ambulance %s not found", ambulanceID)
	}
	if !a.Available {
		return false, nil
	}
	a.Available = false
	a.CurrentRequest = requestID
	a.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) ReleaseAmbulance(ctx context.Context, ambulanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.ambulances[ambulanceID]
	if !ok {
		return fault.NotFound("ambulance %s not found", ambulanceID)
	}
	a.Available = true
	a.CurrentRequest = ""
	a.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) UpdatePosition(ctx context.Context, ambulanceID string, loc models.GeoPoint) (models.Ambulance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.ambulances[ambulanceID]
	if !ok {
		return models.Ambulance{}, fault.NotFound("ambulance %s not found", ambulanceID)
	}
	a.Location = loc
	a.UpdatedAt = time.Now()
	return *a, nil
}

func (m *MemoryStore) FindHospitalByName(ctx context.Context, name string) (models.Hospital, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, h := range m.hospitals {
		if h.Name == name {
			return *h, true, nil
		}
	}
	return models.Hospital{}, false, nil
}

func (m *MemoryStore) CreateHospital(ctx context.Context, h *models.Hospital) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// find-or-create by name; a concurrent creator may have won
	for _, existing := range m.hospitals {
		if existing.Name == h.Name {
			*h = *existing
			return nil
		}
	}
	h.CreatedAt = time.Now()
	cp := *h
	m.hospitals[h.ID] = &cp
	return nil
}

func (m *MemoryStore) GetHospital(ctx context.Context, id string) (models.Hospital, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hospitals[id]
	if !ok {
		return models.Hospital{}, fault.NotFound("hospital %s not found", id)
	}
	return *h, nil
}

func (m *MemoryStore) CreateRequest(ctx context.Context, r *models.EmergencyRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	cp := *r
	m.requests[r.ID] = &cp
	m.requestOrder = append(m.requestOrder, r.ID)
	return nil
}

func (m *MemoryStore) GetRequest(ctx context.Context, id string) (models.EmergencyRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.requests[id]
	if !ok {
		return models.EmergencyRequest{}, fault.NotFound("emergency %s not found", id)
	}
	return *r, nil
}

func (m *MemoryStore) AcceptRequest(ctx context.Context, requestID, ambulanceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return false, fault.NotFound("emergency %s not found", requestID)
	}
	if r.Status != models.StatusPending {
		return false, nil
	}
	r.Status = models.StatusAccepted
	r.AmbulanceID = ambulanceID
	r.UpdatedAt = time.Now()
	return true, nil
}

func (m *MemoryStore) TransitionStatus(ctx context.Context, requestID string, to models.RequestStatus, from ...models.RequestStatus) (models.EmergencyRequest, bool, error) {
	if !to.Valid() {
		return models.EmergencyRequest{}, false, fault.Validation("invalid status %q", to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return models.EmergencyRequest{}, false, fault.NotFound("emergency %s not found", requestID)
	}
	allowed := false
	for _, f := range from {
		if r.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return *r, false, nil
	}
	r.Status = to
	r.UpdatedAt = time.Now()
	return *r, true, nil
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]models.EmergencyRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.EmergencyRequest, 0, len(m.requests))
	for _, id := range m.requestOrder {
		if r := m.requests[id]; r.Status == models.StatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *MemoryStore) LatestForPatient(ctx context.Context, patientID string) (models.EmergencyRequest, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// requestOrder is chronological, so the last match is the newest
	for i := len(m.requestOrder) - 1; i >= 0; i-- {
		if r := m.requests[m.requestOrder[i]]; r.PatientID == patientID {
			return *r, true, nil
		}
	}
	return models.EmergencyRequest{}, false, nil
}
