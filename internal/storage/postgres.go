package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/example/ambulance-dispatch/internal/fault"
	"github.com/example/ambulance-dispatch/internal/models"
)

// uniqueViolation is the Postgres error code for duplicate unique keys.
const uniqueViolation = "23505"

// PostgresStore implements Store on database/sql + lib/pq. All the
// conditional transitions are single UPDATE statements guarded by a
// WHERE clause on the current state, so the at-most-one-reservation
// guarantee comes from the database, not from application locking.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO users(id, name, phone, email, lng, lat, emergency_history)
		 VALUES($1,$2,$3,$4,$5,$6,$7)
		 RETURNING created_at, updated_at`,
		u.ID, u.Name, u.Phone, u.Email, u.Location.Lon, u.Location.Lat, pq.Array(u.EmergencyHistory),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return fault.Conflict("user with phone %s already exists", u.Phone)
	}
	if err != nil {
		return fault.Internal(err)
	}
	return nil
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (models.User, error) {
	var u models.User
	var history []string
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, phone, email, lng, lat, emergency_history, created_at, updated_at
		 FROM users WHERE id=$1`, id,
	).Scan(&u.ID, &u.Name, &u.Phone, &u.Email, &u.Location.Lon, &u.Location.Lat,
		pq.Array(&history), &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fault.NotFound("user %s not found", id)
	}
	if err != nil {
		return models.User{}, fault.Internal(err)
	}
	u.EmergencyHistory = history
	return u, nil
}

func (p *PostgresStore) FindUserByPhone(ctx context.Context, phone string) (models.User, bool, error) {
	var u models.User
	var history []string
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, phone, email, lng, lat, emergency_history, created_at, updated_at
		 FROM users WHERE phone=$1`, phone,
	).Scan(&u.ID, &u.Name, &u.Phone, &u.Email, &u.Location.Lon, &u.Location.Lat,
		pq.Array(&history), &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, fault.Internal(err)
	}
	u.EmergencyHistory = history
	return u, true, nil
}

func (p *PostgresStore) AppendEmergency(ctx context.Context, userID, requestID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET emergency_history = array_append(emergency_history, $2), updated_at = now()
		 WHERE id=$1`, userID, requestID)
	if err != nil {
		return fault.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.NotFound("user %s not found", userID)
	}
	return nil
}

func (p *PostgresStore) CreateAmbulance(ctx context.Context, a *models.Ambulance) error {
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO ambulances(id, driver_name, phone, vehicle_number, lng, lat, available, current_request)
		 VALUES($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''))
		 RETURNING created_at, updated_at`,
		a.ID, a.DriverName, a.Phone, a.VehicleNumber, a.Location.Lon, a.Location.Lat,
		a.Available, a.CurrentRequest,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if isUniqueViolation(err) {
		return fault.Conflict("ambulance with phone %s or vehicle %s already exists", a.Phone, a.VehicleNumber)
	}
	if err != nil {
		return fault.Internal(err)
	}
	return nil
}

func (p *PostgresStore) scanAmbulance(row interface{ Scan(...any) error }) (models.Ambulance, error) {
	var a models.Ambulance
	var current sql.NullString
	err := row.Scan(&a.ID, &a.DriverName, &a.Phone, &a.VehicleNumber,
		&a.Location.Lon, &a.Location.Lat, &a.Available, &current, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Ambulance{}, err
	}
	a.CurrentRequest = current.String
	return a, nil
}

const ambulanceCols = `id, driver_name, phone, vehicle_number, lng, lat, available, current_request, created_at, updated_at`

func (p *PostgresStore) GetAmbulance(ctx context.Context, id string) (models.Ambulance, error) {
	a, err := p.scanAmbulance(p.db.QueryRowContext(ctx,
		`SELECT `+ambulanceCols+` FROM ambulances WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ambulance{}, fault.NotFound("ambulance %s not found", id)
	}
	if err != nil {
		return models.Ambulance{}, fault.Internal(err)
	}
	return a, nil
}

func (p *PostgresStore) FindAmbulanceByPhone(ctx context.Context, phone string) (models.Ambulance, bool, error) {
	a, err := p.scanAmbulance(p.db.QueryRowContext(ctx,
		`SELECT `+ambulanceCols+` FROM ambulances WHERE phone=$1`, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ambulance{}, false, nil
	}
	if err != nil {
		return models.Ambulance{}, false, fault.Internal(err)
	}
	return a, true, nil
}

func (p *PostgresStore) FindAvailable(ctx context.Context) ([]models.Ambulance, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+ambulanceCols+` FROM ambulances WHERE available ORDER BY created_at`)
	if err != nil {
		return nil, fault.Internal(err)
	}
	defer rows.Close()
	var out []models.Ambulance
	for rows.Next() {
		a, err := p.scanAmbulance(rows)
		if err != nil {
			return nil, fault.Internal(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}

func (p *PostgresStore) ReserveAmbulance(ctx context.Context, ambulanceID, requestID string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ambulances SET available=false, current_request=$2, updated_at=now()
		 WHERE id=$1 AND available`, ambulanceID, requestID)
	if err != nil {
		return false, fault.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	// distinguish "lost the race" from "unit vanished"
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM ambulances WHERE id=$1)`, ambulanceID).Scan(&exists); err != nil {
		return false, fault.Internal(err)
	}
	if !exists {
		return false, fault.NotFound("ambulance %s not found", ambulanceID)
	}
	return false, nil
}

func (p *PostgresStore) ReleaseAmbulance(ctx context.Context, ambulanceID string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE ambulances SET available=true, current_request=NULL, updated_at=now()
		 WHERE id=$1`, ambulanceID)
	if err != nil {
		return fault.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.NotFound("ambulance %s not found", ambulanceID)
	}
	return nil
}

func (p *PostgresStore) UpdatePosition(ctx context.Context, ambulanceID string, loc models.GeoPoint) (models.Ambulance, error) {
	a, err := p.scanAmbulance(p.db.QueryRowContext(ctx,
		`UPDATE ambulances SET lng=$2, lat=$3, updated_at=now()
		 WHERE id=$1 RETURNING `+ambulanceCols, ambulanceID, loc.Lon, loc.Lat))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ambulance{}, fault.NotFound("ambulance %s not found", ambulanceID)
	}
	if err != nil {
		return models.Ambulance{}, fault.Internal(err)
	}
	return a, nil
}

func (p *PostgresStore) FindHospitalByName(ctx context.Context, name string) (models.Hospital, bool, error) {
	h, err := p.scanHospital(p.db.QueryRowContext(ctx,
		`SELECT `+hospitalCols+` FROM hospitals WHERE name=$1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Hospital{}, false, nil
	}
	if err != nil {
		return models.Hospital{}, false, fault.Internal(err)
	}
	return h, true, nil
}

const hospitalCols = `id, name, address, phone, lng, lat, specialties, capacity, available_beds, created_at`

func (p *PostgresStore) scanHospital(row interface{ Scan(...any) error }) (models.Hospital, error) {
	var h models.Hospital
	var specialties []string
	err := row.Scan(&h.ID, &h.Name, &h.Address, &h.Phone,
		&h.Location.Lon, &h.Location.Lat, pq.Array(&specialties),
		&h.Capacity, &h.AvailableBeds, &h.CreatedAt)
	if err != nil {
		return models.Hospital{}, err
	}
	h.Specialties = specialties
	return h, nil
}

func (p *PostgresStore) CreateHospital(ctx context.Context, h *models.Hospital) error {
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO hospitals(id, name, address, phone, lng, lat, specialties, capacity, available_beds)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING created_at`,
		h.ID, h.Name, h.Address, h.Phone, h.Location.Lon, h.Location.Lat,
		pq.Array(h.Specialties), h.Capacity, h.AvailableBeds,
	).Scan(&h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		// lost a concurrent find-or-create; adopt the existing row
		existing, ok, ferr := p.FindHospitalByName(ctx, h.Name)
		if ferr != nil {
			return ferr
		}
		if ok {
			*h = existing
			return nil
		}
		return fault.Internal(err)
	}
	if err != nil {
		return fault.Internal(err)
	}
	return nil
}

func (p *PostgresStore) GetHospital(ctx context.Context, id string) (models.Hospital, error) {
	h, err := p.scanHospital(p.db.QueryRowContext(ctx,
		`SELECT `+hospitalCols+` FROM hospitals WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Hospital{}, fault.NotFound("hospital %s not found", id)
	}
	if err != nil {
		return models.Hospital{}, fault.Internal(err)
	}
	return h, nil
}

const requestCols = `id, patient_id, ambulance_id, hospital_id, patient_lng, patient_lat, hospital_lng, hospital_lat, status, created_at, updated_at`

func (p *PostgresStore) scanRequest(row interface{ Scan(...any) error }) (models.EmergencyRequest, error) {
	var r models.EmergencyRequest
	var ambulanceID, hospitalID sql.NullString
	var status string
	err := row.Scan(&r.ID, &r.PatientID, &ambulanceID, &hospitalID,
		&r.PatientLocation.Lon, &r.PatientLocation.Lat,
		&r.HospitalLocation.Lon, &r.HospitalLocation.Lat,
		&status, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.EmergencyRequest{}, err
	}
	r.AmbulanceID = ambulanceID.String
	r.HospitalID = hospitalID.String
	r.Status = models.RequestStatus(status)
	return r, nil
}

func (p *PostgresStore) CreateRequest(ctx context.Context, r *models.EmergencyRequest) error {
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO emergency_requests(id, patient_id, ambulance_id, hospital_id,
			patient_lng, patient_lat, hospital_lng, hospital_lat, status)
		 VALUES($1,$2,NULLIF($3,''),NULLIF($4,''),$5,$6,$7,$8,$9)
		 RETURNING created_at, updated_at`,
		r.ID, r.PatientID, r.AmbulanceID, r.HospitalID,
		r.PatientLocation.Lon, r.PatientLocation.Lat,
		r.HospitalLocation.Lon, r.HospitalLocation.Lat, string(r.Status),
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fault.Internal(err)
	}
	return nil
}

func (p *PostgresStore) GetRequest(ctx context.Context, id string) (models.EmergencyRequest, error) {
	r, err := p.scanRequest(p.db.QueryRowContext(ctx,
		`SELECT `+requestCols+` FROM emergency_requests WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.EmergencyRequest{}, fault.NotFound("emergency %s not found", id)
	}
	if err != nil {
		return models.EmergencyRequest{}, fault.Internal(err)
	}
	return r, nil
}

func (p *PostgresStore) AcceptRequest(ctx context.Context, requestID, ambulanceID string) (bool, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE emergency_requests SET status='accepted', ambulance_id=$2, updated_at=now()
		 WHERE id=$1 AND status='pending'`, requestID, ambulanceID)
	if err != nil {
		return false, fault.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM emergency_requests WHERE id=$1)`, requestID).Scan(&exists); err != nil {
		return false, fault.Internal(err)
	}
	if !exists {
		return false, fault.NotFound("emergency %s not found", requestID)
	}
	return false, nil
}

func (p *PostgresStore) TransitionStatus(ctx context.Context, requestID string, to models.RequestStatus, from ...models.RequestStatus) (models.EmergencyRequest, bool, error) {
	if !to.Valid() {
		return models.EmergencyRequest{}, false, fault.Validation("invalid status %q", to)
	}
	fromStrs := make([]string, len(from))
	for i, f := range from {
		fromStrs[i] = string(f)
	}
	r, err := p.scanRequest(p.db.QueryRowContext(ctx,
		`UPDATE emergency_requests SET status=$2, updated_at=now()
		 WHERE id=$1 AND status = ANY($3)
		 RETURNING `+requestCols, requestID, string(to), pq.Array(fromStrs)))
	if errors.Is(err, sql.ErrNoRows) {
		cur, gerr := p.GetRequest(ctx, requestID)
		if gerr != nil {
			return models.EmergencyRequest{}, false, gerr
		}
		return cur, false, nil
	}
	if err != nil {
		return models.EmergencyRequest{}, false, fault.Internal(err)
	}
	return r, true, nil
}

func (p *PostgresStore) ListPending(ctx context.Context) ([]models.EmergencyRequest, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+requestCols+` FROM emergency_requests WHERE status='pending' ORDER BY created_at`)
	if err != nil {
		return nil, fault.Internal(err)
	}
	defer rows.Close()
	var out []models.EmergencyRequest
	for rows.Next() {
		r, err := p.scanRequest(rows)
		if err != nil {
			return nil, fault.Internal(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Internal(err)
	}
	return out, nil
}

func (p *PostgresStore) LatestForPatient(ctx context.Context, patientID string) (models.EmergencyRequest, bool, error) {
	r, err := p.scanRequest(p.db.QueryRowContext(ctx,
		`SELECT `+requestCols+` FROM emergency_requests
		 WHERE patient_id=$1 ORDER BY created_at DESC LIMIT 1`, patientID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.EmergencyRequest{}, false, nil
	}
	if err != nil {
		return models.EmergencyRequest{}, false, fault.Internal(err)
	}
	return r, true, nil
}
