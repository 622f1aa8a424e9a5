package dispatch

import (
	"context"

	"github.com/google/uuid"

	"github.com/example/ambulance-dispatch/internal/fault"
	"github.com/example/ambulance-dispatch/internal/models"
)

// Registration lives on the same service because it shares the stores;
// there is no separate identity system (authn is out of scope).

// RegisterPatient creates a patient keyed by unique phone.
func (s *Service) RegisterPatient(ctx context.Context, name, phone, email string, coord models.Coord) (models.User, error) {
	if name == "" || phone == "" {
		return models.User{}, fault.Validation("name and phone are required")
	}
	if err := validCoord(coord); err != nil {
		return models.User{}, err
	}
	u := models.User{
		ID:       uuid.NewString(),
		Name:     name,
		Phone:    phone,
		Email:    email,
		Location: models.PointFromCoord(coord),
	}
	if err := s.store.CreateUser(ctx, &u); err != nil {
		return models.User{}, err
	}
	s.logger.Info("patient registered", "user_id", u.ID)
	return u, nil
}

// RegisterDriver creates an ambulance unit, available from the start.
// Phone and vehicle number are both unique keys.
func (s *Service) RegisterDriver(ctx context.Context, driverName, phone, vehicleNumber string, coord models.Coord) (models.Ambulance, error) {
	if driverName == "" || phone == "" || vehicleNumber == "" {
		return models.Ambulance{}, fault.Validation("driver name, phone and vehicle number are required")
	}
	if err := validCoord(coord); err != nil {
		return models.Ambulance{}, err
	}
	a := models.Ambulance{
		ID:            uuid.NewString(),
		DriverName:    driverName,
		Phone:         phone,
		VehicleNumber: vehicleNumber,
		Location:      models.PointFromCoord(coord),
		Available:     true,
	}
	if err := s.store.CreateAmbulance(ctx, &a); err != nil {
		return models.Ambulance{}, err
	}
	s.logger.Info("driver registered", "ambulance_id", a.ID, "vehicle", a.VehicleNumber)
	return a, nil
}

// LoginDriver finds the driver's ambulance by phone, creating a fresh
// available unit on first login.
func (s *Service) LoginDriver(ctx context.Context, driverName, phone string) (models.Ambulance, error) {
	if driverName == "" || phone == "" {
		return models.Ambulance{}, fault.Validation("driver name and phone are required")
	}
	a, ok, err := s.store.FindAmbulanceByPhone(ctx, phone)
	if err != nil {
		return models.Ambulance{}, err
	}
	if ok {
		return a, nil
	}
	a = models.Ambulance{
		ID:         uuid.NewString(),
		DriverName: driverName,
		Phone:      phone,
		Available:  true,
	}
	if err := s.store.CreateAmbulance(ctx, &a); err != nil {
		return models.Ambulance{}, err
	}
	s.logger.Info("driver created on first login", "ambulance_id", a.ID)
	return a, nil
}

// LoginPatient looks the patient up by phone; the name must match the
// registered record.
func (s *Service) LoginPatient(ctx context.Context, name, phone string) (models.User, error) {
	if name == "" || phone == "" {
		return models.User{}, fault.Validation("name and phone are required")
	}
	u, ok, err := s.store.FindUserByPhone(ctx, phone)
	if err != nil {
		return models.User{}, err
	}
	if !ok || u.Name != name {
		return models.User{}, fault.NotFound("user not found, please register first")
	}
	return u, nil
}
