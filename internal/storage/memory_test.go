package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/example/ambulance-dispatch/internal/fault"
	"github.com/example/ambulance-dispatch/internal/models"
)

func TestReserveAmbulanceCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	a := models.Ambulance{ID: "a1", DriverName: "Ravi", Phone: "201", VehicleNumber: "PB-01", Available: true}
	if err := m.CreateAmbulance(ctx, &a); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := m.ReserveAmbulance(ctx, "a1", "e1")
	if err != nil || !ok {
		t.Fatalf("first reserve: ok=%v err=%v", ok, err)
	}
	ok, err = m.ReserveAmbulance(ctx, "a1", "e2")
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if ok {
		t.Fatal("second reserve must fail the swap")
	}

	got, err := m.GetAmbulance(ctx, "a1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Available || got.CurrentRequest != "e1" {
		t.Fatalf("reservation overwritten: %+v", got)
	}

	if _, err := m.ReserveAmbulance(ctx, "missing", "e1"); !fault.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestReserveAmbulanceConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	a := models.Ambulance{ID: "a1", Phone: "201", VehicleNumber: "PB-01", Available: true}
	if err := m.CreateAmbulance(ctx, &a); err != nil {
		t.Fatalf("create: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.ReserveAmbulance(ctx, "a1", "e1")
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for ok := range wins {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one winning swap, got %d", count)
	}
}

func TestReleaseAmbulanceIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	a := models.Ambulance{ID: "a1", Phone: "201", VehicleNumber: "PB-01", Available: true}
	if err := m.CreateAmbulance(ctx, &a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := m.ReserveAmbulance(ctx, "a1", "e1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := m.ReleaseAmbulance(ctx, "a1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := m.ReleaseAmbulance(ctx, "a1"); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}
	got, _ := m.GetAmbulance(ctx, "a1")
	if !got.Available || got.CurrentRequest != "" {
		t.Fatalf("not released: %+v", got)
	}
}

func TestTransitionStatusGuardsCurrentState(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	r := models.EmergencyRequest{ID: "e1", PatientID: "p1", Status: models.StatusPending}
	if err := m.CreateRequest(ctx, &r); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, swapped, err := m.TransitionStatus(ctx, "e1", models.StatusCompleted,
		models.StatusPending, models.StatusAccepted)
	if err != nil || !swapped {
		t.Fatalf("transition: swapped=%v err=%v", swapped, err)
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}

	got, swapped, err = m.TransitionStatus(ctx, "e1", models.StatusCompleted,
		models.StatusPending, models.StatusAccepted)
	if err != nil {
		t.Fatalf("second transition: %v", err)
	}
	if swapped {
		t.Fatal("transition out of completed must not swap")
	}
	if got.Status != models.StatusCompleted {
		t.Fatalf("status changed by failed swap: %s", got.Status)
	}

	if _, _, err := m.TransitionStatus(ctx, "missing", models.StatusCompleted, models.StatusPending); !fault.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	if _, _, err := m.TransitionStatus(ctx, "e1", models.RequestStatus("dispatched"), models.StatusPending); !fault.IsValidation(err) {
		t.Fatalf("expected ValidationError for unknown status, got %v", err)
	}
}

func TestAcceptRequestOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	r := models.EmergencyRequest{ID: "e1", PatientID: "p1", Status: models.StatusPending}
	if err := m.CreateRequest(ctx, &r); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err := m.AcceptRequest(ctx, "e1", "a1")
	if err != nil || !ok {
		t.Fatalf("accept: ok=%v err=%v", ok, err)
	}
	ok, err = m.AcceptRequest(ctx, "e1", "a2")
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if ok {
		t.Fatal("second accept must fail the swap")
	}
	got, _ := m.GetRequest(ctx, "e1")
	if got.AmbulanceID != "a1" {
		t.Fatalf("binding overwritten: %+v", got)
	}
}

func TestLatestForPatientOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, id := range []string{"e1", "e2", "e3"} {
		r := models.EmergencyRequest{ID: id, PatientID: "p1", Status: models.StatusPending}
		if err := m.CreateRequest(ctx, &r); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	got, ok, err := m.LatestForPatient(ctx, "p1")
	if err != nil || !ok {
		t.Fatalf("latest: ok=%v err=%v", ok, err)
	}
	if got.ID != "e3" {
		t.Fatalf("expected e3, got %s", got.ID)
	}
	if _, ok, _ := m.LatestForPatient(ctx, "p2"); ok {
		t.Fatal("expected no requests for p2")
	}
}

func TestUniqueKeysConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	u := models.User{ID: "u1", Name: "Asha", Phone: "111"}
	if err := m.CreateUser(ctx, &u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	dup := models.User{ID: "u2", Name: "Other", Phone: "111"}
	if err := m.CreateUser(ctx, &dup); !fault.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
}
