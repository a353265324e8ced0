package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"craftly/marketplace/internal/model"
)

type fakeStore struct {
	mu          sync.Mutex
	unsettled   []model.Payment
	enrollments map[string]bool
	seats       map[string]int32
	listErr     error
}

func (f *fakeStore) ListUnsettledPayments(_ context.Context, _ int) ([]model.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Payment, len(f.unsettled))
	copy(out, f.unsettled)
	return out, nil
}

func (f *fakeStore) DeleteEnrollment(_ context.Context, enrollmentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.enrollments[enrollmentID] {
		return false, nil
	}
	delete(f.enrollments, enrollmentID)
	return true, nil
}

func (f *fakeStore) AdjustClassSeats(_ context.Context, classID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seats[classID] <= 0 {
		return false, nil
	}
	f.seats[classID]--
	return true, nil
}

func TestReconcilePassRepairsStalledSettlement(t *testing.T) {
	store := &fakeStore{
		unsettled: []model.Payment{{
			ID:           "pay-1",
			ClassID:      "class-1",
			EnrollmentID: "enroll-1",
			CreatedAt:    time.Now().UTC(),
		}},
		enrollments: map[string]bool{"enroll-1": true},
		seats:       map[string]int32{"class-1": 3},
	}

	runReconcilePass(context.Background(), store)

	if store.enrollments["enroll-1"] {
		t.Fatal("enrollment not removed")
	}
	if store.seats["class-1"] != 2 {
		t.Fatalf("seats = %d, want 2", store.seats["class-1"])
	}
}

func TestReconcilePassSkipsAlreadyRemovedEnrollments(t *testing.T) {
	store := &fakeStore{
		unsettled: []model.Payment{{
			ID:           "pay-1",
			ClassID:      "class-1",
			EnrollmentID: "enroll-1",
		}},
		enrollments: map[string]bool{},
		seats:       map[string]int32{"class-1": 3},
	}

	runReconcilePass(context.Background(), store)

	if store.seats["class-1"] != 3 {
		t.Fatalf("seats = %d, want untouched 3", store.seats["class-1"])
	}
}

func TestReconcilePassToleratesListFailure(t *testing.T) {
	store := &fakeStore{listErr: errors.New("storage down")}
	runReconcilePass(context.Background(), store)
}
