// Package settlement converts a completed charge into a consumed seat:
// record the payment, remove the pending enrollment, move the class seat
// counters. The three steps are not one storage transaction, so the
// workflow leans entirely on conditional single-row primitives and
// reports each step's outcome separately.
package settlement

import (
	"context"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"craftly/marketplace/internal/model"
)

const (
	ErrPaymentFailed          = "payment_failed"
	ErrAlreadySettled         = "already_settled"
	ErrReconciliationRequired = "reconciliation_required"
)

type Error struct {
	Code string
}

func (e *Error) Error() string {
	return e.Code
}

// Store is the slice of the storage gateway the workflow drives. Each
// method is an atomic single-row operation whose bool reports whether a
// row actually changed.
type Store interface {
	RecordPayment(ctx context.Context, payment model.Payment) (bool, error)
	DeleteEnrollment(ctx context.Context, enrollmentID string) (bool, error)
	AdjustClassSeats(ctx context.Context, classID string) (bool, error)
}

// Result exposes the outcome of every step so a caller can detect a
// partial failure even when the call itself returns.
type Result struct {
	PaymentRecorded        bool
	EnrollmentRemoved      bool
	SeatsAdjusted          bool
	AlreadySettled         bool
	ReconciliationRequired bool
}

var settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "settlements_total",
	Help: "Settlement attempts by outcome.",
}, []string{"outcome"})

// Settle runs the workflow for one completed payment.
//
// Step 1 is the durability anchor: if recording the payment fails,
// nothing has changed and the caller may retry. Once it commits, the
// charge is economically final and steps 2-3 must run to completion even
// if the caller disconnects, so they execute with cancellation detached.
// Re-running with the same enrollment id is idempotent: the payment
// insert is keyed on it, and a consume that removes zero rows means the
// seat was already taken, never a second decrement.
func Settle(ctx context.Context, store Store, payment model.Payment) (Result, error) {
	var res Result

	inserted, err := store.RecordPayment(ctx, payment)
	if err != nil {
		settlementsTotal.WithLabelValues(ErrPaymentFailed).Inc()
		return res, &Error{Code: ErrPaymentFailed}
	}
	// Recorded reports whether this call created the record; a replay
	// finds it already there and must not count it as new.
	res.PaymentRecorded = inserted

	// The charge is durable. From here on, caller cancellation must not
	// strand it half-settled.
	ctx = context.WithoutCancel(ctx)

	removed, err := store.DeleteEnrollment(ctx, payment.EnrollmentID)
	if err != nil {
		return res, reconciliationRequired(&res, payment, "enrollment removal failed")
	}
	res.EnrollmentRemoved = removed

	if !removed {
		// Zero rows removed means a concurrent or earlier settlement
		// consumed the enrollment. Idempotent no-op, never a second
		// seat decrement.
		res.AlreadySettled = true
		settlementsTotal.WithLabelValues(ErrAlreadySettled).Inc()
		return res, &Error{Code: ErrAlreadySettled}
	}

	adjusted, err := store.AdjustClassSeats(ctx, payment.ClassID)
	if err != nil {
		return res, reconciliationRequired(&res, payment, "seat adjustment failed")
	}
	if !adjusted {
		return res, reconciliationRequired(&res, payment, "class missing or full")
	}
	res.SeatsAdjusted = true

	settlementsTotal.WithLabelValues("settled").Inc()
	return res, nil
}

func reconciliationRequired(res *Result, payment model.Payment, reason string) error {
	res.ReconciliationRequired = true
	settlementsTotal.WithLabelValues(ErrReconciliationRequired).Inc()
	log.Printf("settlement reconciliation required for enrollment %s (class %s): %s", payment.EnrollmentID, payment.ClassID, reason)
	return &Error{Code: ErrReconciliationRequired}
}
