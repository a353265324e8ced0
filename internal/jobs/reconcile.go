package jobs

import (
	"context"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"craftly/marketplace/internal/model"
)

var reconcileRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reconcile_repairs_total",
	Help: "Settlements repaired by the background reconcile job.",
})

// Store is the slice of the storage gateway the reconcile job drives.
type Store interface {
	ListUnsettledPayments(ctx context.Context, limit int) ([]model.Payment, error)
	DeleteEnrollment(ctx context.Context, enrollmentID string) (bool, error)
	AdjustClassSeats(ctx context.Context, classID string) (bool, error)
}

// StartReconcileJob re-drives settlements whose payment landed but whose
// enrollment removal or seat adjustment did not. Each tick runs under its
// own timeout so a stuck storage call cannot wedge the loop.
func StartReconcileJob(ctx context.Context, store Store, interval, timeout time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tickCtx, cancel := context.WithTimeout(context.Background(), timeout)
				runReconcilePass(tickCtx, store)
				cancel()
			}
		}
	}()
}

func runReconcilePass(ctx context.Context, store Store) {
	payments, err := store.ListUnsettledPayments(ctx, 100)
	if err != nil {
		log.Printf("reconcile: list unsettled payments: %v", err)
		return
	}

	for _, payment := range payments {
		removed, err := store.DeleteEnrollment(ctx, payment.EnrollmentID)
		if err != nil {
			log.Printf("reconcile: delete enrollment %s: %v", payment.EnrollmentID, err)
			continue
		}
		if !removed {
			// Another settlement attempt got here first.
			continue
		}

		adjusted, err := store.AdjustClassSeats(ctx, payment.ClassID)
		if err != nil {
			log.Printf("reconcile: adjust seats for class %s: %v", payment.ClassID, err)
			continue
		}
		if !adjusted {
			log.Printf("reconcile: class %s has no seats for payment %s", payment.ClassID, payment.ID)
			continue
		}

		reconcileRepairsTotal.Inc()
		log.Printf("reconcile: repaired settlement for payment %s", payment.ID)
	}
}
