package saga

import (
	"context"
	"time"

	"travelbook/log"
)

type stalePaymentsLister interface {
	ListStalePendingPayments(ctx context.Context, cutoff time.Time) ([]string, error)
}

// ReconciliationWorker is the poll-driven fallback for payments whose
// webhook never arrived: every interval it reconciles payments that have
// been PENDING longer than staleAfter.
type ReconciliationWorker struct {
	coordinator *Coordinator
	payments    stalePaymentsLister

	interval   time.Duration
	staleAfter time.Duration
}

func NewReconciliationWorker(
	coordinator *Coordinator,
	payments stalePaymentsLister,
	interval time.Duration,
	staleAfter time.Duration,
) *ReconciliationWorker {
	if coordinator == nil {
		panic("missing coordinator")
	}
	if payments == nil {
		panic("missing payments lister")
	}

	return &ReconciliationWorker{
		coordinator: coordinator,
		payments:    payments,
		interval:    interval,
		staleAfter:  staleAfter,
	}
}

// Run blocks until ctx is cancelled.
func (w *ReconciliationWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ReconciliationWorker) tick(ctx context.Context) {
	logger := log.FromContext(ctx)

	externalIDs, err := w.payments.ListStalePendingPayments(ctx, time.Now().UTC().Add(-w.staleAfter))
	if err != nil {
		logger.WithError(err).Error("could not list stale pending payments")
		return
	}

	for _, externalID := range externalIDs {
		if err := w.coordinator.Reconcile(ctx, externalID); err != nil {
			logger.WithField("external_payment_id", externalID).
				WithError(err).
				Error("payment reconciliation failed")
		}
	}
}
