package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"travelbook/entity"
	"travelbook/log"
	"travelbook/metrics"
)

// Reconcile converges the local payment state with the gateway's truth.
// Both the webhook endpoint and the poll worker funnel into this one
// operation; it is idempotent, re-applying an already-observed status is
// a no-op.
func (c *Coordinator) Reconcile(ctx context.Context, externalPaymentID string) error {
	logger := log.FromContext(ctx).WithField("external_payment_id", externalPaymentID)

	booking, err := c.repo.GetByExternalPaymentID(ctx, externalPaymentID)
	if err != nil {
		return fmt.Errorf("could not find booking for payment %s: %w", externalPaymentID, err)
	}

	var payment entity.Payment
	for _, p := range booking.Payments {
		if p.ExternalID == externalPaymentID {
			payment = p
			break
		}
	}
	if payment.PaymentID == "" {
		return fmt.Errorf("booking %s does not carry payment %s", booking.BookingID, externalPaymentID)
	}

	gatewayStatus, err := c.payments.GetStatus(ctx, externalPaymentID)
	if err != nil {
		return fmt.Errorf("could not fetch gateway status for payment %s: %w", externalPaymentID, err)
	}

	if gatewayStatus == payment.Status {
		// An approved payment on a still-PENDING booking is not settled:
		// a crash after recording the approval strands the booking with
		// its reservations never attempted. That one case falls through
		// so the saga resumes.
		resumable := gatewayStatus == entity.PaymentStatusApproved && booking.Status == entity.BookingStatusPending
		if !resumable {
			metrics.ReconciliationsApplied.With(prometheus.Labels{"outcome": "unchanged"}).Inc()
			return nil
		}
	}

	logger = logger.
		WithField("booking_id", booking.BookingID).
		WithField("local_status", payment.Status).
		WithField("gateway_status", gatewayStatus)

	switch gatewayStatus {
	case entity.PaymentStatusApproved:
		return c.reconcileApproved(ctx, logger, booking, payment)

	case entity.PaymentStatusRejected, entity.PaymentStatusCancelled:
		return c.reconcileDeclined(ctx, logger, booking, payment, gatewayStatus)

	case entity.PaymentStatusRefunded:
		// Refunds originate locally; a gateway-initiated one is a
		// chargeback an operator has to look at.
		c.raiseAlert(ctx, booking.BookingID, "unexpected_gateway_refund",
			fmt.Sprintf("gateway reports payment %s as refunded without a local refund", externalPaymentID))
		metrics.ReconciliationsApplied.With(prometheus.Labels{"outcome": "alerted"}).Inc()
		return nil

	default:
		// Still pending gateway-side; nothing to converge.
		metrics.ReconciliationsApplied.With(prometheus.Labels{"outcome": "unchanged"}).Inc()
		return nil
	}
}

// reconcileApproved records the approval and, when the booking never got
// its reservations, resumes the saga at the reserve step. This is the
// only path that turns a charge-timeout booking into a confirmed one;
// it never charges again.
func (c *Coordinator) reconcileApproved(ctx context.Context, logger *logrus.Entry, booking entity.Booking, payment entity.Payment) error {
	updated, err := c.updateWithRetry(ctx, booking.BookingID, func(b entity.Booking) (entity.Booking, []any, error) {
		for i, p := range b.Payments {
			if p.PaymentID != payment.PaymentID {
				continue
			}
			if p.Status == entity.PaymentStatusApproved {
				return b, nil, nil
			}
			if !p.CanTransitionTo(entity.PaymentStatusApproved) {
				return b, nil, fmt.Errorf("payment %s cannot move from %s to APPROVED", p.PaymentID, p.Status)
			}
			b.Payments[i].Status = entity.PaymentStatusApproved
		}
		return b, nil, nil
	})
	if err != nil {
		return err
	}

	if updated.Status != entity.BookingStatusPending {
		metrics.ReconciliationsApplied.With(prometheus.Labels{"outcome": "applied"}).Inc()
		return nil
	}

	logger.Info("payment approved, resuming booking at the reserve step")
	metrics.ReconciliationsApplied.With(prometheus.Labels{"outcome": "resumed"}).Inc()

	_, err = c.resumeAtReserve(ctx, booking.BookingID)
	return err
}

// reconcileDeclined records the terminal gateway decision and surfaces
// it to the operator queue. No booking is ever created or kept alive
// without an approved payment.
func (c *Coordinator) reconcileDeclined(
	ctx context.Context,
	logger *logrus.Entry,
	booking entity.Booking,
	payment entity.Payment,
	gatewayStatus entity.PaymentStatus,
) error {
	now := time.Now().UTC()
	_, err := c.updateWithRetry(ctx, booking.BookingID, func(b entity.Booking) (entity.Booking, []any, error) {
		changed := false
		for i, p := range b.Payments {
			if p.PaymentID != payment.PaymentID {
				continue
			}
			if p.Status == gatewayStatus {
				return b, nil, nil
			}
			if !p.CanTransitionTo(gatewayStatus) {
				return b, nil, fmt.Errorf("payment %s cannot move from %s to %s", p.PaymentID, p.Status, gatewayStatus)
			}
			b.Payments[i].Status = gatewayStatus
			changed = true
		}
		if !changed {
			return b, nil, nil
		}

		if b.Status == entity.BookingStatusPending {
			b.Status = entity.BookingStatusCancelled
			b.CancelReason = "payment " + string(gatewayStatus) + " by gateway"
			b.CancelledAt = &now
		}

		return b, nil, nil
	})
	if err != nil {
		return err
	}

	logger.Info("gateway declined the payment")
	c.raiseAlert(ctx, booking.BookingID, "payment_declined",
		fmt.Sprintf("gateway reports payment %s as %s", payment.ExternalID, gatewayStatus))
	metrics.ReconciliationsApplied.With(prometheus.Labels{"outcome": "alerted"}).Inc()

	return nil
}
