package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"travelbook/entity"
	"travelbook/log"
	"travelbook/metrics"
)

type reserveOutcome int

const (
	reserveOK reserveOutcome = iota
	reserveFailed
	reserveUnknown
)

// resumeAtReserve runs the saga from the reservation step: flight first,
// hotel second, compensation on failure, CONFIRMED persist on success.
// Safe to re-enter; a booking that already reached a terminal state is
// returned as is. Both BookAndPay and Reconcile land here.
func (c *Coordinator) resumeAtReserve(ctx context.Context, bookingID string) (entity.Booking, error) {
	logger := log.FromContext(ctx).WithField("booking_id", bookingID)

	booking, err := c.repo.GetByID(ctx, bookingID)
	if err != nil {
		return entity.Booking{}, err
	}
	if booking.Status != entity.BookingStatusPending {
		return booking, nil
	}

	payment, ok := booking.ApprovedPayment()
	if !ok {
		return entity.Booking{}, fmt.Errorf("booking %s is pending without an approved payment", bookingID)
	}

	traveler := entity.TravelerDetails{
		Name:  booking.HolderName,
		Email: booking.HolderEmail,
		Phone: booking.HolderPhone,
	}

	var flightExternalID string
	if booking.Flight != nil {
		externalID, outcome, reserveErr := c.reserveLeg(ctx, c.flights, booking.Flight.LegID, booking.Flight.OfferRef, traveler)
		switch outcome {
		case reserveOK:
			flightExternalID = externalID
		case reserveUnknown:
			return c.reservationUnknown(ctx, booking, "flight", reserveErr)
		case reserveFailed:
			logger.WithError(reserveErr).Info("flight reservation failed, compensating")
			return c.failReservation(ctx, booking, payment, failedReservation{
				reason:    "flight reservation failed",
				cause:     reserveErr,
				flightLeg: entity.LegStatusCancelled,
				hotelLeg:  entity.LegStatusCancelled,
			})
		}
	}

	var hotelExternalID string
	if booking.Hotel != nil {
		externalID, outcome, reserveErr := c.reserveLeg(ctx, c.hotels, booking.Hotel.LegID, booking.Hotel.OfferRef, traveler)
		switch outcome {
		case reserveOK:
			hotelExternalID = externalID
		case reserveUnknown:
			return c.reservationUnknown(ctx, booking, "hotel", reserveErr)
		case reserveFailed:
			logger.WithError(reserveErr).Info("hotel reservation failed, compensating")

			failed := failedReservation{
				reason:           "hotel reservation failed",
				cause:            reserveErr,
				flightLeg:        entity.LegStatusCancelled,
				hotelLeg:         entity.LegStatusCancelled,
				flightExternalID: flightExternalID,
			}
			if flightExternalID != "" {
				// The flight already went through; undo it best-effort.
				// A failed supplier cancel never blocks the refund, it
				// leaves the leg PENDING for an operator.
				metrics.CompensationsIssued.With(prometheus.Labels{"action": "supplier_cancel"}).Inc()
				if cancelErr := c.flights.CancelReservation(ctx, flightExternalID); cancelErr != nil {
					logger.WithError(cancelErr).Error("could not cancel flight reservation during compensation")
					c.raiseAlert(ctx, booking.BookingID, "supplier_cancel_failed",
						fmt.Sprintf("flight reservation %s could not be cancelled: %v", flightExternalID, cancelErr))
					failed.flightLeg = entity.LegStatusPending
				}
			}
			return c.failReservation(ctx, booking, payment, failed)
		}
	}

	return c.confirm(ctx, booking.BookingID, flightExternalID, hotelExternalID)
}

// reserveLeg creates one reservation. The caller-generated leg id doubles
// as the supplier-side reservation reference, so a timed-out create can
// be resolved with a status lookup instead of guessing.
func (c *Coordinator) reserveLeg(
	ctx context.Context,
	gw SupplierGateway,
	legID string,
	offerRef string,
	traveler entity.TravelerDetails,
) (string, reserveOutcome, error) {
	externalID, err := gw.CreateReservation(ctx, legID, offerRef, traveler)
	if err == nil {
		return externalID, reserveOK, nil
	}

	if entity.GatewayErrorKindOf(err) != entity.GatewayTimeout {
		return "", reserveFailed, err
	}

	status, statusErr := gw.GetReservation(ctx, legID)
	if statusErr != nil {
		return "", reserveUnknown, err
	}

	switch status {
	case entity.ReservationStatusConfirmed:
		return legID, reserveOK, nil
	case entity.ReservationStatusNotFound:
		return "", reserveFailed, err
	default:
		return "", reserveUnknown, err
	}
}

// reservationUnknown stops the saga without compensating: money moved and
// a reservation may exist, so only an operator may decide. The booking
// stays PENDING.
func (c *Coordinator) reservationUnknown(ctx context.Context, booking entity.Booking, leg string, cause error) (entity.Booking, error) {
	c.raiseAlert(ctx, booking.BookingID, "unknown_reservation_outcome",
		fmt.Sprintf("%s reservation outcome unknown after timeout: %v", leg, cause))

	metrics.BookingsCompleted.With(prometheus.Labels{"result": "unknown_outcome"}).Inc()

	return booking, entity.NewBookingError(entity.CodeUnknownOutcome,
		leg+" reservation outcome unknown, queued for operator", cause)
}

type failedReservation struct {
	reason string
	cause  error

	flightLeg        entity.LegStatus
	hotelLeg         entity.LegStatus
	flightExternalID string
}

// failReservation compensates a reservation failure with a full refund
// and records the terminal CANCELLED state. The refund row is persisted
// together with the transition, before any money moves.
func (c *Coordinator) failReservation(
	ctx context.Context,
	booking entity.Booking,
	payment entity.Payment,
	failed failedReservation,
) (entity.Booking, error) {
	refund := newPendingRefund(booking.BookingID, payment, payment.Amount, failed.reason)

	now := time.Now().UTC()
	updated, err := c.updateWithRetry(ctx, booking.BookingID, func(b entity.Booking) (entity.Booking, []any, error) {
		if b.Status != entity.BookingStatusPending {
			return b, nil, nil
		}

		b.Status = entity.BookingStatusCancelled
		b.CancelReason = failed.reason
		b.CancelledAt = &now

		if b.Flight != nil {
			b.Flight.Status = failed.flightLeg
			b.Flight.ExternalID = failed.flightExternalID
		}
		if b.Hotel != nil {
			b.Hotel.Status = failed.hotelLeg
		}

		b.Refunds = append(b.Refunds, refund)

		return b, nil, nil
	})
	if err != nil {
		return entity.Booking{}, err
	}

	metrics.BookingsCompleted.With(prometheus.Labels{"result": "reservation_failed"}).Inc()

	// A concurrent writer may have taken the booking terminal first; the
	// refund belongs to whoever recorded it.
	var refundErr error
	if hasRefund(updated, refund.RefundID) {
		_, refundErr = c.settleRefund(ctx, updated, payment, refund)
	}

	if refundErr != nil {
		return entity.Booking{}, entity.NewBookingError(entity.CodePartialCompensation,
			failed.reason+"; refund failed and was queued for an operator", refundErr)
	}

	return entity.Booking{}, entity.NewBookingError(entity.CodeReservationFailed,
		failed.reason+"; payment refunded in full", failed.cause)
}

// newPendingRefund builds the refund row that must be persisted on the
// aggregate before the gateway is called. Its id doubles as the gateway
// idempotency key.
func newPendingRefund(bookingID string, payment entity.Payment, amount decimal.Decimal, reason string) entity.Refund {
	return entity.Refund{
		RefundID:  uuid.NewString(),
		BookingID: bookingID,
		PaymentID: payment.PaymentID,
		Amount:    amount,
		Currency:  payment.Currency,
		Status:    entity.RefundStatusPending,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

func hasRefund(b entity.Booking, refundID string) bool {
	for _, r := range b.Refunds {
		if r.RefundID == refundID {
			return true
		}
	}
	return false
}

// settleRefund executes an already-persisted PENDING refund against the
// gateway and records the outcome in a second update. A crash between
// the two updates leaves the PENDING row in place, which keeps the
// amount reserved and hands completion to an operator.
func (c *Coordinator) settleRefund(
	ctx context.Context,
	booking entity.Booking,
	payment entity.Payment,
	refund entity.Refund,
) (entity.Booking, error) {
	metrics.CompensationsIssued.With(prometheus.Labels{"action": "refund"}).Inc()

	outcome := entity.RefundStatusPending
	var externalRefundID string
	var gatewayErr error

	result, err := c.payments.Refund(ctx, payment.ExternalID, refund.Amount, refund.Reason, refund.RefundID)
	switch {
	case err != nil:
		outcome = entity.RefundStatusFailed
		gatewayErr = err
		c.raiseAlert(ctx, booking.BookingID, "refund_failed",
			fmt.Sprintf("refund of %s %s for payment %s failed: %v", refund.Amount.StringFixedBank(2), refund.Currency, payment.ExternalID, err))

	default:
		externalRefundID = result.ExternalRefundID
		switch result.Status {
		case entity.RefundStatusCompleted:
			outcome = entity.RefundStatusCompleted
		case entity.RefundStatusFailed:
			outcome = entity.RefundStatusFailed
			gatewayErr = fmt.Errorf("gateway reported refund %s as failed", result.ExternalRefundID)
			c.raiseAlert(ctx, booking.BookingID, "refund_failed",
				fmt.Sprintf("refund %s for payment %s reported FAILED by the gateway", result.ExternalRefundID, payment.ExternalID))
		default:
			// PENDING gateway-side; the row stays PENDING and keeps the
			// amount reserved.
		}
	}

	now := time.Now().UTC()
	updated, err := c.updateWithRetry(ctx, booking.BookingID, func(b entity.Booking) (entity.Booking, []any, error) {
		for i, r := range b.Refunds {
			if r.RefundID != refund.RefundID || r.Status != entity.RefundStatusPending {
				continue
			}

			b.Refunds[i].Status = outcome
			b.Refunds[i].ExternalID = externalRefundID

			var events []any
			if outcome == entity.RefundStatusCompleted {
				b.Refunds[i].CompletedAt = &now
				events = append(events, entity.RefundCompleted_v1{
					Header:    entity.NewEventHeaderWithIdempotencyKey(refund.RefundID),
					BookingID: b.BookingID,
					RefundID:  refund.RefundID,
					PaymentID: payment.PaymentID,
					Amount:    refund.Amount,
					Currency:  refund.Currency,
				})

				for j, p := range b.Payments {
					if p.PaymentID != payment.PaymentID {
						continue
					}
					if b.RefundedTotal().GreaterThanOrEqual(p.Amount) && p.CanTransitionTo(entity.PaymentStatusRefunded) {
						b.Payments[j].Status = entity.PaymentStatusRefunded
					}
				}
			}

			return b, events, nil
		}

		return b, nil, nil
	})
	if err != nil {
		if outcome == entity.RefundStatusCompleted {
			// Money moved but the outcome is not recorded. The PENDING
			// row blocks a second refund; an operator must complete it.
			c.raiseAlert(ctx, booking.BookingID, "refund_persist_failed",
				fmt.Sprintf("refund %s completed at the gateway but its outcome could not be recorded: %v", refund.RefundID, err))
		}
		return booking, fmt.Errorf("could not record outcome of refund %s: %w", refund.RefundID, err)
	}

	return updated, gatewayErr
}

// confirm persists the terminal CONFIRMED state in one transaction. The
// reservations already stand, so a persistence failure must end up with
// an operator instead of a re-charge or re-reserve.
func (c *Coordinator) confirm(ctx context.Context, bookingID, flightExternalID, hotelExternalID string) (entity.Booking, error) {
	booking, err := c.updateWithRetry(ctx, bookingID, func(b entity.Booking) (entity.Booking, []any, error) {
		if b.Status != entity.BookingStatusPending {
			return b, nil, nil
		}

		b.Status = entity.BookingStatusConfirmed
		if b.Flight != nil {
			b.Flight.ExternalID = flightExternalID
			b.Flight.Status = entity.LegStatusConfirmed
		}
		if b.Hotel != nil {
			b.Hotel.ExternalID = hotelExternalID
			b.Hotel.Status = entity.LegStatusConfirmed
		}

		return b, []any{entity.BookingConfirmed_v1{
			Header:      entity.NewEventHeaderWithIdempotencyKey(flightExternalID + hotelExternalID),
			BookingID:   b.BookingID,
			BookingType: b.Type,
			HolderEmail: b.HolderEmail,
			TotalAmount: b.TotalAmount,
			Currency:    b.Currency,
		}}, nil
	})
	if err != nil {
		c.raiseAlert(ctx, bookingID, "confirm_persist_failed",
			fmt.Sprintf("reservations stand (flight=%s hotel=%s) but the CONFIRMED state could not be persisted: %v",
				flightExternalID, hotelExternalID, err))
		return entity.Booking{}, err
	}

	metrics.BookingsCompleted.With(prometheus.Labels{"result": "confirmed"}).Inc()

	return booking, nil
}

// raiseAlert puts an entry on the operator queue. Alert persistence
// failures are logged, never propagated; an alert must not fail the
// operation it reports on.
func (c *Coordinator) raiseAlert(ctx context.Context, bookingID, kind, detail string) {
	metrics.OpsAlertsRaised.With(prometheus.Labels{"kind": kind}).Inc()

	if err := c.opsAlerts.Add(ctx, bookingID, kind, detail); err != nil {
		log.FromContext(ctx).
			WithField("booking_id", bookingID).
			WithField("kind", kind).
			WithError(err).
			Error("could not persist operator alert")
	}
}
