package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"travelbook/entity"
	"travelbook/log"
)

type CancellationResult struct {
	Booking entity.Booking

	RefundIssued bool
	RefundAmount decimal.Decimal

	// FailedSupplierCancels names legs whose supplier-side cancellation
	// failed and went to the operator queue.
	FailedSupplierCancels []string
}

// CancelBooking cancels a CONFIRMED booking: best-effort supplier
// cancellation per leg, local CANCELLED transition, refund of the
// caller-computed amount. A supplier refusing to cancel never blocks the
// customer-facing cancellation.
//
// refundAmount comes from the cancellation-policy calculation done by
// the caller; it is validated here, not recomputed.
func (c *Coordinator) CancelBooking(ctx context.Context, bookingID string, refundAmount decimal.Decimal, reason string) (CancellationResult, error) {
	logger := log.FromContext(ctx).WithField("booking_id", bookingID)

	booking, err := c.repo.GetByID(ctx, bookingID)
	if err != nil {
		return CancellationResult{}, err
	}

	switch booking.Status {
	case entity.BookingStatusCancelled:
		return CancellationResult{}, entity.NewBookingError(entity.CodeInvalidRequest,
			fmt.Sprintf("booking %s is already cancelled", bookingID), nil)
	case entity.BookingStatusPending:
		return CancellationResult{}, entity.NewBookingError(entity.CodeInvalidRequest,
			fmt.Sprintf("booking %s is not confirmed yet", bookingID), nil)
	}

	payment, ok := booking.ApprovedPayment()
	if !ok {
		return CancellationResult{}, fmt.Errorf("confirmed booking %s has no approved payment", bookingID)
	}

	if refundAmount.IsNegative() {
		return CancellationResult{}, entity.NewBookingError(entity.CodeInvalidRequest,
			"refund amount must not be negative", nil)
	}
	refundable := payment.Amount.Sub(booking.OutstandingRefundTotal())
	if refundAmount.GreaterThan(refundable) {
		return CancellationResult{}, entity.NewBookingError(entity.CodeInvalidRequest,
			fmt.Sprintf("refund amount %s exceeds the refundable %s", refundAmount.StringFixedBank(2), refundable.StringFixedBank(2)), nil)
	}

	// Supplier cancellations are independent per leg; one leg failing
	// never prevents the other leg or the refund.
	var failedCancels []string
	flightLeg, hotelLeg := entity.LegStatusCancelled, entity.LegStatusCancelled
	if booking.Flight != nil && booking.Flight.ExternalID != "" {
		if err := c.flights.CancelReservation(ctx, booking.Flight.ExternalID); err != nil {
			logger.WithError(err).Error("flight supplier cancellation failed")
			c.raiseAlert(ctx, bookingID, "supplier_cancel_failed",
				fmt.Sprintf("flight reservation %s could not be cancelled: %v", booking.Flight.ExternalID, err))
			failedCancels = append(failedCancels, "flight")
			flightLeg = booking.Flight.Status
		}
	}
	if booking.Hotel != nil && booking.Hotel.ExternalID != "" {
		if err := c.hotels.CancelReservation(ctx, booking.Hotel.ExternalID); err != nil {
			logger.WithError(err).Error("hotel supplier cancellation failed")
			c.raiseAlert(ctx, bookingID, "supplier_cancel_failed",
				fmt.Sprintf("hotel reservation %s could not be cancelled: %v", booking.Hotel.ExternalID, err))
			failedCancels = append(failedCancels, "hotel")
			hotelLeg = booking.Hotel.Status
		}
	}

	// The CANCELLED transition and the PENDING refund row are persisted
	// in one version-checked update before any money moves. A concurrent
	// cancel loses the version check, re-reads the CANCELLED state and
	// stops here; it can never reach the gateway.
	refund := newPendingRefund(bookingID, payment, refundAmount, reason)

	now := time.Now().UTC()
	updated, err := c.updateWithRetry(ctx, bookingID, func(b entity.Booking) (entity.Booking, []any, error) {
		if b.Status != entity.BookingStatusConfirmed {
			return b, nil, entity.NewBookingError(entity.CodeInvalidRequest,
				fmt.Sprintf("booking %s is no longer confirmed", bookingID), nil)
		}

		refundable := payment.Amount.Sub(b.OutstandingRefundTotal())
		if refundAmount.GreaterThan(refundable) {
			return b, nil, entity.NewBookingError(entity.CodeInvalidRequest,
				fmt.Sprintf("refund amount %s exceeds the refundable %s", refundAmount.StringFixedBank(2), refundable.StringFixedBank(2)), nil)
		}

		b.Status = entity.BookingStatusCancelled
		b.CancelReason = reason
		b.CancelledAt = &now

		if b.Flight != nil {
			b.Flight.Status = flightLeg
		}
		if b.Hotel != nil {
			b.Hotel.Status = hotelLeg
		}

		if refundAmount.IsPositive() {
			b.Refunds = append(b.Refunds, refund)
		}

		return b, []any{entity.BookingCancelled_v1{
			Header:      entity.NewEventHeaderWithIdempotencyKey(b.BookingID + ":cancelled"),
			BookingID:   b.BookingID,
			HolderEmail: b.HolderEmail,
			Reason:      reason,
		}}, nil
	})
	if err != nil {
		return CancellationResult{}, err
	}

	var refundErr error
	if refundAmount.IsPositive() {
		updated, refundErr = c.settleRefund(ctx, updated, payment, refund)
	}

	result := CancellationResult{
		Booking:               updated,
		RefundIssued:          refundAmount.IsPositive() && refundErr == nil,
		RefundAmount:          refundAmount,
		FailedSupplierCancels: failedCancels,
	}

	if refundErr != nil {
		return result, entity.NewBookingError(entity.CodePartialCompensation,
			"booking cancelled but the refund failed and was queued for an operator", refundErr)
	}

	return result, nil
}
