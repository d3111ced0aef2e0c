package saga

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelbook/entity"
)

func confirmedBooking(t *testing.T, f *fixture) entity.Booking {
	t.Helper()

	booking, err := f.coordinator.BookAndPay(context.Background(), packageRequest(t))
	require.NoError(t, err)
	require.Equal(t, entity.BookingStatusConfirmed, booking.Status)
	return booking
}

func TestCancelBooking_FullRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := confirmedBooking(t, f)

	result, err := f.coordinator.CancelBooking(ctx, booking.BookingID, dec(t, "1000.00"), "customer request")
	require.NoError(t, err)

	assert.Equal(t, entity.BookingStatusCancelled, result.Booking.Status)
	assert.Equal(t, "customer request", result.Booking.CancelReason)
	assert.NotNil(t, result.Booking.CancelledAt)
	assert.True(t, result.RefundIssued)

	assert.Equal(t, entity.LegStatusCancelled, result.Booking.Flight.Status)
	assert.Equal(t, entity.LegStatusCancelled, result.Booking.Hotel.Status)
	require.Len(t, f.flights.CancelCalls, 1)
	require.Len(t, f.hotels.CancelCalls, 1)

	require.Len(t, f.payments.Refunds, 1)
	assert.True(t, f.payments.Refunds[0].Amount.Equal(dec(t, "1000.00")))

	assert.Equal(t, entity.PaymentStatusRefunded, result.Booking.Payments[0].Status,
		"a full refund flips the payment to REFUNDED")
	require.Len(t, result.Booking.Refunds, 1)
	assert.Equal(t, entity.RefundStatusCompleted, result.Booking.Refunds[0].Status)

	var cancelled, refunded bool
	for _, event := range f.repo.Events {
		switch event.(type) {
		case entity.BookingCancelled_v1:
			cancelled = true
		case entity.RefundCompleted_v1:
			refunded = true
		}
	}
	assert.True(t, cancelled)
	assert.True(t, refunded)
}

func TestCancelBooking_PartialRefundKeepsPaymentApproved(t *testing.T) {
	f := newFixture(t)
	booking := confirmedBooking(t, f)

	result, err := f.coordinator.CancelBooking(context.Background(), booking.BookingID, dec(t, "400.00"), "late cancellation, penalty applied")
	require.NoError(t, err)

	assert.Equal(t, entity.BookingStatusCancelled, result.Booking.Status)
	assert.Equal(t, entity.PaymentStatusApproved, result.Booking.Payments[0].Status,
		"a partial refund leaves the payment APPROVED with the refund attached")
	require.Len(t, result.Booking.Refunds, 1)
	assert.True(t, result.Booking.Refunds[0].Amount.Equal(dec(t, "400.00")))
}

func TestCancelBooking_ZeroRefundSkipsGateway(t *testing.T) {
	f := newFixture(t)
	booking := confirmedBooking(t, f)

	result, err := f.coordinator.CancelBooking(context.Background(), booking.BookingID, dec(t, "0"), "inside penalty window")
	require.NoError(t, err)

	assert.Equal(t, entity.BookingStatusCancelled, result.Booking.Status)
	assert.False(t, result.RefundIssued)
	assert.Empty(t, f.payments.Refunds)
	assert.Empty(t, result.Booking.Refunds)
}

func TestCancelBooking_AlreadyCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := confirmedBooking(t, f)

	_, err := f.coordinator.CancelBooking(ctx, booking.BookingID, dec(t, "1000.00"), "customer request")
	require.NoError(t, err)

	callsBefore := len(f.calls.Calls())

	_, err = f.coordinator.CancelBooking(ctx, booking.BookingID, dec(t, "1000.00"), "customer request")
	require.Error(t, err)
	assert.Equal(t, entity.CodeInvalidRequest, entity.BookingErrorCodeOf(err))

	assert.Equal(t, callsBefore, len(f.calls.Calls()),
		"cancelling an already-cancelled booking performs zero gateway calls")
}

func TestCancelBooking_PendingRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.payments.ChargeErr = entity.NewGatewayError(entity.GatewayTimeout, "payment.Charge", "deadline exceeded")
	booking, err := f.coordinator.BookAndPay(ctx, packageRequest(t))
	require.Error(t, err)

	_, err = f.coordinator.CancelBooking(ctx, booking.BookingID, dec(t, "0"), "changed my mind")
	require.Error(t, err)
	assert.Equal(t, entity.CodeInvalidRequest, entity.BookingErrorCodeOf(err))
}

func TestCancelBooking_RefundAmountValidation(t *testing.T) {
	f := newFixture(t)
	booking := confirmedBooking(t, f)

	_, err := f.coordinator.CancelBooking(context.Background(), booking.BookingID, dec(t, "1000.01"), "over-refund")
	require.Error(t, err)
	assert.Equal(t, entity.CodeInvalidRequest, entity.BookingErrorCodeOf(err))

	_, err = f.coordinator.CancelBooking(context.Background(), booking.BookingID, dec(t, "-1"), "negative")
	require.Error(t, err)
	assert.Equal(t, entity.CodeInvalidRequest, entity.BookingErrorCodeOf(err))
}

func TestCancelBooking_SupplierFailureNeverBlocksCancellation(t *testing.T) {
	f := newFixture(t)
	booking := confirmedBooking(t, f)

	f.flights.CancelErr = entity.NewGatewayError(entity.GatewaySupplierDown, "flight.CancelReservation", "supplier down")

	result, err := f.coordinator.CancelBooking(context.Background(), booking.BookingID, dec(t, "1000.00"), "customer request")
	require.NoError(t, err)

	assert.Equal(t, entity.BookingStatusCancelled, result.Booking.Status)
	assert.Equal(t, []string{"flight"}, result.FailedSupplierCancels)
	assert.Equal(t, entity.LegStatusConfirmed, result.Booking.Flight.Status,
		"the un-cancelled leg keeps its supplier-side state for the operator")
	assert.Equal(t, entity.LegStatusCancelled, result.Booking.Hotel.Status,
		"one leg failing never prevents the other leg")

	require.Len(t, f.payments.Refunds, 1, "the refund is issued regardless")

	require.NotEmpty(t, f.ops.Alerts)
	assert.Equal(t, "supplier_cancel_failed", f.ops.Alerts[0].Kind)
}

func TestCancelBooking_RefundGatewayFailure(t *testing.T) {
	f := newFixture(t)
	booking := confirmedBooking(t, f)

	f.payments.RefundErr = entity.NewGatewayError(entity.GatewaySupplierDown, "payment.Refund", "processor down")

	result, err := f.coordinator.CancelBooking(context.Background(), booking.BookingID, dec(t, "1000.00"), "customer request")
	require.Error(t, err)
	assert.Equal(t, entity.CodePartialCompensation, entity.BookingErrorCodeOf(err))

	assert.Equal(t, entity.BookingStatusCancelled, result.Booking.Status,
		"the local cancellation stands even when the refund fails")
	assert.False(t, result.RefundIssued)
	require.Len(t, result.Booking.Refunds, 1)
	assert.Equal(t, entity.RefundStatusFailed, result.Booking.Refunds[0].Status)

	var kinds []string
	for _, a := range f.ops.Alerts {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, "refund_failed")
}

func TestCancelBooking_ConflictRetries(t *testing.T) {
	f := newFixture(t)
	booking := confirmedBooking(t, f)

	f.repo.FailUpdatesWithConflict = 2

	result, err := f.coordinator.CancelBooking(context.Background(), booking.BookingID, dec(t, "1000.00"), "customer request")
	require.NoError(t, err, "transient version conflicts are retried")
	assert.Equal(t, entity.BookingStatusCancelled, result.Booking.Status)
}

func TestCancelBooking_ConflictExhausted(t *testing.T) {
	f := newFixture(t)
	booking := confirmedBooking(t, f)

	f.repo.FailUpdatesWithConflict = conflictRetries

	_, err := f.coordinator.CancelBooking(context.Background(), booking.BookingID, dec(t, "1000.00"), "customer request")
	require.Error(t, err)
	assert.Equal(t, entity.CodeConcurrencyConflict, entity.BookingErrorCodeOf(err))
}

func TestCancelBooking_NoRefundWithoutPersistedCancellation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := confirmedBooking(t, f)

	f.repo.FailUpdatesWithConflict = conflictRetries

	_, err := f.coordinator.CancelBooking(ctx, booking.BookingID, dec(t, "1000.00"), "customer request")
	require.Error(t, err)
	assert.Equal(t, entity.CodeConcurrencyConflict, entity.BookingErrorCodeOf(err))

	assert.Empty(t, f.payments.Refunds,
		"no money moves before the cancellation and its refund row are recorded")

	stored, err := f.repo.GetByID(ctx, booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, stored.Status)
	assert.Empty(t, stored.Refunds)

	// The failed attempt reserved nothing, so the retry refunds the full
	// amount exactly once.
	result, err := f.coordinator.CancelBooking(ctx, booking.BookingID, dec(t, "1000.00"), "customer request")
	require.NoError(t, err)
	assert.True(t, result.RefundIssued)
	require.Len(t, f.payments.Refunds, 1)
	assert.True(t, f.payments.Refunds[0].Amount.Equal(dec(t, "1000.00")))
}

func TestCancelBooking_ConcurrentCancelsRefundOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := confirmedBooking(t, f)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.coordinator.CancelBooking(ctx, booking.BookingID, dec(t, "1000.00"), "customer request")
			errs <- err
		}()
	}

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			failures++
			assert.Equal(t, entity.CodeInvalidRequest, entity.BookingErrorCodeOf(err))
		}
	}

	assert.Equal(t, 1, failures, "exactly one of the two cancels wins")
	require.Len(t, f.payments.Refunds, 1, "the losing cancel never reaches the gateway")

	stored, err := f.repo.GetByID(ctx, booking.BookingID)
	require.NoError(t, err)
	require.Len(t, stored.Refunds, 1)
}

func TestCancelBooking_RefundOutcomePersistFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	booking := confirmedBooking(t, f)

	// The cancellation persists, the refund completes at the gateway, and
	// then recording the outcome keeps losing the version check.
	f.repo.SkipUpdatesBeforeConflict = 1
	f.repo.FailUpdatesWithConflict = conflictRetries

	result, err := f.coordinator.CancelBooking(ctx, booking.BookingID, dec(t, "1000.00"), "customer request")
	require.Error(t, err)
	assert.Equal(t, entity.CodePartialCompensation, entity.BookingErrorCodeOf(err))

	assert.Equal(t, entity.BookingStatusCancelled, result.Booking.Status)
	require.Len(t, f.payments.Refunds, 1)

	var kinds []string
	for _, a := range f.ops.Alerts {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, "refund_persist_failed")

	// The PENDING row keeps the amount reserved, so a retried cancel can
	// never refund the charge a second time.
	stored, err := f.repo.GetByID(ctx, booking.BookingID)
	require.NoError(t, err)
	require.Len(t, stored.Refunds, 1)
	assert.Equal(t, entity.RefundStatusPending, stored.Refunds[0].Status)

	_, err = f.coordinator.CancelBooking(ctx, booking.BookingID, dec(t, "1000.00"), "customer request")
	require.Error(t, err)
	assert.Equal(t, entity.CodeInvalidRequest, entity.BookingErrorCodeOf(err))
	require.Len(t, f.payments.Refunds, 1, "the charge is refunded at most once")
}
