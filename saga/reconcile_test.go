package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelbook/entity"
)

func TestReconcile_ChargeTimeoutResumedAtReserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.payments.ChargeErr = entity.NewGatewayError(entity.GatewayTimeout, "payment.Charge", "deadline exceeded")

	booking, err := f.coordinator.BookAndPay(ctx, packageRequest(t))
	require.Error(t, err)
	assert.Equal(t, entity.CodeUnknownOutcome, entity.BookingErrorCodeOf(err))

	// The pending state survived: payment queryable under our reference.
	assert.Equal(t, entity.BookingStatusPending, booking.Status)
	require.Len(t, booking.Payments, 1)
	externalID := booking.Payments[0].ExternalID
	require.NotEmpty(t, externalID)

	chargesBefore := countCalls(f.calls.Calls(), "payment.Charge")
	require.Equal(t, 1, chargesBefore)

	// The gateway eventually reports the charge as captured.
	f.payments.ChargeErr = nil
	f.payments.SetStatus(externalID, entity.PaymentStatusApproved)

	require.NoError(t, f.coordinator.Reconcile(ctx, externalID))

	resumed, err := f.repo.GetByID(ctx, booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, resumed.Status)
	assert.Equal(t, entity.PaymentStatusApproved, resumed.Payments[0].Status)
	assert.Equal(t, entity.LegStatusConfirmed, resumed.Flight.Status)
	assert.Equal(t, entity.LegStatusConfirmed, resumed.Hotel.Status)

	assert.Equal(t, 1, countCalls(f.calls.Calls(), "payment.Charge"),
		"resuming at the reserve step must never charge a second time")
}

func TestReconcile_SameStatusIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booking, err := f.coordinator.BookAndPay(ctx, packageRequest(t))
	require.NoError(t, err)
	externalID := booking.Payments[0].ExternalID

	before, err := f.repo.GetByID(ctx, booking.BookingID)
	require.NoError(t, err)
	eventsBefore := len(f.repo.Events)

	// Gateway still reports APPROVED; applying it twice must not move
	// anything.
	require.NoError(t, f.coordinator.Reconcile(ctx, externalID))
	require.NoError(t, f.coordinator.Reconcile(ctx, externalID))

	after, err := f.repo.GetByID(ctx, booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version, "a no-op reconcile must not write")
	assert.Equal(t, eventsBefore, len(f.repo.Events))
}

func TestReconcile_DeclinedGoesToOperator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.payments.ChargeErr = entity.NewGatewayError(entity.GatewayTimeout, "payment.Charge", "deadline exceeded")
	booking, err := f.coordinator.BookAndPay(ctx, packageRequest(t))
	require.Error(t, err)
	externalID := booking.Payments[0].ExternalID

	f.payments.SetStatus(externalID, entity.PaymentStatusRejected)

	require.NoError(t, f.coordinator.Reconcile(ctx, externalID))

	stored, err := f.repo.GetByID(ctx, booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusCancelled, stored.Status)
	assert.Equal(t, entity.PaymentStatusRejected, stored.Payments[0].Status)

	require.NotEmpty(t, f.ops.Alerts)
	assert.Equal(t, "payment_declined", f.ops.Alerts[len(f.ops.Alerts)-1].Kind)

	assert.Empty(t, f.flights.Reservations, "a declined payment must never produce a reservation")
	assert.Empty(t, f.hotels.Reservations)

	// Re-applying the same observation changes nothing.
	versionBefore := stored.Version
	require.NoError(t, f.coordinator.Reconcile(ctx, externalID))
	stored, err = f.repo.GetByID(ctx, booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, versionBefore, stored.Version)
}

func TestReconciliationWorker_PicksUpStalePayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.payments.ChargeErr = entity.NewGatewayError(entity.GatewayTimeout, "payment.Charge", "deadline exceeded")
	booking, err := f.coordinator.BookAndPay(ctx, packageRequest(t))
	require.Error(t, err)
	externalID := booking.Payments[0].ExternalID

	f.payments.ChargeErr = nil
	f.payments.SetStatus(externalID, entity.PaymentStatusApproved)

	worker := NewReconciliationWorker(f.coordinator, f.repo, time.Minute, 0)
	worker.tick(ctx)

	stored, err := f.repo.GetByID(ctx, booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, stored.Status)
}

func TestReconciliationWorker_ResumesBookingStrandedAfterApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.payments.ChargeErr = entity.NewGatewayError(entity.GatewayTimeout, "payment.Charge", "deadline exceeded")
	booking, err := f.coordinator.BookAndPay(ctx, packageRequest(t))
	require.Error(t, err)
	externalID := booking.Payments[0].ExternalID

	// A crash right after the approval was recorded: the payment is
	// APPROVED locally and at the gateway, the booking never got its
	// reservations.
	_, err = f.repo.UpdateByID(ctx, booking.BookingID, func(b entity.Booking) (entity.Booking, []any, error) {
		b.Payments[0].Status = entity.PaymentStatusApproved
		return b, nil, nil
	})
	require.NoError(t, err)

	f.payments.ChargeErr = nil
	f.payments.SetStatus(externalID, entity.PaymentStatusApproved)

	worker := NewReconciliationWorker(f.coordinator, f.repo, time.Minute, 0)
	worker.tick(ctx)

	stored, err := f.repo.GetByID(ctx, booking.BookingID)
	require.NoError(t, err)
	assert.Equal(t, entity.BookingStatusConfirmed, stored.Status)
	assert.Equal(t, entity.LegStatusConfirmed, stored.Flight.Status)
	assert.Equal(t, entity.LegStatusConfirmed, stored.Hotel.Status)

	assert.Equal(t, 1, countCalls(f.calls.Calls(), "payment.Charge"),
		"resuming a stranded booking must never charge a second time")
}

func countCalls(calls []string, name string) int {
	n := 0
	for _, c := range calls {
		if c == name {
			n++
		}
	}
	return n
}
