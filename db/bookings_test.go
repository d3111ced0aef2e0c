package db

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelbook/entity"
)

func TestBookingsRepository_Add_idempotency(t *testing.T) {
	ctx := context.Background()
	repo := NewBookingsPostgresRepository(GetDb(t), watermill.NopLogger{})

	booking := newTestBooking(t)

	for i := 0; i < 2; i++ {
		err := repo.Add(ctx, *booking)
		require.NoError(t, err)

		stored, err := repo.GetByID(ctx, booking.BookingID)
		require.NoError(t, err)
		require.Equal(t, 1, stored.Version)
		require.Equal(t, entity.BookingStatusPending, stored.Status)
	}
}

func TestBookingsRepository_UpdateByID(t *testing.T) {
	ctx := context.Background()
	repo := NewBookingsPostgresRepository(GetDb(t), watermill.NopLogger{})

	booking := newTestBooking(t)
	require.NoError(t, repo.Add(ctx, *booking))

	t.Run("bumps version and persists new state", func(t *testing.T) {
		updated, err := repo.UpdateByID(ctx, booking.BookingID, func(b entity.Booking) (entity.Booking, []any, error) {
			b.Status = entity.BookingStatusConfirmed
			return b, nil, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)
		assert.Equal(t, entity.BookingStatusConfirmed, updated.Status)

		stored, err := repo.GetByID(ctx, booking.BookingID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.Version)
		assert.Equal(t, entity.BookingStatusConfirmed, stored.Status)
	})

	t.Run("updateFn error rolls back", func(t *testing.T) {
		before, err := repo.GetByID(ctx, booking.BookingID)
		require.NoError(t, err)

		_, err = repo.UpdateByID(ctx, booking.BookingID, func(b entity.Booking) (entity.Booking, []any, error) {
			return entity.Booking{}, nil, assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		after, err := repo.GetByID(ctx, booking.BookingID)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
	})

	t.Run("unknown booking", func(t *testing.T) {
		_, err := repo.UpdateByID(ctx, uuid.NewString(), func(b entity.Booking) (entity.Booking, []any, error) {
			return b, nil, nil
		})
		require.ErrorIs(t, err, entity.ErrNotFound)
	})
}

func TestBookingsRepository_GetByExternalPaymentID(t *testing.T) {
	ctx := context.Background()
	repo := NewBookingsPostgresRepository(GetDb(t), watermill.NopLogger{})

	booking := newTestBooking(t)
	externalID := "ext-" + uuid.NewString()
	booking.Payments = []entity.Payment{{
		PaymentID:  uuid.NewString(),
		BookingID:  booking.BookingID,
		Amount:     booking.TotalAmount,
		Currency:   booking.Currency,
		ExternalID: externalID,
		Status:     entity.PaymentStatusPending,
		CreatedAt:  time.Now().UTC(),
	}}
	require.NoError(t, repo.Add(ctx, *booking))

	found, err := repo.GetByExternalPaymentID(ctx, externalID)
	require.NoError(t, err)
	assert.Equal(t, booking.BookingID, found.BookingID)

	_, err = repo.GetByExternalPaymentID(ctx, "ext-"+uuid.NewString())
	require.ErrorIs(t, err, entity.ErrNotFound)
}

func TestBookingsRepository_ListStalePendingPayments(t *testing.T) {
	ctx := context.Background()
	repo := NewBookingsPostgresRepository(GetDb(t), watermill.NopLogger{})

	stale := newTestBooking(t)
	staleExternalID := "ext-" + uuid.NewString()
	stale.Payments = []entity.Payment{{
		PaymentID:  uuid.NewString(),
		BookingID:  stale.BookingID,
		Amount:     stale.TotalAmount,
		Currency:   stale.Currency,
		ExternalID: staleExternalID,
		Status:     entity.PaymentStatusPending,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}}
	require.NoError(t, repo.Add(ctx, *stale))

	fresh := newTestBooking(t)
	fresh.Payments = []entity.Payment{{
		PaymentID:  uuid.NewString(),
		BookingID:  fresh.BookingID,
		Amount:     fresh.TotalAmount,
		Currency:   fresh.Currency,
		ExternalID: "ext-" + uuid.NewString(),
		Status:     entity.PaymentStatusPending,
		CreatedAt:  time.Now().UTC(),
	}}
	require.NoError(t, repo.Add(ctx, *fresh))

	// A pending payment without an external id cannot be reconciled,
	// the list must skip it.
	unacked := newTestBooking(t)
	unacked.Payments = []entity.Payment{{
		PaymentID: uuid.NewString(),
		BookingID: unacked.BookingID,
		Amount:    unacked.TotalAmount,
		Currency:  unacked.Currency,
		Status:    entity.PaymentStatusPending,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}}
	require.NoError(t, repo.Add(ctx, *unacked))

	// An approved payment on a booking that never left PENDING is a
	// crash leftover; the poll must pick it up so the saga can resume.
	stranded := newTestBooking(t)
	strandedExternalID := "ext-" + uuid.NewString()
	stranded.Payments = []entity.Payment{{
		PaymentID:  uuid.NewString(),
		BookingID:  stranded.BookingID,
		Amount:     stranded.TotalAmount,
		Currency:   stranded.Currency,
		ExternalID: strandedExternalID,
		Status:     entity.PaymentStatusApproved,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}}
	require.NoError(t, repo.Add(ctx, *stranded))

	settled := newTestBooking(t)
	settled.Status = entity.BookingStatusConfirmed
	settled.Payments = []entity.Payment{{
		PaymentID:  uuid.NewString(),
		BookingID:  settled.BookingID,
		Amount:     settled.TotalAmount,
		Currency:   settled.Currency,
		ExternalID: "ext-" + uuid.NewString(),
		Status:     entity.PaymentStatusApproved,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}}
	require.NoError(t, repo.Add(ctx, *settled))

	ids, err := repo.ListStalePendingPayments(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Contains(t, ids, staleExternalID)
	assert.Contains(t, ids, strandedExternalID)
	assert.Len(t, ids, 2)
}

func TestBookingsRepository_ListUnsentVouchers(t *testing.T) {
	ctx := context.Background()
	repo := NewBookingsPostgresRepository(GetDb(t), watermill.NopLogger{})

	unsent := newTestBooking(t)
	unsent.Status = entity.BookingStatusConfirmed
	require.NoError(t, repo.Add(ctx, *unsent))

	sent := newTestBooking(t)
	sent.Status = entity.BookingStatusConfirmed
	now := time.Now().UTC()
	sent.VoucherSentAt = &now
	require.NoError(t, repo.Add(ctx, *sent))
	_, err := repo.UpdateByID(ctx, sent.BookingID, func(b entity.Booking) (entity.Booking, []any, error) {
		b.VoucherSentAt = &now
		return b, nil, nil
	})
	require.NoError(t, err)

	pending := newTestBooking(t)
	require.NoError(t, repo.Add(ctx, *pending))

	bookings, err := repo.ListUnsentVouchers(ctx, 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.BookingID)
	}
	assert.Contains(t, ids, unsent.BookingID)
	assert.NotContains(t, ids, sent.BookingID)
	assert.NotContains(t, ids, pending.BookingID)
}

func newTestBooking(t *testing.T) *entity.Booking {
	t.Helper()

	booking, err := entity.NewBooking(
		uuid.NewString(),
		"client-1",
		"agent-1",
		entity.BookingTypeFlight,
		decimal.RequireFromString("650.00"),
		"ARS",
		"Ana Test",
		"ana@test.io",
	)
	require.NoError(t, err)

	return booking
}
