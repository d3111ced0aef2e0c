package saga

import (
	"context"
	"errors"
	"time"

	"travelbook/entity"
	"travelbook/log"
)

type unsentVouchersLister interface {
	ListUnsentVouchers(ctx context.Context, limit int) ([]entity.Booking, error)
	UpdateByID(ctx context.Context, bookingID string, updateFn func(booking entity.Booking) (entity.Booking, []any, error)) (entity.Booking, error)
}

type VoucherSender interface {
	SendVoucher(ctx context.Context, booking entity.Booking) error
}

// VoucherResender is the safety net behind the confirmation event
// handler: it re-scans CONFIRMED bookings whose voucher was never
// stamped as sent and sends it. The stamp makes the predicate
// idempotent, a voucher is sent at most once per scan even when the
// event handler races it.
type VoucherResender struct {
	repo          unsentVouchersLister
	notifications VoucherSender

	interval  time.Duration
	batchSize int
}

func NewVoucherResender(
	repo unsentVouchersLister,
	notifications VoucherSender,
	interval time.Duration,
	batchSize int,
) *VoucherResender {
	if repo == nil {
		panic("missing repo")
	}
	if notifications == nil {
		panic("missing notifications")
	}

	return &VoucherResender{
		repo:          repo,
		notifications: notifications,
		interval:      interval,
		batchSize:     batchSize,
	}
}

// Run blocks until ctx is cancelled.
func (v *VoucherResender) Run(ctx context.Context) error {
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			v.tick(ctx)
		}
	}
}

func (v *VoucherResender) tick(ctx context.Context) {
	logger := log.FromContext(ctx)

	bookings, err := v.repo.ListUnsentVouchers(ctx, v.batchSize)
	if err != nil {
		logger.WithError(err).Error("could not list unsent vouchers")
		return
	}

	for _, booking := range bookings {
		if err := v.resend(ctx, booking); err != nil {
			logger.WithField("booking_id", booking.BookingID).
				WithError(err).
				Error("could not resend voucher")
		}
	}
}

func (v *VoucherResender) resend(ctx context.Context, booking entity.Booking) error {
	if err := v.notifications.SendVoucher(ctx, booking); err != nil {
		return err
	}

	_, err := v.repo.UpdateByID(ctx, booking.BookingID, func(b entity.Booking) (entity.Booking, []any, error) {
		if b.VoucherSentAt != nil {
			return b, nil, nil
		}

		now := time.Now().UTC()
		b.VoucherSentAt = &now

		return b, []any{entity.VoucherSent_v1{
			Header:    entity.NewEventHeader(),
			BookingID: b.BookingID,
			Email:     b.HolderEmail,
		}}, nil
	})
	if errors.Is(err, entity.ErrConflict) {
		// The event handler won the race; the stamp is there.
		return nil
	}
	return err
}
