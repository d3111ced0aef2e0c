// Package event holds the notification-side event handlers: everything
// here runs after a booking reached a terminal state, and a failure here
// never reverses the decision that produced the event.
package event

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/components/cqrs"

	"travelbook/entity"
	"travelbook/log"
)

type NotificationService interface {
	SendVoucher(ctx context.Context, booking entity.Booking) error
	SendCancellation(ctx context.Context, bookingID, email, reason string) error
	SendRefundNotice(ctx context.Context, bookingID, email, amount string) error
}

type BookingsRepository interface {
	GetByID(ctx context.Context, bookingID string) (entity.Booking, error)
	UpdateByID(ctx context.Context, bookingID string, updateFn func(entity.Booking) (entity.Booking, []any, error)) (entity.Booking, error)
}

type Handler struct {
	notificationService NotificationService
	bookingsRepo        BookingsRepository
}

func NewHandler(notificationService NotificationService, bookingsRepo BookingsRepository) Handler {
	if notificationService == nil {
		panic("missing notificationService")
	}
	if bookingsRepo == nil {
		panic("missing bookingsRepo")
	}

	return Handler{
		notificationService: notificationService,
		bookingsRepo:        bookingsRepo,
	}
}

// SendVoucherHandler sends the voucher once the booking is confirmed and
// stamps the booking so the resend job skips it.
func (h Handler) SendVoucherHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"SendVoucher",
		func(ctx context.Context, event *entity.BookingConfirmed_v1) error {
			booking, err := h.bookingsRepo.GetByID(ctx, event.BookingID)
			if err != nil {
				return err
			}

			if booking.VoucherSentAt != nil {
				// already sent, re-delivery
				return nil
			}

			if err := h.notificationService.SendVoucher(ctx, booking); err != nil {
				return err
			}

			return h.markVoucherSent(ctx, booking.BookingID)
		},
	)
}

func (h Handler) SendCancellationHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"SendCancellation",
		func(ctx context.Context, event *entity.BookingCancelled_v1) error {
			return h.notificationService.SendCancellation(ctx, event.BookingID, event.HolderEmail, event.Reason)
		},
	)
}

func (h Handler) SendRefundNoticeHandler() cqrs.EventHandler {
	return cqrs.NewEventHandler(
		"SendRefundNotice",
		func(ctx context.Context, event *entity.RefundCompleted_v1) error {
			booking, err := h.bookingsRepo.GetByID(ctx, event.BookingID)
			if err != nil {
				return err
			}

			return h.notificationService.SendRefundNotice(
				ctx,
				event.BookingID,
				booking.HolderEmail,
				event.Amount.StringFixedBank(2)+" "+event.Currency,
			)
		},
	)
}

func (h Handler) markVoucherSent(ctx context.Context, bookingID string) error {
	_, err := h.bookingsRepo.UpdateByID(ctx, bookingID, func(booking entity.Booking) (entity.Booking, []any, error) {
		if booking.VoucherSentAt != nil {
			return booking, nil, nil
		}

		now := time.Now().UTC()
		booking.VoucherSentAt = &now

		return booking, []any{entity.VoucherSent_v1{
			Header:    entity.NewEventHeader(),
			BookingID: booking.BookingID,
			Email:     booking.HolderEmail,
		}}, nil
	})
	if errors.Is(err, entity.ErrConflict) {
		// Lost the race against another writer; the resend job will
		// observe the final state.
		log.FromContext(ctx).WithField("booking_id", bookingID).Warn("voucher sent mark conflicted")
		return nil
	}
	return err
}
