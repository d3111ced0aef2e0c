package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/jmoiron/sqlx"

	"travelbook/entity"
	"travelbook/pubsub/bus"
	"travelbook/pubsub/outbox"
)

// BookingsPostgresRepository persists the Booking aggregate. The full
// aggregate lives in a JSONB payload; a handful of columns are kept in
// sync for querying (status, payment external ids, voucher state).
// Events returned by update functions are published through the outbox
// inside the same transaction.
type BookingsPostgresRepository struct {
	db     *sqlx.DB
	logger watermill.LoggerAdapter
}

func NewBookingsPostgresRepository(db *sqlx.DB, logger watermill.LoggerAdapter) *BookingsPostgresRepository {
	if db == nil {
		panic("db must be set")
	}

	return &BookingsPostgresRepository{db: db, logger: logger}
}

func (r *BookingsPostgresRepository) Add(ctx context.Context, booking entity.Booking) error {
	payload, err := json.Marshal(booking)
	if err != nil {
		return fmt.Errorf("could not marshal booking: %w", err)
	}

	return UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bookings (booking_id, client_id, booking_type, status, holder_email, version, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, 1, $6, $7)
		`, booking.BookingID, booking.ClientID, booking.Type, booking.Status, booking.HolderEmail, payload, booking.CreatedAt)
		if err != nil {
			if isErrorUniqueViolation(err) {
				// De-duplicating
				return nil
			}
			return fmt.Errorf("could not insert booking: %w", err)
		}

		return r.syncPayments(ctx, tx, booking)
	})
}

func (r *BookingsPostgresRepository) GetByID(ctx context.Context, bookingID string) (entity.Booking, error) {
	return r.bookingByID(ctx, r.db, bookingID)
}

type queryer interface {
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

func (r *BookingsPostgresRepository) bookingByID(ctx context.Context, q queryer, bookingID string) (entity.Booking, error) {
	var (
		payload []byte
		version int
	)
	err := q.QueryRowxContext(ctx, `
		SELECT payload, version FROM bookings WHERE booking_id = $1
	`, bookingID).Scan(&payload, &version)
	if err != nil {
		return entity.Booking{}, mapNoRows(err)
	}

	return unmarshalBooking(payload, version)
}

// GetByExternalPaymentID resolves the booking that owns the payment the
// gateway knows by externalID. This is the webhook's entry point.
func (r *BookingsPostgresRepository) GetByExternalPaymentID(ctx context.Context, externalID string) (entity.Booking, error) {
	var (
		payload []byte
		version int
	)
	err := r.db.QueryRowxContext(ctx, `
		SELECT b.payload, b.version
		FROM bookings b
		JOIN payments p ON p.booking_id = b.booking_id
		WHERE p.external_id = $1
	`, externalID).Scan(&payload, &version)
	if err != nil {
		return entity.Booking{}, mapNoRows(err)
	}

	return unmarshalBooking(payload, version)
}

// UpdateByID runs a read-decide-write cycle under an optimistic version
// check. updateFn returns the new aggregate state plus the events to
// publish transactionally through the outbox. A concurrent writer makes
// the version check fail with entity.ErrConflict; callers retry the
// whole cycle.
func (r *BookingsPostgresRepository) UpdateByID(
	ctx context.Context,
	bookingID string,
	updateFn func(booking entity.Booking) (entity.Booking, []any, error),
) (entity.Booking, error) {
	var updated entity.Booking

	err := UpdateInTx(ctx, r.db, sql.LevelReadCommitted, func(ctx context.Context, tx *sqlx.Tx) error {
		booking, err := r.bookingByID(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		newBooking, events, err := updateFn(booking)
		if err != nil {
			return err
		}

		payload, err := json.Marshal(newBooking)
		if err != nil {
			return fmt.Errorf("could not marshal booking: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE bookings
			SET status = $1, voucher_sent_at = $2, payload = $3, version = version + 1
			WHERE booking_id = $4 AND version = $5
		`, newBooking.Status, newBooking.VoucherSentAt, payload, bookingID, booking.Version)
		if err != nil {
			return fmt.Errorf("could not update booking: %w", err)
		}

		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return entity.ErrConflict
		}

		if err := r.syncPayments(ctx, tx, newBooking); err != nil {
			return err
		}

		if len(events) > 0 {
			if err := r.publishInTx(ctx, tx, events); err != nil {
				return err
			}
		}

		newBooking.Version = booking.Version + 1
		updated = newBooking

		return nil
	})
	if err != nil {
		return entity.Booking{}, err
	}

	return updated, nil
}

// ListStalePendingPayments returns the external ids of payments created
// before cutoff that still need reconciliation: payments awaiting a
// gateway decision, plus approved payments whose booking never left
// PENDING. The reconciliation worker polls these.
func (r *BookingsPostgresRepository) ListStalePendingPayments(ctx context.Context, cutoff time.Time) ([]string, error) {
	var externalIDs []string
	err := r.db.SelectContext(ctx, &externalIDs, `
		SELECT p.external_id
		FROM payments p
		JOIN bookings b ON b.booking_id = p.booking_id
		WHERE p.external_id IS NOT NULL AND p.external_id <> '' AND p.created_at < $1
		AND (p.status = $2 OR (p.status = $3 AND b.status = $4))
	`, cutoff, entity.PaymentStatusPending, entity.PaymentStatusApproved, entity.BookingStatusPending)
	if err != nil {
		return nil, fmt.Errorf("could not list stale pending payments: %w", err)
	}
	return externalIDs, nil
}

// ListUnsentVouchers returns confirmed bookings whose voucher has not
// been sent yet. The voucher resend job polls these.
func (r *BookingsPostgresRepository) ListUnsentVouchers(ctx context.Context, limit int) ([]entity.Booking, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT payload, version
		FROM bookings
		WHERE status = $1 AND voucher_sent_at IS NULL
		ORDER BY created_at
		LIMIT $2
	`, entity.BookingStatusConfirmed, limit)
	if err != nil {
		return nil, fmt.Errorf("could not list unsent vouchers: %w", err)
	}
	defer rows.Close()

	var bookings []entity.Booking
	for rows.Next() {
		var (
			payload []byte
			version int
		)
		if err := rows.Scan(&payload, &version); err != nil {
			return nil, err
		}

		booking, err := unmarshalBooking(payload, version)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}

	return bookings, rows.Err()
}

// syncPayments mirrors the aggregate's payments into the payments table
// so reconciliation can query by external id and staleness without
// unpacking JSONB.
func (r *BookingsPostgresRepository) syncPayments(ctx context.Context, tx *sqlx.Tx, booking entity.Booking) error {
	for _, p := range booking.Payments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO payments (payment_id, booking_id, external_id, status, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (payment_id) DO UPDATE SET external_id = EXCLUDED.external_id, status = EXCLUDED.status
		`, p.PaymentID, p.BookingID, p.ExternalID, p.Status, p.CreatedAt)
		if err != nil {
			return fmt.Errorf("could not sync payment %s: %w", p.PaymentID, err)
		}
	}
	return nil
}

func (r *BookingsPostgresRepository) publishInTx(ctx context.Context, tx *sqlx.Tx, events []any) error {
	outboxPublisher, err := outbox.NewPublisherForTx(tx.Tx, r.logger)
	if err != nil {
		return fmt.Errorf("could not create outbox publisher: %w", err)
	}

	eventBus, err := bus.NewEventBus(outboxPublisher)
	if err != nil {
		return fmt.Errorf("could not create event bus: %w", err)
	}

	for _, event := range events {
		if err := eventBus.Publish(ctx, event); err != nil {
			return fmt.Errorf("could not publish event: %w", err)
		}
	}

	return nil
}

func unmarshalBooking(payload []byte, version int) (entity.Booking, error) {
	var booking entity.Booking
	if err := json.Unmarshal(payload, &booking); err != nil {
		return entity.Booking{}, fmt.Errorf("could not unmarshal booking: %w", err)
	}
	booking.Version = version
	return booking, nil
}
