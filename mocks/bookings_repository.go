package mocks

import (
	"context"
	"sync"
	"time"

	"travelbook/entity"
)

// MockBookingsRepository is an in-memory BookingsRepository for testing.
// It mimics the optimistic versioning of the postgres repository and
// collects the events the update functions return instead of publishing
// them.
type MockBookingsRepository struct {
	mu       sync.Mutex
	bookings map[string]entity.Booking

	// Events collects everything updateFns asked to publish, in order.
	Events []any

	// FailUpdatesWithConflict makes the next N UpdateByID calls return
	// entity.ErrConflict before applying anything.
	FailUpdatesWithConflict int

	// SkipUpdatesBeforeConflict lets that many UpdateByID calls through
	// before FailUpdatesWithConflict starts rejecting.
	SkipUpdatesBeforeConflict int
}

func NewMockBookingsRepository() *MockBookingsRepository {
	return &MockBookingsRepository{
		bookings: map[string]entity.Booking{},
	}
}

func (m *MockBookingsRepository) Add(ctx context.Context, booking entity.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.bookings[booking.BookingID]; ok {
		// De-duplicating, same as the unique violation path in postgres.
		return nil
	}

	booking.Version = 1
	m.bookings[booking.BookingID] = booking

	return nil
}

func (m *MockBookingsRepository) GetByID(ctx context.Context, bookingID string) (entity.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	booking, ok := m.bookings[bookingID]
	if !ok {
		return entity.Booking{}, entity.ErrNotFound
	}

	return booking, nil
}

func (m *MockBookingsRepository) GetByExternalPaymentID(ctx context.Context, externalID string) (entity.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, booking := range m.bookings {
		for _, p := range booking.Payments {
			if p.ExternalID == externalID {
				return booking, nil
			}
		}
	}

	return entity.Booking{}, entity.ErrNotFound
}

func (m *MockBookingsRepository) UpdateByID(
	ctx context.Context,
	bookingID string,
	updateFn func(booking entity.Booking) (entity.Booking, []any, error),
) (entity.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	booking, ok := m.bookings[bookingID]
	if !ok {
		return entity.Booking{}, entity.ErrNotFound
	}

	if m.SkipUpdatesBeforeConflict > 0 {
		m.SkipUpdatesBeforeConflict--
	} else if m.FailUpdatesWithConflict > 0 {
		m.FailUpdatesWithConflict--
		return entity.Booking{}, entity.ErrConflict
	}

	updated, events, err := updateFn(booking)
	if err != nil {
		return entity.Booking{}, err
	}

	updated.Version = booking.Version + 1
	m.bookings[bookingID] = updated
	m.Events = append(m.Events, events...)

	return updated, nil
}

func (m *MockBookingsRepository) ListStalePendingPayments(ctx context.Context, cutoff time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var externalIDs []string
	for _, booking := range m.bookings {
		for _, p := range booking.Payments {
			if p.ExternalID == "" || !p.CreatedAt.Before(cutoff) {
				continue
			}
			stranded := p.Status == entity.PaymentStatusApproved && booking.Status == entity.BookingStatusPending
			if p.Status == entity.PaymentStatusPending || stranded {
				externalIDs = append(externalIDs, p.ExternalID)
			}
		}
	}

	return externalIDs, nil
}

func (m *MockBookingsRepository) ListUnsentVouchers(ctx context.Context, limit int) ([]entity.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var bookings []entity.Booking
	for _, booking := range m.bookings {
		if booking.Status == entity.BookingStatusConfirmed && booking.VoucherSentAt == nil {
			bookings = append(bookings, booking)
			if len(bookings) == limit {
				break
			}
		}
	}

	return bookings, nil
}
