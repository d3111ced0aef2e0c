package gateway

import (
	"context"
	"sync"

	"travelbook/entity"
)

type NotificationMock struct {
	mock sync.Mutex

	Vouchers      []string
	Cancellations []string
	RefundNotices []string

	SendErr error
}

func (m *NotificationMock) SendVoucher(ctx context.Context, booking entity.Booking) error {
	m.mock.Lock()
	defer m.mock.Unlock()

	if m.SendErr != nil {
		return m.SendErr
	}
	m.Vouchers = append(m.Vouchers, booking.BookingID)
	return nil
}

func (m *NotificationMock) SendCancellation(ctx context.Context, bookingID, email, reason string) error {
	m.mock.Lock()
	defer m.mock.Unlock()

	if m.SendErr != nil {
		return m.SendErr
	}
	m.Cancellations = append(m.Cancellations, bookingID)
	return nil
}

func (m *NotificationMock) SendRefundNotice(ctx context.Context, bookingID, email, amount string) error {
	m.mock.Lock()
	defer m.mock.Unlock()

	if m.SendErr != nil {
		return m.SendErr
	}
	m.RefundNotices = append(m.RefundNotices, bookingID)
	return nil
}

func (m *NotificationMock) SentVouchers() []string {
	m.mock.Lock()
	defer m.mock.Unlock()
	return append([]string(nil), m.Vouchers...)
}

func (m *NotificationMock) SentCancellations() []string {
	m.mock.Lock()
	defer m.mock.Unlock()
	return append([]string(nil), m.Cancellations...)
}

func (m *NotificationMock) SentRefundNotices() []string {
	m.mock.Lock()
	defer m.mock.Unlock()
	return append([]string(nil), m.RefundNotices...)
}
