package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventHeader struct {
	ID             string    `json:"id"`
	PublishedAt    time.Time `json:"published_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

func NewEventHeaderWithIdempotencyKey(idempotencyKey string) EventHeader {
	return EventHeader{
		ID:             uuid.NewString(),
		PublishedAt:    time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
	}
}

type BookingConfirmed_v1 struct {
	Header      EventHeader     `json:"header"`
	BookingID   string          `json:"booking_id"`
	BookingType BookingType     `json:"booking_type"`
	HolderEmail string          `json:"holder_email"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
}

type BookingCancelled_v1 struct {
	Header      EventHeader `json:"header"`
	BookingID   string      `json:"booking_id"`
	HolderEmail string      `json:"holder_email"`
	Reason      string      `json:"reason"`
}

type RefundCompleted_v1 struct {
	Header    EventHeader     `json:"header"`
	BookingID string          `json:"booking_id"`
	RefundID  string          `json:"refund_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

type VoucherSent_v1 struct {
	Header    EventHeader `json:"header"`
	BookingID string      `json:"booking_id"`
	Email     string      `json:"email"`
}
