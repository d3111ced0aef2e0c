package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusApproved  PaymentStatus = "APPROVED"
	PaymentStatusRejected  PaymentStatus = "REJECTED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

// Payment is one charge attempt against the gateway. Rejected attempts are
// retained for audit.
type Payment struct {
	PaymentID string `json:"payment_id"`
	BookingID string `json:"booking_id"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Method   string          `json:"method"`

	// ExternalID is the gateway's payment id, assigned once the gateway
	// acknowledges the charge.
	ExternalID string `json:"external_id,omitempty"`

	Status    PaymentStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// CanTransitionTo enforces forward-only payment transitions:
// PENDING -> {APPROVED, REJECTED, CANCELLED}, APPROVED -> REFUNDED.
func (p Payment) CanTransitionTo(next PaymentStatus) bool {
	switch p.Status {
	case PaymentStatusPending:
		return next == PaymentStatusApproved || next == PaymentStatusRejected || next == PaymentStatusCancelled
	case PaymentStatusApproved:
		return next == PaymentStatusRefunded
	default:
		return false
	}
}

type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusCompleted RefundStatus = "COMPLETED"
	RefundStatusFailed    RefundStatus = "FAILED"
)

// Refund records a compensating payment against an earlier charge.
// Immutable once COMPLETED.
type Refund struct {
	RefundID  string `json:"refund_id"`
	BookingID string `json:"booking_id"`

	// PaymentID references the originating charge; the refund does not
	// own it.
	PaymentID string `json:"payment_id"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	ExternalID string       `json:"external_id,omitempty"`
	Status     RefundStatus `json:"status"`
	Reason     string       `json:"reason"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
