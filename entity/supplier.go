package entity

import "github.com/shopspring/decimal"

// VerifiedOffer is the supplier's answer to an offer verification:
// the price the supplier will actually honor right now.
type VerifiedOffer struct {
	OfferRef  string          `json:"offer_ref"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	Available bool            `json:"available"`
}

type TravelerDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
	ReservationStatusNotFound  ReservationStatus = "NOT_FOUND"
)

type ChargeResult struct {
	ExternalPaymentID string        `json:"external_payment_id"`
	Status            PaymentStatus `json:"status"`
}

type RefundResult struct {
	ExternalRefundID string       `json:"external_refund_id"`
	Status           RefundStatus `json:"status"`
}
