package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BookingType string

const (
	BookingTypeFlight  BookingType = "FLIGHT"
	BookingTypeHotel   BookingType = "HOTEL"
	BookingTypePackage BookingType = "PACKAGE"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

type LegStatus string

const (
	LegStatusPending   LegStatus = "PENDING"
	LegStatusConfirmed LegStatus = "CONFIRMED"
	LegStatusCancelled LegStatus = "CANCELLED"
)

// Booking is the aggregate root. It owns its legs, payments and refunds;
// cancellation is a status transition, rows are never deleted.
type Booking struct {
	BookingID string      `json:"booking_id"`
	ClientID  string      `json:"client_id"`
	AgentID   string      `json:"agent_id"`
	Type      BookingType `json:"type"`

	Status BookingStatus `json:"status"`

	TotalAmount decimal.Decimal `json:"total_amount"`
	Commission  decimal.Decimal `json:"commission"`
	Discount    decimal.Decimal `json:"discount"`
	Taxes       decimal.Decimal `json:"taxes"`
	Currency    string          `json:"currency"`

	HolderName  string `json:"holder_name"`
	HolderEmail string `json:"holder_email"`
	HolderPhone string `json:"holder_phone"`

	Flight *FlightLeg `json:"flight,omitempty"`
	Hotel  *HotelLeg  `json:"hotel,omitempty"`

	Payments []Payment `json:"payments"`
	Refunds  []Refund  `json:"refunds"`

	CancelReason string     `json:"cancel_reason,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`

	VoucherSentAt *time.Time `json:"voucher_sent_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Version guards concurrent status transitions, bumped by the store
	// on every update.
	Version int `json:"version"`
}

func NewBooking(
	bookingID string,
	clientID string,
	agentID string,
	bookingType BookingType,
	totalAmount decimal.Decimal,
	currency string,
	holderName string,
	holderEmail string,
) (*Booking, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("booking id must be set")
	}
	if clientID == "" {
		return nil, fmt.Errorf("client id must be set")
	}
	switch bookingType {
	case BookingTypeFlight, BookingTypeHotel, BookingTypePackage:
	default:
		return nil, fmt.Errorf("unknown booking type: %s", bookingType)
	}
	if totalAmount.IsNegative() || totalAmount.IsZero() {
		return nil, fmt.Errorf("total amount must be positive")
	}
	if currency == "" {
		return nil, fmt.Errorf("currency must be set")
	}
	if holderEmail == "" {
		return nil, fmt.Errorf("holder email must be set")
	}

	return &Booking{
		BookingID:   bookingID,
		ClientID:    clientID,
		AgentID:     agentID,
		Type:        bookingType,
		Status:      BookingStatusPending,
		TotalAmount: totalAmount,
		Currency:    currency,
		HolderName:  holderName,
		HolderEmail: holderEmail,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// ApprovedPayment returns the payment that confirmed this booking.
// A CONFIRMED booking always has one.
func (b Booking) ApprovedPayment() (Payment, bool) {
	for _, p := range b.Payments {
		if p.Status == PaymentStatusApproved || p.Status == PaymentStatusRefunded {
			return p, true
		}
	}
	return Payment{}, false
}

func (b Booking) PendingPayment() (Payment, bool) {
	for _, p := range b.Payments {
		if p.Status == PaymentStatusPending {
			return p, true
		}
	}
	return Payment{}, false
}

// RefundedTotal sums refunds that completed, for deciding when the
// original payment flips to REFUNDED.
func (b Booking) RefundedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, r := range b.Refunds {
		if r.Status == RefundStatusCompleted {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// OutstandingRefundTotal sums pending and completed refunds. A PENDING
// row reserves its amount until the gateway outcome is known, so the
// same charge can never be refunded past its amount.
func (b Booking) OutstandingRefundTotal() decimal.Decimal {
	total := decimal.Zero
	for _, r := range b.Refunds {
		if r.Status == RefundStatusPending || r.Status == RefundStatusCompleted {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// FlightLeg is the flight supplier's part of a booking. ExternalID stays
// empty until the supplier confirms the reservation.
type FlightLeg struct {
	LegID     string `json:"leg_id"`
	BookingID string `json:"booking_id"`

	OfferRef   string `json:"offer_ref"`
	ExternalID string `json:"external_id,omitempty"`

	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	DepartureAt time.Time `json:"departure_at"`

	Amount decimal.Decimal `json:"amount"`
	Taxes  decimal.Decimal `json:"taxes"`

	CancellationDeadline time.Time       `json:"cancellation_deadline"`
	CancellationPenalty  decimal.Decimal `json:"cancellation_penalty"`

	Status LegStatus `json:"status"`
}

// HotelLeg is the hotel supplier's part of a booking.
type HotelLeg struct {
	LegID     string `json:"leg_id"`
	BookingID string `json:"booking_id"`

	OfferRef   string `json:"offer_ref"`
	ExternalID string `json:"external_id,omitempty"`

	HotelName string    `json:"hotel_name"`
	CheckIn   time.Time `json:"check_in"`
	CheckOut  time.Time `json:"check_out"`

	Amount decimal.Decimal `json:"amount"`
	Taxes  decimal.Decimal `json:"taxes"`

	CancellationDeadline time.Time       `json:"cancellation_deadline"`
	CancellationPenalty  decimal.Decimal `json:"cancellation_penalty"`

	Status LegStatus `json:"status"`
}
