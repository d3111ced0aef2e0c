// Package saga orchestrates the book-and-pay and cancel-and-refund
// sequences across the supplier and payment gateways, and owns every
// Booking/Payment status transition.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"travelbook/entity"
	"travelbook/log"
	"travelbook/metrics"
	"travelbook/pricing"
)

// conflictRetries bounds how many times a read-decide-write cycle is
// retried after losing the optimistic version check.
const conflictRetries = 3

type SupplierGateway interface {
	VerifyOffer(ctx context.Context, offerRef string) (entity.VerifiedOffer, error)
	CreateReservation(ctx context.Context, reservationRef, offerRef string, traveler entity.TravelerDetails) (string, error)
	GetReservation(ctx context.Context, externalID string) (entity.ReservationStatus, error)
	CancelReservation(ctx context.Context, externalID string) error
}

type PaymentGateway interface {
	Charge(ctx context.Context, amount decimal.Decimal, currency, token, idempotencyKey string) (entity.ChargeResult, error)
	GetStatus(ctx context.Context, externalPaymentID string) (entity.PaymentStatus, error)
	Refund(ctx context.Context, externalPaymentID string, amount decimal.Decimal, reason, idempotencyKey string) (entity.RefundResult, error)
}

type BookingsRepository interface {
	Add(ctx context.Context, booking entity.Booking) error
	GetByID(ctx context.Context, bookingID string) (entity.Booking, error)
	GetByExternalPaymentID(ctx context.Context, externalID string) (entity.Booking, error)
	UpdateByID(ctx context.Context, bookingID string, updateFn func(booking entity.Booking) (entity.Booking, []any, error)) (entity.Booking, error)
}

// OpsAlerts is the operator queue. Everything that needs a human ends up
// here; nothing is ever silently dropped.
type OpsAlerts interface {
	Add(ctx context.Context, bookingID, kind, detail string) error
}

type Coordinator struct {
	flights   SupplierGateway
	hotels    SupplierGateway
	payments  PaymentGateway
	repo      BookingsRepository
	opsAlerts OpsAlerts
}

func NewCoordinator(
	flights SupplierGateway,
	hotels SupplierGateway,
	payments PaymentGateway,
	repo BookingsRepository,
	opsAlerts OpsAlerts,
) *Coordinator {
	if flights == nil {
		panic("missing flights gateway")
	}
	if hotels == nil {
		panic("missing hotels gateway")
	}
	if payments == nil {
		panic("missing payments gateway")
	}
	if repo == nil {
		panic("missing bookings repository")
	}
	if opsAlerts == nil {
		panic("missing ops alerts")
	}

	return &Coordinator{
		flights:   flights,
		hotels:    hotels,
		payments:  payments,
		repo:      repo,
		opsAlerts: opsAlerts,
	}
}

type FlightLegRequest struct {
	OfferRef    string
	Origin      string
	Destination string
	DepartureAt time.Time

	Taxes decimal.Decimal

	CancellationDeadline time.Time
	CancellationPenalty  decimal.Decimal
}

type HotelLegRequest struct {
	OfferRef  string
	HotelName string
	CheckIn   time.Time
	CheckOut  time.Time

	Taxes decimal.Decimal

	CancellationDeadline time.Time
	CancellationPenalty  decimal.Decimal
}

type BookRequest struct {
	ClientID string
	AgentID  string
	Type     entity.BookingType

	// TotalAmount is the caller's expectation; it is re-validated
	// against the supplier-verified prices before anything is charged.
	TotalAmount decimal.Decimal
	Commission  decimal.Decimal
	Discount    decimal.Decimal
	Currency    string

	PaymentToken  string
	PaymentMethod string

	Holder entity.TravelerDetails

	Flight *FlightLegRequest
	Hotel  *HotelLegRequest
}

func (r BookRequest) validate() error {
	if r.ClientID == "" {
		return errors.New("client id must be set")
	}
	if r.PaymentToken == "" {
		return errors.New("payment token must be set")
	}
	if r.Currency == "" {
		return errors.New("currency must be set")
	}
	if !r.TotalAmount.IsPositive() {
		return errors.New("total amount must be positive")
	}
	if r.Holder.Email == "" {
		return errors.New("holder email must be set")
	}

	switch r.Type {
	case entity.BookingTypeFlight:
		if r.Flight == nil || r.Hotel != nil {
			return errors.New("FLIGHT booking requires exactly a flight leg")
		}
	case entity.BookingTypeHotel:
		if r.Hotel == nil || r.Flight != nil {
			return errors.New("HOTEL booking requires exactly a hotel leg")
		}
	case entity.BookingTypePackage:
		if r.Flight == nil || r.Hotel == nil {
			return errors.New("PACKAGE booking requires both legs")
		}
	default:
		return fmt.Errorf("unknown booking type: %s", r.Type)
	}

	return nil
}

// BookAndPay runs the booking saga to a terminal decision: verify the
// offers, charge, reserve flight then hotel, compensate with a full
// refund when a reservation fails. Once the charge went through the saga
// no longer stops on caller disconnect.
func (c *Coordinator) BookAndPay(ctx context.Context, req BookRequest) (entity.Booking, error) {
	logger := log.FromContext(ctx)

	if err := req.validate(); err != nil {
		return entity.Booking{}, entity.NewBookingError(entity.CodeInvalidRequest, err.Error(), nil)
	}

	metrics.BookingsStarted.With(prometheus.Labels{"type": string(req.Type)}).Inc()

	flightOffer, hotelOffer, err := c.verifyOffers(ctx, req)
	if err != nil {
		metrics.BookingsCompleted.With(prometheus.Labels{"result": "verification_failed"}).Inc()
		return entity.Booking{}, err
	}

	booking, err := c.buildBooking(req, flightOffer, hotelOffer)
	if err != nil {
		metrics.BookingsCompleted.With(prometheus.Labels{"result": "verification_failed"}).Inc()
		return entity.Booking{}, err
	}

	payment := entity.Payment{
		PaymentID: uuid.NewString(),
		BookingID: booking.BookingID,
		Amount:    booking.TotalAmount,
		Currency:  booking.Currency,
		Method:    req.PaymentMethod,
		Status:    entity.PaymentStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	result, err := c.payments.Charge(ctx, booking.TotalAmount, booking.Currency, req.PaymentToken, payment.PaymentID)
	if err != nil {
		if entity.GatewayErrorKindOf(err) == entity.GatewayTimeout {
			// Unknown outcome. The charge is registered under our
			// payment id, so reconciliation can resolve it by status
			// lookup. Persist the pending state and stop here.
			payment.ExternalID = payment.PaymentID
			booking.Payments = []entity.Payment{payment}
			if addErr := c.repo.Add(ctx, booking); addErr != nil {
				return entity.Booking{}, fmt.Errorf("could not persist booking after charge timeout: %w", addErr)
			}

			metrics.BookingsCompleted.With(prometheus.Labels{"result": "unknown_outcome"}).Inc()
			return booking, entity.NewBookingError(entity.CodeUnknownOutcome, "charge timed out, awaiting reconciliation", err)
		}

		metrics.BookingsCompleted.With(prometheus.Labels{"result": "payment_failed"}).Inc()
		return entity.Booking{}, entity.NewBookingError(entity.CodePaymentFailed, "charge failed", err)
	}

	payment.ExternalID = result.ExternalPaymentID
	payment.Status = result.Status
	booking.Payments = []entity.Payment{payment}

	if result.Status == entity.PaymentStatusRejected {
		// Retained for audit, terminal right away.
		now := time.Now().UTC()
		booking.Status = entity.BookingStatusCancelled
		booking.CancelReason = "payment rejected by gateway"
		booking.CancelledAt = &now
		if addErr := c.repo.Add(ctx, booking); addErr != nil {
			logger.WithError(addErr).Error("could not persist rejected booking")
		}

		metrics.BookingsCompleted.With(prometheus.Labels{"result": "payment_failed"}).Inc()
		return entity.Booking{}, entity.NewBookingError(entity.CodePaymentFailed, "payment rejected", nil)
	}

	if err := c.repo.Add(ctx, booking); err != nil {
		return entity.Booking{}, fmt.Errorf("could not persist booking: %w", err)
	}

	if result.Status == entity.PaymentStatusPending {
		// Asynchronous capture; reconciliation resumes the saga once the
		// gateway reports APPROVED.
		metrics.BookingsCompleted.With(prometheus.Labels{"result": "payment_pending"}).Inc()
		return booking, nil
	}

	// Money moved. Detach from the caller so a disconnect cannot leave a
	// charged booking without a terminal decision.
	return c.resumeAtReserve(context.WithoutCancel(ctx), booking.BookingID)
}

// verifyOffers checks each leg's offer concurrently. Verification is
// read-only, so a failure short-circuits the other leg.
func (c *Coordinator) verifyOffers(ctx context.Context, req BookRequest) (flight, hotel entity.VerifiedOffer, err error) {
	g, groupCtx := errgroup.WithContext(ctx)

	if req.Flight != nil {
		g.Go(func() error {
			offer, err := c.flights.VerifyOffer(groupCtx, req.Flight.OfferRef)
			if err != nil {
				return entity.NewBookingError(entity.CodeVerificationFailed, "flight offer verification failed", err)
			}
			if !offer.Available {
				return entity.NewBookingError(entity.CodeVerificationFailed, "flight offer no longer available", nil)
			}
			flight = offer
			return nil
		})
	}

	if req.Hotel != nil {
		g.Go(func() error {
			offer, err := c.hotels.VerifyOffer(groupCtx, req.Hotel.OfferRef)
			if err != nil {
				return entity.NewBookingError(entity.CodeVerificationFailed, "hotel rate verification failed", err)
			}
			if !offer.Available {
				return entity.NewBookingError(entity.CodeVerificationFailed, "hotel rate no longer available", nil)
			}
			hotel = offer
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return entity.VerifiedOffer{}, entity.VerifiedOffer{}, err
	}

	for _, offer := range []entity.VerifiedOffer{flight, hotel} {
		if offer.OfferRef != "" && offer.Currency != req.Currency {
			return entity.VerifiedOffer{}, entity.VerifiedOffer{}, entity.NewBookingError(
				entity.CodeVerificationFailed,
				fmt.Sprintf("currency mismatch: requested %s, supplier quoted %s", req.Currency, offer.Currency),
				nil,
			)
		}
	}

	// The requested total must match what the suppliers will honor right
	// now. A stale price never silently charges the higher amount.
	verifiedTotal := flight.Price.Add(hotel.Price)
	if !verifiedTotal.RoundBank(2).Equal(req.TotalAmount.RoundBank(2)) {
		return entity.VerifiedOffer{}, entity.VerifiedOffer{}, entity.NewBookingError(
			entity.CodeVerificationFailed,
			fmt.Sprintf("price changed: requested %s, verified %s", req.TotalAmount.StringFixedBank(2), verifiedTotal.StringFixedBank(2)),
			nil,
		)
	}

	return flight, hotel, nil
}

func (c *Coordinator) buildBooking(req BookRequest, flightOffer, hotelOffer entity.VerifiedOffer) (entity.Booking, error) {
	booking, err := entity.NewBooking(
		uuid.NewString(),
		req.ClientID,
		req.AgentID,
		req.Type,
		req.TotalAmount.RoundBank(2),
		req.Currency,
		req.Holder.Name,
		req.Holder.Email,
	)
	if err != nil {
		return entity.Booking{}, entity.NewBookingError(entity.CodeInvalidRequest, err.Error(), nil)
	}
	booking.HolderPhone = req.Holder.Phone
	booking.Commission = req.Commission
	booking.Discount = req.Discount

	var taxesFlight, taxesHotel decimal.Decimal
	if req.Flight != nil {
		taxesFlight = req.Flight.Taxes
	}
	if req.Hotel != nil {
		taxesHotel = req.Hotel.Taxes
	}
	booking.Taxes = taxesFlight.Add(taxesHotel)

	amounts, err := pricing.Allocate(
		booking.TotalAmount,
		flightOffer.Price,
		hotelOffer.Price,
		req.Commission,
		req.Discount,
		taxesFlight,
		taxesHotel,
	)
	if err != nil {
		return entity.Booking{}, entity.NewBookingError(entity.CodeInvalidRequest, "could not allocate per-leg amounts", err)
	}

	if req.Flight != nil {
		booking.Flight = &entity.FlightLeg{
			LegID:                uuid.NewString(),
			BookingID:            booking.BookingID,
			OfferRef:             req.Flight.OfferRef,
			Origin:               req.Flight.Origin,
			Destination:          req.Flight.Destination,
			DepartureAt:          req.Flight.DepartureAt,
			Amount:               amounts.Flight,
			Taxes:                amounts.FlightTaxes,
			CancellationDeadline: req.Flight.CancellationDeadline,
			CancellationPenalty:  req.Flight.CancellationPenalty,
			Status:               entity.LegStatusPending,
		}
	}
	if req.Hotel != nil {
		booking.Hotel = &entity.HotelLeg{
			LegID:                uuid.NewString(),
			BookingID:            booking.BookingID,
			OfferRef:             req.Hotel.OfferRef,
			HotelName:            req.Hotel.HotelName,
			CheckIn:              req.Hotel.CheckIn,
			CheckOut:             req.Hotel.CheckOut,
			Amount:               amounts.Hotel,
			Taxes:                amounts.HotelTaxes,
			CancellationDeadline: req.Hotel.CancellationDeadline,
			CancellationPenalty:  req.Hotel.CancellationPenalty,
			Status:               entity.LegStatusPending,
		}
	}

	return *booking, nil
}

// updateWithRetry re-runs the read-decide-write cycle after a lost
// version check, bounded.
func (c *Coordinator) updateWithRetry(
	ctx context.Context,
	bookingID string,
	updateFn func(booking entity.Booking) (entity.Booking, []any, error),
) (entity.Booking, error) {
	var lastErr error
	for attempt := 0; attempt < conflictRetries; attempt++ {
		booking, err := c.repo.UpdateByID(ctx, bookingID, updateFn)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, entity.ErrConflict) {
			return entity.Booking{}, err
		}
		lastErr = err
	}

	return entity.Booking{}, entity.NewBookingError(entity.CodeConcurrencyConflict, "concurrent update on booking "+bookingID, lastErr)
}
