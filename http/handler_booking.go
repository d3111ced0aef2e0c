package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"travelbook/entity"
	"travelbook/saga"
)

type legRequest struct {
	OfferRef    string `json:"offer_ref"`
	Origin      string `json:"origin,omitempty"`
	Destination string `json:"destination,omitempty"`
	DepartureAt string `json:"departure_at,omitempty"`

	HotelName string `json:"hotel_name,omitempty"`
	CheckIn   string `json:"check_in,omitempty"`
	CheckOut  string `json:"check_out,omitempty"`

	Taxes string `json:"taxes,omitempty"`

	CancellationDeadline string `json:"cancellation_deadline,omitempty"`
	CancellationPenalty  string `json:"cancellation_penalty,omitempty"`
}

type postBookingRequest struct {
	ClientID string `json:"client_id"`
	AgentID  string `json:"agent_id"`
	Type     string `json:"type"`

	TotalAmount string `json:"total_amount"`
	Commission  string `json:"commission,omitempty"`
	Discount    string `json:"discount,omitempty"`
	Currency    string `json:"currency"`

	PaymentToken  string `json:"payment_token"`
	PaymentMethod string `json:"payment_method,omitempty"`

	HolderName  string `json:"holder_name"`
	HolderEmail string `json:"holder_email"`
	HolderPhone string `json:"holder_phone,omitempty"`

	Flight *legRequest `json:"flight,omitempty"`
	Hotel  *legRequest `json:"hotel,omitempty"`
}

type paymentResponse struct {
	PaymentID  string `json:"payment_id"`
	ExternalID string `json:"external_id,omitempty"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
	Amount   string `json:"amount"`
	Status   string `json:"status"`
	Reason   string `json:"reason"`
}

type legResponse struct {
	LegID      string `json:"leg_id"`
	OfferRef   string `json:"offer_ref"`
	ExternalID string `json:"external_id,omitempty"`
	Amount     string `json:"amount"`
	Taxes      string `json:"taxes"`
	Status     string `json:"status"`
}

type bookingResponse struct {
	BookingID   string `json:"booking_id"`
	ClientID    string `json:"client_id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	TotalAmount string `json:"total_amount"`
	Currency    string `json:"currency"`

	HolderEmail string `json:"holder_email"`

	Flight *legResponse `json:"flight,omitempty"`
	Hotel  *legResponse `json:"hotel,omitempty"`

	Payments []paymentResponse `json:"payments"`
	Refunds  []refundResponse  `json:"refunds,omitempty"`

	CancelReason string `json:"cancel_reason,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func (s Server) PostBooking(c echo.Context) error {
	var request postBookingRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	bookReq, err := toBookRequest(request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	booking, err := s.coordinator.BookAndPay(c.Request().Context(), bookReq)
	if err != nil {
		if entity.BookingErrorCodeOf(err) == entity.CodeUnknownOutcome {
			// The charge outcome is unresolved; the booking exists and
			// reconciliation will finish the saga.
			return c.JSON(http.StatusAccepted, toBookingResponse(booking))
		}
		return bookingHTTPError(err)
	}

	status := http.StatusCreated
	if booking.Status == entity.BookingStatusPending {
		status = http.StatusAccepted
	}

	return c.JSON(status, toBookingResponse(booking))
}

func (s Server) GetBooking(c echo.Context) error {
	booking, err := s.bookingsRepo.GetByID(c.Request().Context(), c.Param("booking_id"))
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "booking not found")
		}
		return err
	}

	return c.JSON(http.StatusOK, toBookingResponse(booking))
}

type postCancelRequest struct {
	RefundAmount string `json:"refund_amount"`
	Reason       string `json:"reason"`
}

type postCancelResponse struct {
	Booking               bookingResponse `json:"booking"`
	RefundIssued          bool            `json:"refund_issued"`
	RefundAmount          string          `json:"refund_amount"`
	FailedSupplierCancels []string        `json:"failed_supplier_cancels,omitempty"`
}

func (s Server) PostCancelBooking(c echo.Context) error {
	var request postCancelRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	refundAmount, err := decimal.NewFromString(request.RefundAmount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid refund_amount")
	}

	result, err := s.coordinator.CancelBooking(c.Request().Context(), c.Param("booking_id"), refundAmount, request.Reason)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "booking not found")
		}
		return bookingHTTPError(err)
	}

	return c.JSON(http.StatusOK, postCancelResponse{
		Booking:               toBookingResponse(result.Booking),
		RefundIssued:          result.RefundIssued,
		RefundAmount:          result.RefundAmount.StringFixedBank(2),
		FailedSupplierCancels: result.FailedSupplierCancels,
	})
}

// bookingHTTPError maps the saga's error taxonomy onto HTTP statuses; the
// code travels in the body so the caller can tell retryable from
// terminal.
func bookingHTTPError(err error) error {
	code := entity.BookingErrorCodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case entity.CodeInvalidRequest:
		status = http.StatusBadRequest
	case entity.CodeVerificationFailed, entity.CodeConcurrencyConflict:
		status = http.StatusConflict
	case entity.CodePaymentFailed:
		status = http.StatusPaymentRequired
	case entity.CodeReservationFailed:
		status = http.StatusConflict
	case entity.CodePartialCompensation, entity.CodeUnknownOutcome:
		status = http.StatusInternalServerError
	case "":
		return err
	}

	return echo.NewHTTPError(status, map[string]string{
		"code":    string(code),
		"message": err.Error(),
	})
}

func toBookRequest(r postBookingRequest) (saga.BookRequest, error) {
	total, err := decimal.NewFromString(r.TotalAmount)
	if err != nil {
		return saga.BookRequest{}, errors.New("invalid total_amount")
	}

	commission, err := optionalDecimal(r.Commission)
	if err != nil {
		return saga.BookRequest{}, errors.New("invalid commission")
	}
	discount, err := optionalDecimal(r.Discount)
	if err != nil {
		return saga.BookRequest{}, errors.New("invalid discount")
	}

	req := saga.BookRequest{
		ClientID:      r.ClientID,
		AgentID:       r.AgentID,
		Type:          entity.BookingType(r.Type),
		TotalAmount:   total,
		Commission:    commission,
		Discount:      discount,
		Currency:      r.Currency,
		PaymentToken:  r.PaymentToken,
		PaymentMethod: r.PaymentMethod,
		Holder: entity.TravelerDetails{
			Name:  r.HolderName,
			Email: r.HolderEmail,
			Phone: r.HolderPhone,
		},
	}

	if r.Flight != nil {
		leg, err := toFlightLeg(*r.Flight)
		if err != nil {
			return saga.BookRequest{}, err
		}
		req.Flight = &leg
	}
	if r.Hotel != nil {
		leg, err := toHotelLeg(*r.Hotel)
		if err != nil {
			return saga.BookRequest{}, err
		}
		req.Hotel = &leg
	}

	return req, nil
}

func toFlightLeg(r legRequest) (saga.FlightLegRequest, error) {
	departureAt, err := optionalTime(r.DepartureAt)
	if err != nil {
		return saga.FlightLegRequest{}, errors.New("invalid departure_at")
	}
	taxes, err := optionalDecimal(r.Taxes)
	if err != nil {
		return saga.FlightLegRequest{}, errors.New("invalid flight taxes")
	}
	deadline, err := optionalTime(r.CancellationDeadline)
	if err != nil {
		return saga.FlightLegRequest{}, errors.New("invalid flight cancellation_deadline")
	}
	penalty, err := optionalDecimal(r.CancellationPenalty)
	if err != nil {
		return saga.FlightLegRequest{}, errors.New("invalid flight cancellation_penalty")
	}

	return saga.FlightLegRequest{
		OfferRef:             r.OfferRef,
		Origin:               r.Origin,
		Destination:          r.Destination,
		DepartureAt:          departureAt,
		Taxes:                taxes,
		CancellationDeadline: deadline,
		CancellationPenalty:  penalty,
	}, nil
}

func toHotelLeg(r legRequest) (saga.HotelLegRequest, error) {
	checkIn, err := optionalTime(r.CheckIn)
	if err != nil {
		return saga.HotelLegRequest{}, errors.New("invalid check_in")
	}
	checkOut, err := optionalTime(r.CheckOut)
	if err != nil {
		return saga.HotelLegRequest{}, errors.New("invalid check_out")
	}
	taxes, err := optionalDecimal(r.Taxes)
	if err != nil {
		return saga.HotelLegRequest{}, errors.New("invalid hotel taxes")
	}
	deadline, err := optionalTime(r.CancellationDeadline)
	if err != nil {
		return saga.HotelLegRequest{}, errors.New("invalid hotel cancellation_deadline")
	}
	penalty, err := optionalDecimal(r.CancellationPenalty)
	if err != nil {
		return saga.HotelLegRequest{}, errors.New("invalid hotel cancellation_penalty")
	}

	return saga.HotelLegRequest{
		OfferRef:             r.OfferRef,
		HotelName:            r.HotelName,
		CheckIn:              checkIn,
		CheckOut:             checkOut,
		Taxes:                taxes,
		CancellationDeadline: deadline,
		CancellationPenalty:  penalty,
	}, nil
}

func optionalDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func optionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func toBookingResponse(b entity.Booking) bookingResponse {
	resp := bookingResponse{
		BookingID:    b.BookingID,
		ClientID:     b.ClientID,
		Type:         string(b.Type),
		Status:       string(b.Status),
		TotalAmount:  b.TotalAmount.StringFixedBank(2),
		Currency:     b.Currency,
		HolderEmail:  b.HolderEmail,
		CancelReason: b.CancelReason,
		CreatedAt:    b.CreatedAt.Format(time.RFC3339),
		Payments: lo.Map(b.Payments, func(p entity.Payment, _ int) paymentResponse {
			return paymentResponse{
				PaymentID:  p.PaymentID,
				ExternalID: p.ExternalID,
				Amount:     p.Amount.StringFixedBank(2),
				Currency:   p.Currency,
				Status:     string(p.Status),
			}
		}),
		Refunds: lo.Map(b.Refunds, func(r entity.Refund, _ int) refundResponse {
			return refundResponse{
				RefundID: r.RefundID,
				Amount:   r.Amount.StringFixedBank(2),
				Status:   string(r.Status),
				Reason:   r.Reason,
			}
		}),
	}

	if b.Flight != nil {
		resp.Flight = &legResponse{
			LegID:      b.Flight.LegID,
			OfferRef:   b.Flight.OfferRef,
			ExternalID: b.Flight.ExternalID,
			Amount:     b.Flight.Amount.StringFixedBank(2),
			Taxes:      b.Flight.Taxes.StringFixedBank(2),
			Status:     string(b.Flight.Status),
		}
	}
	if b.Hotel != nil {
		resp.Hotel = &legResponse{
			LegID:      b.Hotel.LegID,
			OfferRef:   b.Hotel.OfferRef,
			ExternalID: b.Hotel.ExternalID,
			Amount:     b.Hotel.Amount.StringFixedBank(2),
			Taxes:      b.Hotel.Taxes.StringFixedBank(2),
			Status:     string(b.Hotel.Status),
		}
	}

	return resp
}
