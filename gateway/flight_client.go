package gateway

import (
	"context"
	"net/http"
	"time"

	"travelbook/entity"
)

// FlightClient adapts the flight inventory API.
type FlightClient struct {
	http httpClient
}

func NewFlightClient(baseURL string, timeout time.Duration) *FlightClient {
	return &FlightClient{http: newHTTPClient(baseURL, timeout)}
}

type verifyOfferResponse struct {
	OfferRef  string `json:"offer_ref"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
	Available bool   `json:"available"`
}

type createReservationRequest struct {
	ReservationRef string                 `json:"reservation_ref"`
	OfferRef       string                 `json:"offer_ref"`
	Traveler       entity.TravelerDetails `json:"traveler"`
}

type createReservationResponse struct {
	ReservationID string `json:"reservation_id"`
}

type reservationStatusResponse struct {
	Status string `json:"status"`
}

func (c *FlightClient) VerifyOffer(ctx context.Context, offerRef string) (entity.VerifiedOffer, error) {
	var resp verifyOfferResponse

	err := withRetry(ctx, func() error {
		return c.http.doJSON(ctx, "flight.VerifyOffer", http.MethodGet, "/offers/"+offerRef, nil, &resp)
	})
	if err != nil {
		return entity.VerifiedOffer{}, err
	}

	return parseVerifiedOffer(resp)
}

// CreateReservation books the offer. reservationRef is a caller-generated
// reference the supplier registers the reservation under, so a timed-out
// call can still be resolved with GetReservation.
func (c *FlightClient) CreateReservation(ctx context.Context, reservationRef, offerRef string, traveler entity.TravelerDetails) (string, error) {
	var resp createReservationResponse

	err := c.http.doJSON(ctx, "flight.CreateReservation", http.MethodPost, "/reservations", createReservationRequest{
		ReservationRef: reservationRef,
		OfferRef:       offerRef,
		Traveler:       traveler,
	}, &resp)
	if err != nil {
		return "", err
	}

	return resp.ReservationID, nil
}

func (c *FlightClient) GetReservation(ctx context.Context, externalID string) (entity.ReservationStatus, error) {
	var resp reservationStatusResponse

	err := withRetry(ctx, func() error {
		return c.http.doJSON(ctx, "flight.GetReservation", http.MethodGet, "/reservations/"+externalID, nil, &resp)
	})
	if err != nil {
		if entity.GatewayErrorKindOf(err) == entity.GatewayNotAvailable {
			return entity.ReservationStatusNotFound, nil
		}
		return "", err
	}

	return entity.ReservationStatus(resp.Status), nil
}

func (c *FlightClient) CancelReservation(ctx context.Context, externalID string) error {
	return c.http.doJSON(ctx, "flight.CancelReservation", http.MethodDelete, "/reservations/"+externalID, nil, nil)
}
