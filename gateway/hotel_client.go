package gateway

import (
	"context"
	"net/http"
	"time"

	"travelbook/entity"
)

// HotelClient adapts the hotel inventory API. Same contract shape as the
// flight side; the two suppliers differ only in wire details kept inside
// this package.
type HotelClient struct {
	http httpClient
}

func NewHotelClient(baseURL string, timeout time.Duration) *HotelClient {
	return &HotelClient{http: newHTTPClient(baseURL, timeout)}
}

func (c *HotelClient) VerifyOffer(ctx context.Context, offerRef string) (entity.VerifiedOffer, error) {
	var resp verifyOfferResponse

	err := withRetry(ctx, func() error {
		return c.http.doJSON(ctx, "hotel.VerifyOffer", http.MethodGet, "/rates/"+offerRef, nil, &resp)
	})
	if err != nil {
		return entity.VerifiedOffer{}, err
	}

	return parseVerifiedOffer(resp)
}

func (c *HotelClient) CreateReservation(ctx context.Context, reservationRef, offerRef string, traveler entity.TravelerDetails) (string, error) {
	var resp createReservationResponse

	err := c.http.doJSON(ctx, "hotel.CreateReservation", http.MethodPost, "/bookings", createReservationRequest{
		ReservationRef: reservationRef,
		OfferRef:       offerRef,
		Traveler:       traveler,
	}, &resp)
	if err != nil {
		return "", err
	}

	return resp.ReservationID, nil
}

func (c *HotelClient) GetReservation(ctx context.Context, externalID string) (entity.ReservationStatus, error) {
	var resp reservationStatusResponse

	err := withRetry(ctx, func() error {
		return c.http.doJSON(ctx, "hotel.GetReservation", http.MethodGet, "/bookings/"+externalID, nil, &resp)
	})
	if err != nil {
		if entity.GatewayErrorKindOf(err) == entity.GatewayNotAvailable {
			return entity.ReservationStatusNotFound, nil
		}
		return "", err
	}

	return entity.ReservationStatus(resp.Status), nil
}

func (c *HotelClient) CancelReservation(ctx context.Context, externalID string) error {
	return c.http.doJSON(ctx, "hotel.CancelReservation", http.MethodDelete, "/bookings/"+externalID, nil, nil)
}
