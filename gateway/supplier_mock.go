package gateway

import (
	"context"
	"fmt"
	"sync"

	"travelbook/entity"
)

// SupplierMock stands in for a flight or hotel inventory API in tests.
type SupplierMock struct {
	mock sync.Mutex

	// Name prefixes recorded calls, e.g. "flight" or "hotel".
	Name string
	Log  *CallLog

	Offers map[string]entity.VerifiedOffer

	VerifyErr  error
	ReserveErr error
	CancelErr  error

	// ReserveRegistersOnErr makes a failing CreateReservation register
	// the reservation anyway, as a timed-out create that actually landed.
	ReserveRegistersOnErr bool

	Reservations map[string]entity.ReservationStatus
	CancelCalls  []string

	nextReservationID int
}

func (m *SupplierMock) VerifyOffer(ctx context.Context, offerRef string) (entity.VerifiedOffer, error) {
	m.mock.Lock()
	defer m.mock.Unlock()

	m.Log.Record(m.Name + ".VerifyOffer")

	if m.VerifyErr != nil {
		return entity.VerifiedOffer{}, m.VerifyErr
	}

	offer, ok := m.Offers[offerRef]
	if !ok {
		return entity.VerifiedOffer{}, entity.NewGatewayError(entity.GatewayNotAvailable, m.Name+".VerifyOffer", "unknown offer")
	}

	return offer, nil
}

func (m *SupplierMock) CreateReservation(ctx context.Context, reservationRef, offerRef string, traveler entity.TravelerDetails) (string, error) {
	m.mock.Lock()
	defer m.mock.Unlock()

	m.Log.Record(m.Name + ".CreateReservation")

	if m.ReserveErr != nil {
		// The reservation may or may not have been registered supplier
		// side. ReserveRegistersOnErr simulates a create that went
		// through but whose response was lost.
		if m.ReserveRegistersOnErr {
			if m.Reservations == nil {
				m.Reservations = map[string]entity.ReservationStatus{}
			}
			m.Reservations[reservationRef] = entity.ReservationStatusConfirmed
		}
		return "", m.ReserveErr
	}

	externalID := reservationRef
	if externalID == "" {
		m.nextReservationID++
		externalID = fmt.Sprintf("%s-res-%d", m.Name, m.nextReservationID)
	}

	if m.Reservations == nil {
		m.Reservations = map[string]entity.ReservationStatus{}
	}
	m.Reservations[externalID] = entity.ReservationStatusConfirmed

	return externalID, nil
}

func (m *SupplierMock) GetReservation(ctx context.Context, externalID string) (entity.ReservationStatus, error) {
	m.mock.Lock()
	defer m.mock.Unlock()

	m.Log.Record(m.Name + ".GetReservation")

	status, ok := m.Reservations[externalID]
	if !ok {
		return entity.ReservationStatusNotFound, nil
	}
	return status, nil
}

func (m *SupplierMock) CancelReservation(ctx context.Context, externalID string) error {
	m.mock.Lock()
	defer m.mock.Unlock()

	m.Log.Record(m.Name + ".CancelReservation")
	m.CancelCalls = append(m.CancelCalls, externalID)

	if m.CancelErr != nil {
		return m.CancelErr
	}

	if m.Reservations == nil {
		m.Reservations = map[string]entity.ReservationStatus{}
	}
	m.Reservations[externalID] = entity.ReservationStatusCancelled

	return nil
}
