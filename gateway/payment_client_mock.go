package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"travelbook/entity"
)

type ChargeCall struct {
	Amount         decimal.Decimal
	Currency       string
	Token          string
	IdempotencyKey string
}

type RefundCall struct {
	ExternalPaymentID string
	Amount            decimal.Decimal
	Reason            string
}

// PaymentMock stands in for the payment processor in tests.
type PaymentMock struct {
	mock sync.Mutex

	Log *CallLog

	Charges      []ChargeCall
	ChargeStatus entity.PaymentStatus
	ChargeErr    error

	Statuses map[string]entity.PaymentStatus

	Refunds      []RefundCall
	RefundStatus entity.RefundStatus
	RefundErr    error

	nextID int
}

func (m *PaymentMock) Charge(ctx context.Context, amount decimal.Decimal, currency, token, idempotencyKey string) (entity.ChargeResult, error) {
	m.mock.Lock()
	defer m.mock.Unlock()

	m.Log.Record("payment.Charge")

	if m.ChargeErr != nil {
		return entity.ChargeResult{}, m.ChargeErr
	}

	m.Charges = append(m.Charges, ChargeCall{
		Amount:         amount,
		Currency:       currency,
		Token:          token,
		IdempotencyKey: idempotencyKey,
	})

	status := m.ChargeStatus
	if status == "" {
		status = entity.PaymentStatusApproved
	}

	if status == entity.PaymentStatusRejected {
		return entity.ChargeResult{Status: status}, nil
	}

	m.nextID++
	externalID := fmt.Sprintf("pay-%d", m.nextID)

	if m.Statuses == nil {
		m.Statuses = map[string]entity.PaymentStatus{}
	}
	m.Statuses[externalID] = status

	return entity.ChargeResult{ExternalPaymentID: externalID, Status: status}, nil
}

func (m *PaymentMock) GetStatus(ctx context.Context, externalPaymentID string) (entity.PaymentStatus, error) {
	m.mock.Lock()
	defer m.mock.Unlock()

	m.Log.Record("payment.GetStatus")

	status, ok := m.Statuses[externalPaymentID]
	if !ok {
		return "", entity.NewGatewayError(entity.GatewayNotAvailable, "payment.GetStatus", "unknown payment")
	}
	return status, nil
}

func (m *PaymentMock) Refund(ctx context.Context, externalPaymentID string, amount decimal.Decimal, reason, idempotencyKey string) (entity.RefundResult, error) {
	m.mock.Lock()
	defer m.mock.Unlock()

	m.Log.Record("payment.Refund")

	if m.RefundErr != nil {
		return entity.RefundResult{}, m.RefundErr
	}

	m.Refunds = append(m.Refunds, RefundCall{
		ExternalPaymentID: externalPaymentID,
		Amount:            amount,
		Reason:            reason,
	})

	status := m.RefundStatus
	if status == "" {
		status = entity.RefundStatusCompleted
	}

	m.nextID++
	return entity.RefundResult{
		ExternalRefundID: fmt.Sprintf("ref-%d", m.nextID),
		Status:           status,
	}, nil
}

// SetStatus seeds the authoritative gateway-side status for
// reconciliation tests.
func (m *PaymentMock) SetStatus(externalPaymentID string, status entity.PaymentStatus) {
	m.mock.Lock()
	defer m.mock.Unlock()

	if m.Statuses == nil {
		m.Statuses = map[string]entity.PaymentStatus{}
	}
	m.Statuses[externalPaymentID] = status
}
