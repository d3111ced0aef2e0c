package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"travelbook/entity"
)

// PaymentClient adapts the payment processor.
type PaymentClient struct {
	http httpClient
}

func NewPaymentClient(baseURL string, timeout time.Duration) *PaymentClient {
	return &PaymentClient{http: newHTTPClient(baseURL, timeout)}
}

type chargeRequest struct {
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Token           string `json:"token"`
	DeduplicationID string `json:"deduplication_id"`
}

type chargeResponse struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

type refundRequest struct {
	PaymentReference string `json:"payment_reference"`
	Amount           string `json:"amount"`
	Reason           string `json:"reason"`
	DeduplicationID  string `json:"deduplication_id"`
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

// Charge attempts one capture. The idempotency key deduplicates retries
// gateway-side; a rejection comes back as a result, not an error.
func (c *PaymentClient) Charge(ctx context.Context, amount decimal.Decimal, currency, token, idempotencyKey string) (entity.ChargeResult, error) {
	var resp chargeResponse

	err := c.http.doJSON(ctx, "payment.Charge", http.MethodPost, "/charges", chargeRequest{
		Amount:          amount.StringFixedBank(2),
		Currency:        currency,
		Token:           token,
		DeduplicationID: idempotencyKey,
	}, &resp)
	if err != nil {
		if entity.GatewayErrorKindOf(err) == entity.GatewayRejected {
			return entity.ChargeResult{Status: entity.PaymentStatusRejected}, nil
		}
		return entity.ChargeResult{}, err
	}

	return entity.ChargeResult{
		ExternalPaymentID: resp.PaymentID,
		Status:            mapPaymentStatus(resp.Status),
	}, nil
}

func (c *PaymentClient) GetStatus(ctx context.Context, externalPaymentID string) (entity.PaymentStatus, error) {
	var resp chargeResponse

	err := withRetry(ctx, func() error {
		return c.http.doJSON(ctx, "payment.GetStatus", http.MethodGet, "/charges/"+externalPaymentID, nil, &resp)
	})
	if err != nil {
		return "", err
	}

	return mapPaymentStatus(resp.Status), nil
}

func (c *PaymentClient) Refund(ctx context.Context, externalPaymentID string, amount decimal.Decimal, reason, idempotencyKey string) (entity.RefundResult, error) {
	var resp refundResponse

	err := c.http.doJSON(ctx, "payment.Refund", http.MethodPost, "/refunds", refundRequest{
		PaymentReference: externalPaymentID,
		Amount:           amount.StringFixedBank(2),
		Reason:           reason,
		DeduplicationID:  idempotencyKey,
	}, &resp)
	if err != nil {
		return entity.RefundResult{}, err
	}

	return entity.RefundResult{
		ExternalRefundID: resp.RefundID,
		Status:           mapRefundStatus(resp.Status),
	}, nil
}

// mapPaymentStatus maps the processor's vocabulary onto ours. Anything
// unrecognized stays PENDING so reconciliation picks it up instead of
// guessing.
func mapPaymentStatus(s string) entity.PaymentStatus {
	switch s {
	case "approved", "succeeded", "captured":
		return entity.PaymentStatusApproved
	case "rejected", "declined", "failed":
		return entity.PaymentStatusRejected
	case "cancelled", "voided", "expired":
		return entity.PaymentStatusCancelled
	case "refunded":
		return entity.PaymentStatusRefunded
	default:
		return entity.PaymentStatusPending
	}
}

func mapRefundStatus(s string) entity.RefundStatus {
	switch s {
	case "completed", "succeeded", "approved":
		return entity.RefundStatusCompleted
	case "failed", "rejected":
		return entity.RefundStatusFailed
	default:
		return entity.RefundStatusPending
	}
}
