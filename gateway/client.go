// Package gateway holds the adapters for the external systems the
// coordinator talks to: the flight and hotel inventory APIs, the payment
// processor and the notification service. Each adapter collapses its
// supplier's failure modes into entity.GatewayError kinds; nothing
// upstream ever sees a raw HTTP status.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"travelbook/entity"
)

const defaultTimeout = 10 * time.Second

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string, timeout time.Duration) httpClient {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return httpClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// doJSON performs one request. Transport-level timeouts map to
// GatewayTimeout: the outcome is unknown, not failed.
func (c httpClient) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return fmt.Errorf("could not encode %s request: %w", op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &body)
	if err != nil {
		return fmt.Errorf("could not build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return entity.NewGatewayError(entity.GatewayTimeout, op, err.Error())
		}
		return entity.NewGatewayError(entity.GatewaySupplierDown, op, err.Error())
	}
	defer resp.Body.Close()

	if kind, ok := kindFromStatus(resp.StatusCode); ok {
		return entity.NewGatewayError(kind, op, fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("could not decode %s response: %w", op, err)
		}
	}

	return nil
}

func kindFromStatus(code int) (entity.GatewayErrorKind, bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code == http.StatusNotFound, code == http.StatusGone, code == http.StatusConflict:
		return entity.GatewayNotAvailable, true
	case code == http.StatusTooManyRequests:
		return entity.GatewayRateLimited, true
	case code == http.StatusPaymentRequired, code == http.StatusUnprocessableEntity:
		return entity.GatewayRejected, true
	case code >= 500:
		return entity.GatewaySupplierDown, true
	default:
		return entity.GatewayRejected, true
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func parseVerifiedOffer(resp verifyOfferResponse) (entity.VerifiedOffer, error) {
	price, err := decimal.NewFromString(resp.Price)
	if err != nil {
		return entity.VerifiedOffer{}, fmt.Errorf("could not parse verified price %q: %w", resp.Price, err)
	}

	return entity.VerifiedOffer{
		OfferRef:  resp.OfferRef,
		Price:     price,
		Currency:  resp.Currency,
		Available: resp.Available,
	}, nil
}

// withRetry retries f on retryable gateway errors with exponential
// backoff. Only used on side-effect-free calls; charges and reservations
// are never retried blindly.
func withRetry(ctx context.Context, f func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)

	return backoff.Retry(func() error {
		err := f()
		if err == nil {
			return nil
		}

		var gwErr *entity.GatewayError
		if errors.As(err, &gwErr) && gwErr.Retryable() {
			return err
		}

		return backoff.Permanent(err)
	}, policy)
}
