package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"travelbook/entity"
	"travelbook/log"
)

type paymentWebhookRequest struct {
	ExternalPaymentID string `json:"external_payment_id"`
	NewStatus         string `json:"new_status"`
}

// PostPaymentWebhook handles the gateway's payment notification. The
// pushed status is a hint only; Reconcile re-fetches the authoritative
// state, so a spoofed or stale webhook cannot move a payment.
func (s Server) PostPaymentWebhook(c echo.Context) error {
	var request paymentWebhookRequest
	if err := c.Bind(&request); err != nil {
		return err
	}
	if request.ExternalPaymentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "external_payment_id is required")
	}

	ctx := c.Request().Context()
	log.FromContext(ctx).
		WithField("external_payment_id", request.ExternalPaymentID).
		WithField("pushed_status", request.NewStatus).
		Info("payment webhook received")

	if err := s.coordinator.Reconcile(ctx, request.ExternalPaymentID); err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			// Unknown payment; acknowledged so the gateway stops
			// retrying, the poll worker owns anything that shows up
			// later.
			return c.NoContent(http.StatusOK)
		}
		return err
	}

	return c.NoContent(http.StatusOK)
}
