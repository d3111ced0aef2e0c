package gateway

import (
	"context"
	"net/http"
	"time"

	"travelbook/entity"
)

// NotificationClient sends booking vouchers and cancellation emails.
// Callers treat it as fire-and-forget: a send failure never reverses a
// booking or cancellation decision.
type NotificationClient struct {
	http httpClient
}

func NewNotificationClient(baseURL string, timeout time.Duration) *NotificationClient {
	return &NotificationClient{http: newHTTPClient(baseURL, timeout)}
}

type sendVoucherRequest struct {
	BookingID string `json:"booking_id"`
	Email     string `json:"email"`
}

type sendEmailRequest struct {
	BookingID string `json:"booking_id"`
	Email     string `json:"email"`
	Template  string `json:"template"`
	Detail    string `json:"detail"`
}

func (c *NotificationClient) SendVoucher(ctx context.Context, booking entity.Booking) error {
	return c.http.doJSON(ctx, "notification.SendVoucher", http.MethodPost, "/vouchers", sendVoucherRequest{
		BookingID: booking.BookingID,
		Email:     booking.HolderEmail,
	}, nil)
}

func (c *NotificationClient) SendCancellation(ctx context.Context, bookingID, email, reason string) error {
	return c.http.doJSON(ctx, "notification.SendCancellation", http.MethodPost, "/emails", sendEmailRequest{
		BookingID: bookingID,
		Email:     email,
		Template:  "booking-cancelled",
		Detail:    reason,
	}, nil)
}

func (c *NotificationClient) SendRefundNotice(ctx context.Context, bookingID, email, amount string) error {
	return c.http.doJSON(ctx, "notification.SendRefundNotice", http.MethodPost, "/emails", sendEmailRequest{
		BookingID: bookingID,
		Email:     email,
		Template:  "refund-completed",
		Detail:    amount,
	}, nil)
}
