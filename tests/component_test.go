package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/lithammer/shortuuid/v3"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"travelbook/app"
	"travelbook/entity"
	"travelbook/gateway"
)

var (
	httpAddress = ":8080"
)

func TestComponent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/testcontainers/testcontainers-go.(*Reaper).Connect.func1"))
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	dbconn, err := sqlx.Open("postgres", postgresURL)
	if err != nil {
		panic(err)
	}
	defer dbconn.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
	defer redisClient.Close()

	flights := &gateway.SupplierMock{
		Name: "flight",
		Offers: map[string]entity.VerifiedOffer{
			"FL-1": {OfferRef: "FL-1", Price: decimal.RequireFromString("650.00"), Currency: "ARS", Available: true},
		},
	}
	hotels := &gateway.SupplierMock{
		Name: "hotel",
		Offers: map[string]entity.VerifiedOffer{
			"HT-1": {OfferRef: "HT-1", Price: decimal.RequireFromString("350.00"), Currency: "ARS", Available: true},
		},
	}
	payments := &gateway.PaymentMock{}
	notifications := &gateway.NotificationMock{}

	done := make(chan struct{})
	go func() {
		<-done
		e := syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		require.NoError(t, e)
	}()

	finished := make(chan struct{})
	go func() {
		a := app.New(
			app.Config{
				HTTPAddr:              httpAddress,
				ReconcileInterval:     time.Second,
				ReconcileStaleAfter:   time.Minute,
				VoucherResendInterval: time.Second,
				VoucherResendBatch:    10,
			},
			dbconn,
			redisClient,
			nil,
			flights,
			hotels,
			payments,
			notifications,
		)
		assert.NoError(t, a.Run(ctx))
		close(finished)
	}()

	defer func() {
		close(done)
		<-finished
	}()

	waitForHttpServer(t)

	booking := sendBooking(t, packageBookingRequest(), http.StatusCreated)
	require.Equal(t, "CONFIRMED", booking.Status)
	require.NotNil(t, booking.Flight)
	require.NotNil(t, booking.Hotel)
	assert.NotEmpty(t, booking.Flight.ExternalID)
	assert.NotEmpty(t, booking.Hotel.ExternalID)

	assertVoucherSent(t, notifications, booking.BookingID)

	cancelResult := cancelBooking(t, booking.BookingID, "1000.00", "client request")
	assert.Equal(t, "CANCELLED", cancelResult.Booking.Status)
	assert.True(t, cancelResult.RefundIssued)
	assert.Empty(t, cancelResult.FailedSupplierCancels)

	assertCancellationSent(t, notifications, booking.BookingID)
	assertRefundNoticeSent(t, notifications, booking.BookingID)
}

func packageBookingRequest() map[string]any {
	return map[string]any{
		"client_id":     shortuuid.New(),
		"agent_id":      "agent-1",
		"type":          "PACKAGE",
		"total_amount":  "1000.00",
		"currency":      "ARS",
		"payment_token": "tok-1",
		"holder_name":   "Ana Gonzalez",
		"holder_email":  "ana@test.io",
		"flight": map[string]any{
			"offer_ref":    "FL-1",
			"origin":       "EZE",
			"destination":  "MAD",
			"departure_at": time.Now().Add(30 * 24 * time.Hour).Format(time.RFC3339),
		},
		"hotel": map[string]any{
			"offer_ref":  "HT-1",
			"hotel_name": "Gran Hotel",
			"check_in":   time.Now().Add(30 * 24 * time.Hour).Format(time.RFC3339),
			"check_out":  time.Now().Add(37 * 24 * time.Hour).Format(time.RFC3339),
		},
	}
}

type legResponse struct {
	LegID      string `json:"leg_id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

type bookingResponse struct {
	BookingID string       `json:"booking_id"`
	Status    string       `json:"status"`
	Flight    *legResponse `json:"flight"`
	Hotel     *legResponse `json:"hotel"`
}

type cancelResponse struct {
	Booking               bookingResponse `json:"booking"`
	RefundIssued          bool            `json:"refund_issued"`
	RefundAmount          string          `json:"refund_amount"`
	FailedSupplierCancels []string        `json:"failed_supplier_cancels"`
}

func sendBooking(t *testing.T, req map[string]any, expectedStatus int) bookingResponse {
	t.Helper()

	resp := postJSON(t, "http://localhost:8080/bookings", req)
	defer resp.Body.Close()
	require.Equal(t, expectedStatus, resp.StatusCode)

	var booking bookingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&booking))
	return booking
}

func cancelBooking(t *testing.T, bookingID, refundAmount, reason string) cancelResponse {
	t.Helper()

	resp := postJSON(t, "http://localhost:8080/bookings/"+bookingID+"/cancel", map[string]any{
		"refund_amount": refundAmount,
		"reason":        reason,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result cancelResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}

func postJSON(t *testing.T, url string, body map[string]any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(payload))
	require.NoError(t, err)

	httpReq.Header.Set("Correlation-ID", shortuuid.New())
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(t, err)
	return resp
}

func assertVoucherSent(t *testing.T, notifications *gateway.NotificationMock, bookingID string) {
	assert.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			assert.Contains(t, notifications.SentVouchers(), bookingID, "voucher for booking %s not sent", bookingID)
		},
		10*time.Second,
		100*time.Millisecond,
	)
}

func assertCancellationSent(t *testing.T, notifications *gateway.NotificationMock, bookingID string) {
	assert.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			assert.Contains(t, notifications.SentCancellations(), bookingID, "cancellation notice for booking %s not sent", bookingID)
		},
		10*time.Second,
		100*time.Millisecond,
	)
}

func assertRefundNoticeSent(t *testing.T, notifications *gateway.NotificationMock, bookingID string) {
	assert.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			assert.Contains(t, notifications.SentRefundNotices(), bookingID, "refund notice for booking %s not sent", bookingID)
		},
		10*time.Second,
		100*time.Millisecond,
	)
}

func waitForHttpServer(t *testing.T) {
	t.Helper()

	require.EventuallyWithT(
		t,
		func(t *assert.CollectT) {
			resp, err := http.Get("http://localhost:8080/health")
			if !assert.NoError(t, err) {
				return
			}
			defer resp.Body.Close()

			if assert.Less(t, resp.StatusCode, 300, "API not ready, http status: %d", resp.StatusCode) {
				return
			}
		},
		time.Second*10,
		time.Millisecond*50,
	)
}
