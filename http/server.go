package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lithammer/shortuuid/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"travelbook/db"
	"travelbook/entity"
	"travelbook/log"
	"travelbook/saga"
)

type BookingCoordinator interface {
	BookAndPay(ctx context.Context, req saga.BookRequest) (entity.Booking, error)
	CancelBooking(ctx context.Context, bookingID string, refundAmount decimal.Decimal, reason string) (saga.CancellationResult, error)
	Reconcile(ctx context.Context, externalPaymentID string) error
}

type BookingsRepository interface {
	GetByID(ctx context.Context, bookingID string) (entity.Booking, error)
}

type OpsAlertsRepository interface {
	FindAll(ctx context.Context) ([]db.OpsAlert, error)
}

type Server struct {
	addr          string
	e             *echo.Echo
	coordinator   BookingCoordinator
	bookingsRepo  BookingsRepository
	opsAlertsRepo OpsAlertsRepository
}

func NewServer(
	addr string,
	coordinator BookingCoordinator,
	bookingsRepo BookingsRepository,
	opsAlertsRepo OpsAlertsRepository,
) *Server {
	e := newEcho()

	server := &Server{
		addr:          addr,
		e:             e,
		coordinator:   coordinator,
		bookingsRepo:  bookingsRepo,
		opsAlertsRepo: opsAlertsRepo,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	e.POST("/bookings", server.PostBooking)
	e.GET("/bookings/:booking_id", server.GetBooking)
	e.POST("/bookings/:booking_id/cancel", server.PostCancelBooking)

	e.POST("/payments/webhook", server.PostPaymentWebhook)

	e.GET("/ops/alerts", server.GetOpsAlerts)

	return server
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("travelbook"))
	e.Use(correlationIDMiddleware)

	return e
}

// correlationIDMiddleware carries the caller's correlation id into the
// request context and back in the response, generating one when absent.
func correlationIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		correlationID := c.Request().Header.Get("Correlation-ID")
		if correlationID == "" {
			correlationID = shortuuid.New()
		}

		ctx := log.ContextWithCorrelationID(c.Request().Context(), correlationID)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set("Correlation-ID", correlationID)

		return next(c)
	}
}

func (s Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := s.e.Shutdown(context.Background()); err != nil {
			log.FromContext(ctx).WithError(err).Error("failed to shutdown HTTP server")
		}
	}()

	log.FromContext(ctx).WithField("addr", s.addr).Info("[HTTP] server listening")
	if err := s.e.Start(s.addr); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
