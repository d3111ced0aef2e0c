package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/redis/go-redis/v9"

	"travelbook/app"
	"travelbook/db"
	"travelbook/gateway"
	"travelbook/tracing"
)

type options struct {
	HTTPAddr    string `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"HTTP listen address"`
	PostgresURL string `long:"postgres-url" env:"POSTGRES_URL" required:"true" description:"Postgres connection URL"`
	RedisAddr   string `long:"redis-addr" env:"REDIS_ADDR" default:"localhost:6379" description:"Redis address"`

	FlightAPIURL       string        `long:"flight-api-url" env:"FLIGHT_API_URL" required:"true" description:"Flight inventory API base URL"`
	HotelAPIURL        string        `long:"hotel-api-url" env:"HOTEL_API_URL" required:"true" description:"Hotel inventory API base URL"`
	PaymentAPIURL      string        `long:"payment-api-url" env:"PAYMENT_API_URL" required:"true" description:"Payment gateway API base URL"`
	NotificationAPIURL string        `long:"notification-api-url" env:"NOTIFICATION_API_URL" required:"true" description:"Notification service base URL"`
	GatewayTimeout     time.Duration `long:"gateway-timeout" env:"GATEWAY_TIMEOUT" default:"10s" description:"Per-call timeout for outbound gateway requests"`

	ReconcileInterval   time.Duration `long:"reconcile-interval" env:"RECONCILE_INTERVAL" default:"30s" description:"How often stale pending payments are reconciled"`
	ReconcileStaleAfter time.Duration `long:"reconcile-stale-after" env:"RECONCILE_STALE_AFTER" default:"2m" description:"Age after which a pending payment is reconciled"`

	VoucherResendInterval time.Duration `long:"voucher-resend-interval" env:"VOUCHER_RESEND_INTERVAL" default:"1m" description:"How often unsent vouchers are re-scanned"`
	VoucherResendBatch    int           `long:"voucher-resend-batch" env:"VOUCHER_RESEND_BATCH" default:"50" description:"Max vouchers sent per scan"`

	JaegerEndpoint string `long:"jaeger-endpoint" env:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces" description:"Jaeger collector endpoint"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	traceProvider, err := tracing.ConfigureTraceProvider(opts.JaegerEndpoint)
	if err != nil {
		return fmt.Errorf("failed to configure trace provider: %w", err)
	}

	dbConn, err := db.NewSQLXConnection(opts.PostgresURL)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer dbConn.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: opts.RedisAddr})
	defer redisClient.Close()

	a := app.New(
		app.Config{
			HTTPAddr:              opts.HTTPAddr,
			ReconcileInterval:     opts.ReconcileInterval,
			ReconcileStaleAfter:   opts.ReconcileStaleAfter,
			VoucherResendInterval: opts.VoucherResendInterval,
			VoucherResendBatch:    opts.VoucherResendBatch,
		},
		dbConn,
		redisClient,
		traceProvider,
		gateway.NewFlightClient(opts.FlightAPIURL, opts.GatewayTimeout),
		gateway.NewHotelClient(opts.HotelAPIURL, opts.GatewayTimeout),
		gateway.NewPaymentClient(opts.PaymentAPIURL, opts.GatewayTimeout),
		gateway.NewNotificationClient(opts.NotificationAPIURL, opts.GatewayTimeout),
	)

	return a.Run(ctx)
}
