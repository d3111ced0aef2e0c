package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	dbLib "travelbook/db"
	"travelbook/http"
	"travelbook/log"
	"travelbook/pubsub"
	"travelbook/pubsub/event"
	"travelbook/pubsub/outbox"
	"travelbook/saga"
)

func init() {
	log.Init(logrus.InfoLevel)
}

type Config struct {
	HTTPAddr string

	ReconcileInterval   time.Duration
	ReconcileStaleAfter time.Duration

	VoucherResendInterval time.Duration
	VoucherResendBatch    int
}

type App struct {
	db              *sqlx.DB
	watermillRouter *message.Router
	httpServer      *http.Server
	reconciler      *saga.ReconciliationWorker
	voucherResender *saga.VoucherResender
	traceProvider   *tracesdk.TracerProvider
}

func New(
	cfg Config,
	db *sqlx.DB,
	redisClient *redis.Client,
	traceProvider *tracesdk.TracerProvider,
	flightsGateway saga.SupplierGateway,
	hotelsGateway saga.SupplierGateway,
	paymentsGateway saga.PaymentGateway,
	notificationService event.NotificationService,
) App {
	watermillLogger := log.NewWatermill(log.FromContext(context.Background()))

	redisPublisher := pubsub.NewRedisPublisher(redisClient, watermillLogger)

	bookingsRepo := dbLib.NewBookingsPostgresRepository(db, watermillLogger)
	opsAlertsRepo := dbLib.NewOpsAlertsPostgresRepository(db)

	coordinator := saga.NewCoordinator(
		flightsGateway,
		hotelsGateway,
		paymentsGateway,
		bookingsRepo,
		opsAlertsRepo,
	)

	eventsHandler := event.NewHandler(notificationService, bookingsRepo)

	postgresSubscriber, err := outbox.NewPostgresSubscriber(db.DB, watermillLogger)
	if err != nil {
		panic(fmt.Errorf("failed to create outbox subscriber: %w", err))
	}
	eventProcessorConfig := pubsub.NewEventProcessorConfig(redisClient, watermillLogger)

	watermillRouter, err := pubsub.NewWatermillRouter(
		postgresSubscriber,
		redisPublisher,
		eventProcessorConfig,
		eventsHandler,
		watermillLogger,
	)
	if err != nil {
		panic(fmt.Errorf("failed to create watermill router: %w", err))
	}

	httpServer := http.NewServer(
		cfg.HTTPAddr,
		coordinator,
		bookingsRepo,
		opsAlertsRepo,
	)

	reconciler := saga.NewReconciliationWorker(
		coordinator,
		bookingsRepo,
		cfg.ReconcileInterval,
		cfg.ReconcileStaleAfter,
	)

	voucherResender := saga.NewVoucherResender(
		bookingsRepo,
		notificationService,
		cfg.VoucherResendInterval,
		cfg.VoucherResendBatch,
	)

	return App{
		db:              db,
		watermillRouter: watermillRouter,
		httpServer:      httpServer,
		reconciler:      reconciler,
		voucherResender: voucherResender,
		traceProvider:   traceProvider,
	}
}

func (a App) Run(ctx context.Context) error {
	if err := dbLib.InitializeDatabaseSchema(a.db); err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		if a.traceProvider == nil {
			return nil
		}
		return a.traceProvider.Shutdown(context.Background())
	})

	g.Go(func() error {
		return a.watermillRouter.Run(ctx)
	})

	g.Go(func() error {
		return a.reconciler.Run(ctx)
	})

	g.Go(func() error {
		return a.voucherResender.Run(ctx)
	})

	g.Go(func() error {
		// The HTTP server starts only after the router is running, so
		// the service is not reachable before its handlers are.
		<-a.watermillRouter.Running()

		return a.httpServer.Run(ctx)
	})

	return g.Wait()
}
