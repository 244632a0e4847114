package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/dal/interfaces/iorderrepo"
	memoryrepo "github.com/corray333/backend-labs/usersync/orders-svc/internal/dal/repositories/order/memory"
	postgresrepo "github.com/corray333/backend-labs/usersync/orders-svc/internal/dal/repositories/order/postgres"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/dal/usercache"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/dal/usersclient"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/services/uservalidator"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/transport/consumer"
	httptransport "github.com/corray333/backend-labs/usersync/orders-svc/internal/transport/http"
	sharedconfig "github.com/corray333/backend-labs/usersync/pkg/config"
	"github.com/corray333/backend-labs/usersync/pkg/events"
	"github.com/corray333/backend-labs/usersync/pkg/metrics"
	"github.com/corray333/backend-labs/usersync/pkg/otel"
	"github.com/corray333/backend-labs/usersync/pkg/outbox"
	"github.com/corray333/backend-labs/usersync/pkg/postgres"
	"github.com/corray333/backend-labs/usersync/pkg/rabbitmq"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

type eventPublisher interface {
	Publish(ctx context.Context, key events.RoutingKey, payload any) error
}

// App represents the application.
type App struct {
	otel           *otel.OtelController
	rabbitClient   *rabbitmq.Client
	postgresClient *postgres.Client
	outboxWorker   *outbox.Worker
	orderSvc       *ordersvc.OrderService
	transport      *httptransport.HTTPTransport
	consumer       *consumer.Consumer
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	a := &App{
		otel:         otel.MustInitOtel("orders-svc", sharedconfig.JaegerEndpoint()),
		rabbitClient: rabbitmq.NewClient(sharedconfig.RabbitMQ()),
	}

	cache := usercache.New()
	metrics.MustRegisterUserCacheSize(cache.Len)

	usersClient := usersclient.NewClient(
		viper.GetString("users.base_url"),
		otelhttp.NewTransport(http.DefaultTransport),
	)
	validator := uservalidator.New(
		usersClient,
		cache,
		time.Duration(viper.GetInt("users.timeout_ms"))*time.Millisecond,
	)

	var (
		orderRepo iorderrepo.IOrderRepository
		publisher eventPublisher = a.rabbitClient
	)
	if sharedconfig.UsesPostgres() {
		a.postgresClient = postgres.MustNewClient(
			viper.GetString("postgres.dsn"),
			viper.GetString("postgres.migrations_path"),
		)
		orderRepo = postgresrepo.NewPostgresOrderRepository(a.postgresClient)

		outboxRepo := outbox.NewPostgresRepository(a.postgresClient)
		publisher = outbox.NewPublisher(a.rabbitClient, outboxRepo, sharedconfig.OutboxMaxRetries())
		a.outboxWorker = outbox.NewWorker(outboxRepo, a.rabbitClient, sharedconfig.OutboxWorker())
	} else {
		orderRepo = memoryrepo.NewMemoryOrderRepository()
	}

	a.orderSvc = ordersvc.MustNewOrderService(
		ordersvc.WithOrderRepository(orderRepo),
		ordersvc.WithValidator(validator),
		ordersvc.WithPublisher(publisher),
	)

	a.transport = httptransport.NewHTTPTransport(a.orderSvc)
	a.transport.RegisterRoutes()

	a.consumer = consumer.NewConsumer(a.rabbitClient, cache, consumer.Config{
		Queue:       viper.GetString("rabbitmq.queue"),
		RoutingKeys: events.ParseRoutingKeys(viper.GetStringSlice("rabbitmq.routing_keys")),
		ConsumerTag: viper.GetString("rabbitmq.consumer_tag"),
	})

	slog.Info("Orders service configured",
		"users_base_url", viper.GetString("users.base_url"),
		"storage", viper.GetString("storage.driver"),
	)

	return a
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.rabbitClient.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	// The consumer outliving the broker only freezes the cache; it never stops the app.
	g.Go(func() error {
		return a.consumer.Run(gctx)
	})

	if a.outboxWorker != nil {
		g.Go(func() error {
			a.outboxWorker.Start(gctx)

			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := a.transport.Shutdown(shutdownCtx); err != nil {
			return err
		}
		slog.Info("HTTP server stopped gracefully")

		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("Application error", "error", err)
	}

	a.close()
	slog.Info("Application shutdown complete")
}

func (a *App) close() {
	if a.outboxWorker != nil {
		a.outboxWorker.Stop()
	}

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	if a.postgresClient != nil {
		a.postgresClient.Close()
		slog.Info("Database connection closed gracefully")
	}

	if err := a.otel.Shutdown(); err != nil {
		slog.Error("Tracer provider shutdown error", "error", err)
	}
}
