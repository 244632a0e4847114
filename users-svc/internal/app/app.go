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

	sharedconfig "github.com/corray333/backend-labs/usersync/pkg/config"
	"github.com/corray333/backend-labs/usersync/pkg/events"
	"github.com/corray333/backend-labs/usersync/pkg/otel"
	"github.com/corray333/backend-labs/usersync/pkg/outbox"
	"github.com/corray333/backend-labs/usersync/pkg/postgres"
	"github.com/corray333/backend-labs/usersync/pkg/rabbitmq"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/dal/interfaces/iuserrepo"
	memoryrepo "github.com/corray333/backend-labs/usersync/users-svc/internal/dal/repositories/user/memory"
	postgresrepo "github.com/corray333/backend-labs/usersync/users-svc/internal/dal/repositories/user/postgres"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/services/usersvc"
	httptransport "github.com/corray333/backend-labs/usersync/users-svc/internal/transport/http"
	"github.com/spf13/viper"
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
	userSvc        *usersvc.UserService
	transport      *httptransport.HTTPTransport
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	a := &App{
		otel:         otel.MustInitOtel("users-svc", sharedconfig.JaegerEndpoint()),
		rabbitClient: rabbitmq.NewClient(sharedconfig.RabbitMQ()),
	}

	var (
		userRepo  iuserrepo.IUserRepository
		publisher eventPublisher = a.rabbitClient
	)
	if sharedconfig.UsesPostgres() {
		a.postgresClient = postgres.MustNewClient(
			viper.GetString("postgres.dsn"),
			viper.GetString("postgres.migrations_path"),
		)
		userRepo = postgresrepo.NewPostgresUserRepository(a.postgresClient)

		outboxRepo := outbox.NewPostgresRepository(a.postgresClient)
		publisher = outbox.NewPublisher(a.rabbitClient, outboxRepo, sharedconfig.OutboxMaxRetries())
		a.outboxWorker = outbox.NewWorker(outboxRepo, a.rabbitClient, sharedconfig.OutboxWorker())
	} else {
		userRepo = memoryrepo.NewMemoryUserRepository()
	}

	a.userSvc = usersvc.MustNewUserService(
		usersvc.WithUserRepository(userRepo),
		usersvc.WithPublisher(publisher),
	)

	a.transport = httptransport.NewHTTPTransport(a.userSvc)
	a.transport.RegisterRoutes()

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
