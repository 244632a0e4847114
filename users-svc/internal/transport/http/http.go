package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/usersync/pkg/http/middleware/ratelimit"
	"github.com/corray333/backend-labs/usersync/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/usersync/pkg/http/response"
	"github.com/corray333/backend-labs/usersync/pkg/logger"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
	createuser "github.com/corray333/backend-labs/usersync/users-svc/internal/transport/http/create_user"
	getuser "github.com/corray333/backend-labs/usersync/users-svc/internal/transport/http/get_user"
	listusers "github.com/corray333/backend-labs/usersync/users-svc/internal/transport/http/list_users"
	updateuser "github.com/corray333/backend-labs/usersync/users-svc/internal/transport/http/update_user"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

const serviceName = "users"

type service interface {
	Create(ctx context.Context, name, email string) (user.User, error)
	Update(ctx context.Context, id string, update user.UpdateUserModel) (user.User, error)
	Get(ctx context.Context, id string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
}

type HTTPTransport struct {
	server  *http.Server
	router  *chi.Mux
	service service
}

func NewHTTPTransport(service service) *HTTPTransport {
	router := newRouter()
	server := newServer(router)

	return &HTTPTransport{
		server:  server,
		router:  router,
		service: service,
	}
}

func (h *HTTPTransport) Run() error {
	slog.Info("Users HTTP server listening", "addr", h.server.Addr)

	return h.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

func (h *HTTPTransport) Router() http.Handler {
	return h.router
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/health", h.health)
	h.router.Handle("/metrics", promhttp.Handler())

	h.router.Get("/", h.listUsers)
	h.router.Post("/", h.createUser)
	h.router.Get("/{id}", h.getUser)
	h.router.Put("/{id}", h.updateUser)
}

func (h *HTTPTransport) health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{"ok": true, "service": serviceName})
}

func (h *HTTPTransport) createUser(w http.ResponseWriter, r *http.Request) {
	createuser.CreateUser(w, r, h.service)
}

func (h *HTTPTransport) updateUser(w http.ResponseWriter, r *http.Request) {
	updateuser.UpdateUser(w, r, h.service)
}

func (h *HTTPTransport) getUser(w http.ResponseWriter, r *http.Request) {
	getuser.GetUser(w, r, h.service)
}

func (h *HTTPTransport) listUsers(w http.ResponseWriter, r *http.Request) {
	listusers.ListUsers(w, r, h.service)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(middleware.Recoverer)
	router.Use(trace.NewTraceMiddleware(serviceName))

	if rps := viper.GetFloat64("server.http.rate_limit.rps"); rps > 0 {
		router.Use(ratelimit.NewLimiter(rps, viper.GetInt("server.http.rate_limit.burst")).Middleware)
	}

	router.Use(cors.New(cors.Options{
		AllowedOrigins:   viper.GetStringSlice("server.http.cors.allowed_origins"),
		AllowedMethods:   viper.GetStringSlice("server.http.cors.allowed_methods"),
		AllowedHeaders:   viper.GetStringSlice("server.http.cors.allowed_headers"),
		ExposedHeaders:   viper.GetStringSlice("server.http.cors.exposed_headers"),
		AllowCredentials: viper.GetBool("server.http.cors.allow_credentials"),
		MaxAge:           viper.GetInt("server.http.cors.max_age"),
	}).Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
