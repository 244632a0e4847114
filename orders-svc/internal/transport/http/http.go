package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/models/order"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/services/ordersvc"
	cancelorder "github.com/corray333/backend-labs/usersync/orders-svc/internal/transport/http/cancel_order"
	createorder "github.com/corray333/backend-labs/usersync/orders-svc/internal/transport/http/create_order"
	getorder "github.com/corray333/backend-labs/usersync/orders-svc/internal/transport/http/get_order"
	listorders "github.com/corray333/backend-labs/usersync/orders-svc/internal/transport/http/list_orders"
	"github.com/corray333/backend-labs/usersync/pkg/http/middleware/ratelimit"
	"github.com/corray333/backend-labs/usersync/pkg/http/middleware/trace"
	"github.com/corray333/backend-labs/usersync/pkg/http/response"
	"github.com/corray333/backend-labs/usersync/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

const serviceName = "orders"

type service interface {
	Create(ctx context.Context, in ordersvc.CreateOrderInput) (order.Order, error)
	Cancel(ctx context.Context, id string) (order.Order, error)
	Get(ctx context.Context, id string) (order.Order, error)
	List(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
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
	slog.Info("Orders HTTP server listening", "addr", h.server.Addr)

	return h.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Router exposes the handler tree.
func (h *HTTPTransport) Router() http.Handler {
	return h.router
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/health", h.health)
	h.router.Handle("/metrics", promhttp.Handler())

	h.router.Get("/", h.listOrders)
	h.router.Post("/", h.createOrder)
	h.router.Get("/{id}", h.getOrder)
	h.router.Delete("/{id}", h.cancelOrder)
}

func (h *HTTPTransport) health(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{"ok": true, "service": serviceName})
}

func (h *HTTPTransport) createOrder(w http.ResponseWriter, r *http.Request) {
	createorder.CreateOrder(w, r, h.service)
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.service)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.service)
}

func (h *HTTPTransport) cancelOrder(w http.ResponseWriter, r *http.Request) {
	cancelorder.CancelOrder(w, r, h.service)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(middleware.Recoverer)
	router.Use(trace.NewTraceMiddleware(serviceName))

	if rps := viper.GetFloat64("server.http.rate_limit.rps"); rps > 0 {
		limiter := ratelimit.NewLimiter(rps, viper.GetInt("server.http.rate_limit.burst"))
		router.Use(limiter.Middleware)
	}

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
