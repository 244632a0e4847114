package ordersvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/dal/interfaces/iorderrepo"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/models/order"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/services/uservalidator"
	"github.com/corray333/backend-labs/usersync/pkg/dalerr"
	"github.com/corray333/backend-labs/usersync/pkg/events"
	"github.com/corray333/backend-labs/usersync/pkg/metrics"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrInvalidInput is returned for an order without user, without items or with a negative total.
	ErrInvalidInput = errors.New("invalid order input")
	// ErrInvalidUser is returned when the users service reports the user does not exist.
	ErrInvalidUser = errors.New("invalid user")
	// ErrUserUnconfirmed is returned when the user can be confirmed neither by the users service nor by the cache.
	ErrUserUnconfirmed = errors.New("users service unavailable and user not cached")
	// ErrOrderNotFound is returned when no order has the requested id.
	ErrOrderNotFound = errors.New("order not found")
)

const orderIDPrefix = "o_"

type validator interface {
	Validate(ctx context.Context, userID string) uservalidator.Outcome
}

// publisher may be disconnected; a failed publish never fails the order operation.
type publisher interface {
	Publish(ctx context.Context, key events.RoutingKey, payload any) error
}

// OrderService is the order lifecycle manager: it creates validated orders,
// cancels them and announces both transitions on the event bus.
type OrderService struct {
	orderRepo iorderrepo.IOrderRepository
	validator validator
	publisher publisher
	now       func() time.Time
}

// option is a function that configures the OrderService.
type option func(*OrderService)

// MustNewOrderService creates a new OrderService.
func MustNewOrderService(opts ...option) *OrderService {
	s := &OrderService{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.orderRepo == nil {
		panic("ordersvc: order repository is not set")
	}
	if s.validator == nil {
		panic("ordersvc: user validator is not set")
	}
	if s.publisher == nil {
		panic("ordersvc: event publisher is not set")
	}

	return s
}

// WithOrderRepository sets the order store.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithOrderRepository(repo iorderrepo.IOrderRepository) option {
	return func(s *OrderService) {
		s.orderRepo = repo
	}
}

// WithValidator sets the user validator.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithValidator(v validator) option {
	return func(s *OrderService) {
		s.validator = v
	}
}

// WithPublisher sets the event publisher.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPublisher(p publisher) option {
	return func(s *OrderService) {
		s.publisher = p
	}
}

// WithClock overrides the time source used for creation and cancellation timestamps.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *OrderService) {
		s.now = now
	}
}

// CreateOrderInput is the caller supplied part of a new order.
type CreateOrderInput struct {
	UserID string
	Items  []json.RawMessage
	Total  decimal.Decimal
}

func (in CreateOrderInput) validate() error {
	switch {
	case in.UserID == "":
		return fmt.Errorf("%w: userId is required", ErrInvalidInput)
	case len(in.Items) == 0:
		return fmt.Errorf("%w: items must not be empty", ErrInvalidInput)
	case in.Total.IsNegative():
		return fmt.Errorf("%w: total must not be negative", ErrInvalidInput)
	}

	return nil
}

// Create validates the owning user, persists a new order and publishes order.created.
// Nothing is persisted unless the user is usable.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (order.Order, error) {
	ctx, span := otel.Tracer("orders").Start(ctx, "OrderService.Create")
	defer span.End()

	if err := in.validate(); err != nil {
		return order.Order{}, err
	}

	switch outcome := s.validator.Validate(ctx, in.UserID); outcome {
	case uservalidator.OutcomeUsable:
	case uservalidator.OutcomeUnusable:
		return order.Order{}, ErrInvalidUser
	default:
		return order.Order{}, ErrUserUnconfirmed
	}

	created, err := s.orderRepo.Create(ctx, order.Order{
		ID:        orderIDPrefix + uuid.NewString(),
		UserID:    in.UserID,
		Items:     in.Items,
		Total:     in.Total,
		Status:    order.StatusCreated,
		CreatedAt: s.now(),
	})
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to persist order: %w", err)
	}
	span.SetAttributes(attribute.String("order.id", created.ID))

	s.publish(ctx, events.OrderCreated, created)

	return created, nil
}

// Cancel moves the order to cancelled and publishes order.cancelled.
// Cancelling an already cancelled order returns it unchanged and publishes nothing.
func (s *OrderService) Cancel(ctx context.Context, id string) (order.Order, error) {
	ctx, span := otel.Tracer("orders").Start(ctx, "OrderService.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	current, err := s.get(ctx, id)
	if err != nil {
		return order.Order{}, err
	}

	if !current.Cancel(s.now()) {
		return current, nil
	}

	cancelled, err := s.orderRepo.Update(ctx, current, order.StatusCreated)
	if errors.Is(err, dalerr.ErrConcurrentUpdate) {
		// A concurrent cancel won; it owns the event.
		return s.get(ctx, id)
	}
	if err != nil {
		return order.Order{}, mapNotFound(err)
	}

	s.publish(ctx, events.OrderCancelled, cancelled)

	return cancelled, nil
}

// Get returns the order with the given id.
func (s *OrderService) Get(ctx context.Context, id string) (order.Order, error) {
	ctx, span := otel.Tracer("orders").Start(ctx, "OrderService.Get")
	defer span.End()

	return s.get(ctx, id)
}

// List returns orders matching the filter.
func (s *OrderService) List(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error) {
	ctx, span := otel.Tracer("orders").Start(ctx, "OrderService.List")
	defer span.End()

	return s.orderRepo.FindAll(ctx, filter)
}

func (s *OrderService) get(ctx context.Context, id string) (order.Order, error) {
	o, err := s.orderRepo.FindByID(ctx, id)
	if err != nil {
		return order.Order{}, mapNotFound(err)
	}

	return o, nil
}

func mapNotFound(err error) error {
	if errors.Is(err, dalerr.ErrNotFound) {
		return ErrOrderNotFound
	}

	return err
}

func (s *OrderService) publish(ctx context.Context, key events.RoutingKey, o order.Order) {
	if err := s.publisher.Publish(ctx, key, o); err != nil {
		metrics.PublishFailures.WithLabelValues(key.String()).Inc()
		slog.Error("Failed to publish order event",
			"routing_key", key,
			"order_id", o.ID,
			"error", err,
		)
	}
}
