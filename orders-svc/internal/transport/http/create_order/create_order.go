package createorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/models/order"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/usersync/pkg/http/response"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// service is an interface for the service layer.
type service interface {
	Create(ctx context.Context, in ordersvc.CreateOrderInput) (order.Order, error)
}

var validate = validator.New()

// createOrderRequest represents a create order request.
type createOrderRequest struct {
	UserID string            `json:"userId" validate:"required"`
	Items  []json.RawMessage `json:"items"  validate:"required,min=1"`
	Total  *float64          `json:"total"  validate:"required,gte=0"`
}

// Validate validates the create order request.
func (r *createOrderRequest) Validate() error {
	return validate.Struct(r)
}

func (r *createOrderRequest) toInput() ordersvc.CreateOrderInput {
	return ordersvc.CreateOrderInput{
		UserID: r.UserID,
		Items:  r.Items,
		Total:  decimal.NewFromFloat(*r.Total),
	}
}

// CreateOrder handles the create order request.
func CreateOrder(w http.ResponseWriter, r *http.Request, service service) {
	req := createOrderRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "userId, items[] and a numeric total are required")
		slog.Warn("Error decoding request body for create order", "error", err)

		return
	}

	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, "userId, items[] and a numeric total are required")
		slog.Warn("Error validating request body for create order", "error", err)

		return
	}

	created, err := service.Create(r.Context(), req.toInput())
	switch {
	case err == nil:
		response.JSON(w, http.StatusCreated, created)
	case errors.Is(err, ordersvc.ErrInvalidUser):
		response.Error(w, http.StatusBadRequest, "invalid user")
	case errors.Is(err, ordersvc.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ordersvc.ErrUserUnconfirmed):
		response.Error(w, http.StatusServiceUnavailable, "users service unavailable and user not found in cache")
	default:
		response.Error(w, http.StatusInternalServerError, "internal error")
		slog.Error("Error creating order", "error", err)
	}
}
