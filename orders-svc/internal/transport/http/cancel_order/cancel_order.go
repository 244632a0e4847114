package cancelorder

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/models/order"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/services/ordersvc"
	"github.com/corray333/backend-labs/usersync/pkg/http/response"
	"github.com/go-chi/chi/v5"
)

type service interface {
	Cancel(ctx context.Context, id string) (order.Order, error)
}

// CancelOrder cancels the order; repeating it returns the already cancelled order.
func CancelOrder(w http.ResponseWriter, r *http.Request, service service) {
	o, err := service.Cancel(r.Context(), chi.URLParam(r, "id"))
	switch {
	case err == nil:
		response.JSON(w, http.StatusOK, o)
	case errors.Is(err, ordersvc.ErrOrderNotFound):
		response.Error(w, http.StatusNotFound, "not found")
	default:
		response.Error(w, http.StatusInternalServerError, "internal error")
		slog.Error("Error cancelling order", "error", err)
	}
}
