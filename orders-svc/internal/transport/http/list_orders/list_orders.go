package listorders

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/models/order"
	"github.com/corray333/backend-labs/usersync/pkg/http/response"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/schema"
)

type service interface {
	List(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
}

var (
	decoder  = newDecoder()
	validate = validator.New()
)

func newDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)

	return d
}

type queryOrdersRequest struct {
	UserID string `schema:"userId"`
	Status string `schema:"status" validate:"omitempty,oneof=created cancelled"`
	Limit  int    `schema:"limit"  validate:"gte=0"`
	Offset int    `schema:"offset" validate:"gte=0"`
}

func (q *queryOrdersRequest) ToModel() order.QueryOrdersModel {
	return order.QueryOrdersModel{
		UserID: q.UserID,
		Status: order.Status(q.Status),
		Limit:  q.Limit,
		Offset: q.Offset,
	}
}

func ListOrders(w http.ResponseWriter, r *http.Request, service service) {
	query := &queryOrdersRequest{}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		slog.Warn("Error decoding request", "error", err)

		return
	}

	if err := validate.Struct(query); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		slog.Warn("Error validating request", "error", err)

		return
	}

	orders, err := service.List(r.Context(), query.ToModel())
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "internal error")
		slog.Error("Error getting orders", "error", err)

		return
	}

	response.JSON(w, http.StatusOK, orders)
}
