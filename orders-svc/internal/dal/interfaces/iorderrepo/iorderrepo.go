package iorderrepo

import (
	"context"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/models/order"
)

// IOrderRepository is an interface for the order store.
type IOrderRepository interface {
	Create(ctx context.Context, o order.Order) (order.Order, error)
	FindByID(ctx context.Context, id string) (order.Order, error)
	FindAll(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error)
	// Update persists o only while the stored status still equals expected.
	// It returns dalerr.ErrConcurrentUpdate when another writer changed the status first.
	Update(ctx context.Context, o order.Order, expected order.Status) (order.Order, error)
}
