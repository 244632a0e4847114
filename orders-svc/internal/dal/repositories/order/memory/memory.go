package memoryrepo

import (
	"context"
	"slices"
	"sync"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/models/order"
	"github.com/corray333/backend-labs/usersync/pkg/dalerr"
)

// MemoryOrderRepository keeps orders in process memory.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[string]order.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[string]order.Order),
	}
}

// Create stores a new order.
func (r *MemoryOrderRepository) Create(_ context.Context, o order.Order) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[o.ID]; ok {
		return order.Order{}, dalerr.ErrAlreadyExists
	}
	r.orders[o.ID] = clone(o)

	return clone(o), nil
}

// FindByID returns the order with the given id.
func (r *MemoryOrderRepository) FindByID(_ context.Context, id string) (order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return order.Order{}, dalerr.ErrNotFound
	}

	return clone(o), nil
}

// FindAll returns the orders matching filter, oldest first.
func (r *MemoryOrderRepository) FindAll(_ context.Context, filter order.QueryOrdersModel) ([]order.Order, error) {
	r.mu.RLock()
	result := make([]order.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		result = append(result, clone(o))
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b order.Order) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}

		return 0
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []order.Order{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Update replaces the stored order if its status is still expected.
func (r *MemoryOrderRepository) Update(_ context.Context, o order.Order, expected order.Status) (order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.orders[o.ID]
	if !ok {
		return order.Order{}, dalerr.ErrNotFound
	}
	if current.Status != expected {
		return order.Order{}, dalerr.ErrConcurrentUpdate
	}
	r.orders[o.ID] = clone(o)

	return clone(o), nil
}

func clone(o order.Order) order.Order {
	o.Items = slices.Clone(o.Items)
	if o.CancelledAt != nil {
		at := *o.CancelledAt
		o.CancelledAt = &at
	}

	return o
}
