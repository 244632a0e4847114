package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusCreated   Status = "created"
	StatusCancelled Status = "cancelled"
)

// Order represents an order in the system and the payload of its lifecycle events.
type Order struct {
	ID          string            `json:"id"`
	UserID      string            `json:"userId"`
	Items       []json.RawMessage `json:"items"`
	Total       decimal.Decimal   `json:"total"`
	Status      Status            `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	CancelledAt *time.Time        `json:"cancelledAt,omitempty"`
}

// Cancel moves a created order to cancelled. It returns false, leaving the order
// untouched, when the order is already cancelled.
func (o *Order) Cancel(at time.Time) bool {
	if o.Status != StatusCreated {
		return false
	}

	o.Status = StatusCancelled
	o.CancelledAt = &at

	return true
}
