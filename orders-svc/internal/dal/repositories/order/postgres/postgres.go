package postgresrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/models/order"
	"github.com/corray333/backend-labs/usersync/pkg/dalerr"
	"github.com/corray333/backend-labs/usersync/pkg/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var orderColumns = []string{
	"id",
	"user_id",
	"items",
	"total",
	"status",
	"created_at",
	"cancelled_at",
}

// OrderDal represents order data access layer model
type OrderDal struct {
	ID          string          `db:"id"`
	UserID      string          `db:"user_id"`
	Items       []byte          `db:"items"`
	Total       decimal.Decimal `db:"total"`
	Status      string          `db:"status"`
	CreatedAt   time.Time       `db:"created_at"`
	CancelledAt *time.Time      `db:"cancelled_at"`
}

// ToModel converts OrderDal to service layer Order model
func (o *OrderDal) ToModel() (order.Order, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(o.Items, &items); err != nil {
		return order.Order{}, fmt.Errorf("failed to decode items of order %s: %w", o.ID, err)
	}

	return order.Order{
		ID:          o.ID,
		UserID:      o.UserID,
		Items:       items,
		Total:       o.Total,
		Status:      order.Status(o.Status),
		CreatedAt:   o.CreatedAt.UTC(),
		CancelledAt: utcPtr(o.CancelledAt),
	}, nil
}

// OrderDalFromModel converts service layer Order model to OrderDal
func OrderDalFromModel(o order.Order) (OrderDal, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return OrderDal{}, fmt.Errorf("failed to encode items of order %s: %w", o.ID, err)
	}

	return OrderDal{
		ID:          o.ID,
		UserID:      o.UserID,
		Items:       items,
		Total:       o.Total,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
		CancelledAt: o.CancelledAt,
	}, nil
}

func (o *OrderDal) scanTargets() []any {
	return []any{
		&o.ID,
		&o.UserID,
		&o.Items,
		&o.Total,
		&o.Status,
		&o.CreatedAt,
		&o.CancelledAt,
	}
}

type PostgresOrderRepository struct {
	client *postgres.Client
}

func NewPostgresOrderRepository(client *postgres.Client) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		client: client,
	}
}

// Create inserts a new order.
func (r *PostgresOrderRepository) Create(ctx context.Context, o order.Order) (order.Order, error) {
	dal, err := OrderDalFromModel(o)
	if err != nil {
		return order.Order{}, err
	}

	query, args, err := sq.Insert("orders").
		Columns(orderColumns...).
		Values(
			dal.ID,
			dal.UserID,
			string(dal.Items),
			dal.Total,
			dal.Status,
			dal.CreatedAt,
			dal.CancelledAt,
		).
		Suffix("RETURNING " + columnList()).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	var inserted OrderDal
	if err := r.client.Pool().QueryRow(ctx, query, args...).Scan(inserted.scanTargets()...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return order.Order{}, dalerr.ErrAlreadyExists
		}

		return order.Order{}, fmt.Errorf("failed to insert order: %w", err)
	}

	return inserted.ToModel()
}

// FindByID retrieves a single order.
func (r *PostgresOrderRepository) FindByID(ctx context.Context, id string) (order.Order, error) {
	query, args, err := sq.Select(orderColumns...).
		From("orders").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build select query: %w", err)
	}

	var dal OrderDal
	if err := r.client.Pool().QueryRow(ctx, query, args...).Scan(dal.scanTargets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.Order{}, dalerr.ErrNotFound
		}

		return order.Order{}, fmt.Errorf("failed to query order: %w", err)
	}

	return dal.ToModel()
}

// FindAll retrieves orders based on filter criteria, oldest first.
func (r *PostgresOrderRepository) FindAll(ctx context.Context, filter order.QueryOrdersModel) ([]order.Order, error) {
	builder := sq.Select(orderColumns...).
		From("orders").
		OrderBy("created_at ASC", "id ASC").
		PlaceholderFormat(sq.Dollar)

	if filter.UserID != "" {
		builder = builder.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	result := []order.Order{}
	for rows.Next() {
		var dal OrderDal
		if err := rows.Scan(dal.scanTargets()...); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		model, err := dal.ToModel()
		if err != nil {
			return nil, err
		}
		result = append(result, model)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// Update writes the mutable fields of o while the stored status equals expected.
func (r *PostgresOrderRepository) Update(ctx context.Context, o order.Order, expected order.Status) (order.Order, error) {
	query, args, err := sq.Update("orders").
		Set("status", string(o.Status)).
		Set("cancelled_at", o.CancelledAt).
		Where(sq.Eq{"id": o.ID, "status": string(expected)}).
		Suffix("RETURNING " + columnList()).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return order.Order{}, fmt.Errorf("failed to build update query: %w", err)
	}

	var updated OrderDal
	err = r.client.Pool().QueryRow(ctx, query, args...).Scan(updated.scanTargets()...)
	if err == nil {
		return updated.ToModel()
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return order.Order{}, fmt.Errorf("failed to update order: %w", err)
	}

	// Nothing matched: either the order is gone or its status moved on.
	if _, err := r.FindByID(ctx, o.ID); err != nil {
		return order.Order{}, err
	}

	return order.Order{}, dalerr.ErrConcurrentUpdate
}

func columnList() string {
	return strings.Join(orderColumns, ", ")
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()

	return &u
}
