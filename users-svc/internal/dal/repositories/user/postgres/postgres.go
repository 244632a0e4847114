package postgresrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/corray333/backend-labs/usersync/pkg/dalerr"
	"github.com/corray333/backend-labs/usersync/pkg/postgres"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
	"github.com/jackc/pgx/v5"
)

var userColumns = []string{
	"id",
	"name",
	"email",
	"created_at",
	"updated_at",
}

// UserDal represents user data access layer model
type UserDal struct {
	ID        string     `db:"id"`
	Name      string     `db:"name"`
	Email     string     `db:"email"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt *time.Time `db:"updated_at"`
}

// ToModel converts UserDal to service layer User model
func (u *UserDal) ToModel() user.User {
	var updatedAt *time.Time
	if u.UpdatedAt != nil {
		at := u.UpdatedAt.UTC()
		updatedAt = &at
	}

	return user.User{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC(),
		UpdatedAt: updatedAt,
	}
}

func (u *UserDal) scanTargets() []any {
	return []any{&u.ID, &u.Name, &u.Email, &u.CreatedAt, &u.UpdatedAt}
}

type PostgresUserRepository struct {
	client *postgres.Client
}

func NewPostgresUserRepository(client *postgres.Client) *PostgresUserRepository {
	return &PostgresUserRepository{
		client: client,
	}
}

// Create inserts a new user.
func (r *PostgresUserRepository) Create(ctx context.Context, u user.User) (user.User, error) {
	query, args, err := sq.Insert("users").
		Columns(userColumns...).
		Values(u.ID, u.Name, u.Email, u.CreatedAt, u.UpdatedAt).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return user.User{}, fmt.Errorf("failed to build insert query: %w", err)
	}

	var dal UserDal
	if err := r.client.Pool().QueryRow(ctx, query, args...).Scan(dal.scanTargets()...); err != nil {
		if postgres.IsUniqueViolation(err) {
			return user.User{}, dalerr.ErrAlreadyExists
		}

		return user.User{}, fmt.Errorf("failed to insert user: %w", err)
	}

	return dal.ToModel(), nil
}

// FindByID retrieves a single user.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (user.User, error) {
	query, args, err := sq.Select(userColumns...).
		From("users").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return user.User{}, fmt.Errorf("failed to build select query: %w", err)
	}

	var dal UserDal
	if err := r.client.Pool().QueryRow(ctx, query, args...).Scan(dal.scanTargets()...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, dalerr.ErrNotFound
		}

		return user.User{}, fmt.Errorf("failed to query user: %w", err)
	}

	return dal.ToModel(), nil
}

// FindAll retrieves every user, oldest first.
func (r *PostgresUserRepository) FindAll(ctx context.Context) ([]user.User, error) {
	query, args, err := sq.Select(userColumns...).
		From("users").
		OrderBy("created_at ASC", "id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.client.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	result := []user.User{}
	for rows.Next() {
		var dal UserDal
		if err := rows.Scan(dal.scanTargets()...); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, dal.ToModel())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

// Update writes name, email and update timestamp of an existing user.
func (r *PostgresUserRepository) Update(ctx context.Context, u user.User) (user.User, error) {
	query, args, err := sq.Update("users").
		Set("name", u.Name).
		Set("email", u.Email).
		Set("updated_at", u.UpdatedAt).
		Where(sq.Eq{"id": u.ID}).
		Suffix("RETURNING " + strings.Join(userColumns, ", ")).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return user.User{}, fmt.Errorf("failed to build update query: %w", err)
	}

	var dal UserDal
	if err := r.client.Pool().QueryRow(ctx, query, args...).Scan(dal.scanTargets()...); err != nil {
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return user.User{}, dalerr.ErrNotFound
		case postgres.IsUniqueViolation(err):
			return user.User{}, dalerr.ErrAlreadyExists
		}

		return user.User{}, fmt.Errorf("failed to update user: %w", err)
	}

	return dal.ToModel(), nil
}
