package usersvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/usersync/pkg/dalerr"
	"github.com/corray333/backend-labs/usersync/pkg/events"
	"github.com/corray333/backend-labs/usersync/pkg/metrics"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/dal/interfaces/iuserrepo"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrInvalidInput    = errors.New("name and email are required")
	ErrEmailTaken      = errors.New("email already exists")
	ErrUserNotFound    = errors.New("user not found")
	ErrNothingToUpdate = errors.New("name or email required")
)

type publisher interface {
	Publish(ctx context.Context, key events.RoutingKey, payload any) error
}

// UserService owns user records and announces every change on the event bus.
type UserService struct {
	userRepo  iuserrepo.IUserRepository
	publisher publisher
	now       func() time.Time
}

// option is a function that configures the UserService.
type option func(*UserService)

// MustNewUserService creates a new UserService.
func MustNewUserService(opts ...option) *UserService {
	s := &UserService{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.userRepo == nil {
		panic("usersvc: user repository is not set")
	}
	if s.publisher == nil {
		panic("usersvc: event publisher is not set")
	}

	return s
}

// WithUserRepository sets the user store.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithUserRepository(repo iuserrepo.IUserRepository) option {
	return func(s *UserService) {
		s.userRepo = repo
	}
}

// WithPublisher sets the event publisher.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPublisher(p publisher) option {
	return func(s *UserService) {
		s.publisher = p
	}
}

// WithClock overrides the time source.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithClock(now func() time.Time) option {
	return func(s *UserService) {
		s.now = now
	}
}

// Create persists a new user and publishes user.created.
func (s *UserService) Create(ctx context.Context, name, email string) (user.User, error) {
	ctx, span := otel.Tracer("users").Start(ctx, "UserService.Create")
	defer span.End()

	if name == "" || email == "" {
		return user.User{}, ErrInvalidInput
	}

	created, err := s.userRepo.Create(ctx, user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		CreatedAt: s.now(),
	})
	if err != nil {
		return user.User{}, mapStoreError(err)
	}
	span.SetAttributes(attribute.String("user.id", created.ID))

	s.publish(ctx, events.UserCreated, created)

	return created, nil
}

// Update applies a partial update and publishes user.updated.
func (s *UserService) Update(ctx context.Context, id string, update user.UpdateUserModel) (user.User, error) {
	ctx, span := otel.Tracer("users").Start(ctx, "UserService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", id))

	if update.IsEmpty() {
		return user.User{}, ErrNothingToUpdate
	}

	current, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return user.User{}, mapStoreError(err)
	}

	updated, err := s.userRepo.Update(ctx, update.Apply(current, s.now()))
	if err != nil {
		return user.User{}, mapStoreError(err)
	}

	s.publish(ctx, events.UserUpdated, updated)

	return updated, nil
}

// Get returns the user with the given id.
func (s *UserService) Get(ctx context.Context, id string) (user.User, error) {
	ctx, span := otel.Tracer("users").Start(ctx, "UserService.Get")
	defer span.End()

	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return user.User{}, mapStoreError(err)
	}

	return u, nil
}

// List returns every user.
func (s *UserService) List(ctx context.Context) ([]user.User, error) {
	ctx, span := otel.Tracer("users").Start(ctx, "UserService.List")
	defer span.End()

	return s.userRepo.FindAll(ctx)
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, dalerr.ErrNotFound):
		return ErrUserNotFound
	case errors.Is(err, dalerr.ErrAlreadyExists):
		return ErrEmailTaken
	default:
		return fmt.Errorf("user store: %w", err)
	}
}

func (s *UserService) publish(ctx context.Context, key events.RoutingKey, u user.User) {
	if err := s.publisher.Publish(ctx, key, u); err != nil {
		metrics.PublishFailures.WithLabelValues(key.String()).Inc()
		slog.Error("Failed to publish user event",
			"routing_key", key,
			"user_id", u.ID,
			"error", err,
		)
	}
}
