package iuserrepo

import (
	"context"

	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
)

// IUserRepository is an interface for the user store.
// Create and Update return dalerr.ErrAlreadyExists when the email is taken.
type IUserRepository interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	FindByID(ctx context.Context, id string) (user.User, error)
	FindAll(ctx context.Context) ([]user.User, error)
	Update(ctx context.Context, u user.User) (user.User, error)
}
