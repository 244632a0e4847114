package memoryrepo

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/corray333/backend-labs/usersync/pkg/dalerr"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
)

// MemoryUserRepository keeps users in process memory with a unique email index.
// Emails compare byte for byte, like the users table constraint.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	users   map[string]user.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

// Create stores a new user.
func (r *MemoryUserRepository) Create(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[u.ID]; ok {
		return user.User{}, dalerr.ErrAlreadyExists
	}
	if _, ok := r.byEmail[u.Email]; ok {
		return user.User{}, dalerr.ErrAlreadyExists
	}

	r.users[u.ID] = u
	r.byEmail[u.Email] = u.ID

	return u, nil
}

// FindByID returns the user with the given id.
func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return user.User{}, dalerr.ErrNotFound
	}

	return u, nil
}

// FindAll returns every user, oldest first.
func (r *MemoryUserRepository) FindAll(_ context.Context) ([]user.User, error) {
	r.mu.RLock()
	result := make([]user.User, 0, len(r.users))
	for _, u := range r.users {
		result = append(result, u)
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b user.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	return result, nil
}

// Update replaces the stored user, keeping the email index consistent.
func (r *MemoryUserRepository) Update(_ context.Context, u user.User) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.users[u.ID]
	if !ok {
		return user.User{}, dalerr.ErrNotFound
	}

	oldKey, newKey := current.Email, u.Email
	if oldKey != newKey {
		if _, taken := r.byEmail[newKey]; taken {
			return user.User{}, dalerr.ErrAlreadyExists
		}
		delete(r.byEmail, oldKey)
		r.byEmail[newKey] = u.ID
	}
	r.users[u.ID] = u

	return u, nil
}
