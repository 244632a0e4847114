package postgresrepo

import (
	"context"
	"testing"
	"time"

	"github.com/corray333/backend-labs/usersync/pkg/dalerr"
	"github.com/corray333/backend-labs/usersync/pkg/postgres/postgrestest"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresUserRepository(t *testing.T) {
	client := postgrestest.NewClient(t, "../../../../../migrations")
	repo := NewPostgresUserRepository(client)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	ana, err := repo.Create(ctx, user.User{ID: "u1", Name: "Ana", Email: "ana@example.com", CreatedAt: base})
	require.NoError(t, err)
	assert.Equal(t, base, ana.CreatedAt)
	assert.Nil(t, ana.UpdatedAt)

	_, err = repo.Create(ctx, user.User{ID: "u2", Name: "Bo", Email: "bo@example.com", CreatedAt: base.Add(time.Minute)})
	require.NoError(t, err)

	_, err = repo.Create(ctx, user.User{ID: "u3", Name: "Copy", Email: "ana@example.com", CreatedAt: base})
	assert.ErrorIs(t, err, dalerr.ErrAlreadyExists)

	found, err := repo.FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, ana, found)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, dalerr.ErrNotFound)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "u1", all[0].ID)

	at := base.Add(time.Hour)
	ana.Name = "Ana Maria"
	ana.UpdatedAt = &at
	updated, err := repo.Update(ctx, ana)
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)
	require.NotNil(t, updated.UpdatedAt)
	assert.Equal(t, at, *updated.UpdatedAt)

	ana.Email = "bo@example.com"
	_, err = repo.Update(ctx, ana)
	assert.ErrorIs(t, err, dalerr.ErrAlreadyExists)

	_, err = repo.Update(ctx, user.User{ID: "missing", Email: "x@example.com"})
	assert.ErrorIs(t, err, dalerr.ErrNotFound)
}
