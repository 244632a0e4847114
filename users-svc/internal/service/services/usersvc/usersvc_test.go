package usersvc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corray333/backend-labs/usersync/pkg/events"
	memoryrepo "github.com/corray333/backend-labs/usersync/users-svc/internal/dal/repositories/user/memory"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/service/models/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type publishedEvent struct {
	key  events.RoutingKey
	user user.User
}

type recordingPublisher struct {
	mu     sync.Mutex
	err    error
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, key events.RoutingKey, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{key: key, user: payload.(user.User)})

	return nil
}

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func newService() (*UserService, *recordingPublisher) {
	pub := &recordingPublisher{}
	svc := MustNewUserService(
		WithUserRepository(memoryrepo.NewMemoryUserRepository()),
		WithPublisher(pub),
		WithClock(func() time.Time { return fixedNow }),
	)

	return svc, pub
}

func TestUserService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes user.created", func(t *testing.T) {
		svc, pub := newService()

		created, err := svc.Create(ctx, "Ana", "ana@example.com")
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, fixedNow, created.CreatedAt)
		assert.Nil(t, created.UpdatedAt)

		require.Len(t, pub.events, 1)
		assert.Equal(t, events.UserCreated, pub.events[0].key)
		assert.Equal(t, created, pub.events[0].user)

		got, err := svc.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, got)
	})

	t.Run("duplicate email", func(t *testing.T) {
		svc, pub := newService()

		_, err := svc.Create(ctx, "Ana", "ana@example.com")
		require.NoError(t, err)
		_, err = svc.Create(ctx, "Other", "ana@example.com")
		assert.ErrorIs(t, err, ErrEmailTaken)
		assert.Len(t, pub.events, 1)
	})

	t.Run("missing fields", func(t *testing.T) {
		svc, pub := newService()

		_, err := svc.Create(ctx, "", "ana@example.com")
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = svc.Create(ctx, "Ana", "")
		assert.ErrorIs(t, err, ErrInvalidInput)
		assert.Empty(t, pub.events)
	})

	t.Run("publish failure keeps the user", func(t *testing.T) {
		svc, pub := newService()
		pub.err = errors.New("rabbitmq: client is not connected")

		created, err := svc.Create(ctx, "Ana", "ana@example.com")
		require.NoError(t, err)

		list, err := svc.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []user.User{created}, list)
	})
}

func TestUserService_Update(t *testing.T) {
	ctx := context.Background()
	svc, pub := newService()

	ana, err := svc.Create(ctx, "Ana", "ana@example.com")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "Bo", "bo@example.com")
	require.NoError(t, err)

	later := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return later }

	name := "Ana Maria"
	updated, err := svc.Update(ctx, ana.ID, user.UpdateUserModel{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)
	assert.Equal(t, "ana@example.com", updated.Email)
	require.NotNil(t, updated.UpdatedAt)
	assert.Equal(t, later, *updated.UpdatedAt)

	last := pub.events[len(pub.events)-1]
	assert.Equal(t, events.UserUpdated, last.key)
	assert.Equal(t, updated, last.user)

	_, err = svc.Update(ctx, ana.ID, user.UpdateUserModel{})
	assert.ErrorIs(t, err, ErrNothingToUpdate)

	_, err = svc.Update(ctx, "missing", user.UpdateUserModel{Name: &name})
	assert.ErrorIs(t, err, ErrUserNotFound)

	taken := "bo@example.com"
	_, err = svc.Update(ctx, ana.ID, user.UpdateUserModel{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)

	assert.Len(t, pub.events, 3, "failed updates publish nothing")
}

func TestUserService_GetMissing(t *testing.T) {
	svc, _ := newService()

	_, err := svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
