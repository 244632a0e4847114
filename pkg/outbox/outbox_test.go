package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corray333/backend-labs/usersync/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange string
	key      events.RoutingKey
	body     []byte
}

type fakeBroker struct {
	mu        sync.Mutex
	err       error
	published []published
}

func (b *fakeBroker) Exchange() string { return events.DefaultExchange }

func (b *fakeBroker) PublishBodyTo(_ context.Context, exchange string, key events.RoutingKey, _ string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.err != nil {
		return b.err
	}
	b.published = append(b.published, published{exchange: exchange, key: key, body: body})

	return nil
}

type retryCall struct {
	id         int64
	retryCount int
	lastError  string
}

type fakeRepo struct {
	mu        sync.Mutex
	nextID    int64
	messages  map[int64]Message
	insertErr error
	// blockInsert makes Insert wait for its context to end.
	blockInsert bool
	retries     []retryCall
	deleted     []int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{messages: make(map[int64]Message)}
}

func (r *fakeRepo) Insert(ctx context.Context, msg Message) error {
	if r.blockInsert {
		<-ctx.Done()

		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.insertErr != nil {
		return r.insertErr
	}
	r.nextID++
	msg.ID = r.nextID
	r.messages[msg.ID] = msg

	return nil
}

func (r *fakeRepo) GetPendingMessages(_ context.Context, limit int) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []Message
	for id := int64(1); id <= r.nextID && len(result) < limit; id++ {
		if msg, ok := r.messages[id]; ok && msg.RetryCount < msg.MaxRetries {
			result = append(result, msg)
		}
	}

	return result, nil
}

func (r *fakeRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.messages, id)
	r.deleted = append(r.deleted, id)

	return nil
}

func (r *fakeRepo) UpdateRetry(_ context.Context, id int64, retryCount int, lastError string, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := r.messages[id]
	msg.RetryCount = retryCount
	msg.LastError = lastError
	msg.NextRetryAt = nextRetryAt
	r.messages[id] = msg
	r.retries = append(r.retries, retryCall{id: id, retryCount: retryCount, lastError: lastError})

	return nil
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes directly when the broker accepts", func(t *testing.T) {
		broker := &fakeBroker{}
		repo := newFakeRepo()
		p := NewPublisher(broker, repo, 3)

		require.NoError(t, p.Publish(ctx, events.UserCreated, map[string]string{"id": "u1"}))

		require.Len(t, broker.published, 1)
		assert.Equal(t, events.UserCreated, broker.published[0].key)
		assert.JSONEq(t, `{"id":"u1"}`, string(broker.published[0].body))
		assert.Empty(t, repo.messages)
	})

	t.Run("parks the message when the broker fails", func(t *testing.T) {
		broker := &fakeBroker{err: errors.New("not connected")}
		repo := newFakeRepo()
		p := NewPublisher(broker, repo, 3)

		require.NoError(t, p.Publish(ctx, events.OrderCancelled, map[string]string{"id": "o_1"}))

		require.Len(t, repo.messages, 1)
		msg := repo.messages[1]
		assert.Equal(t, events.OrderCancelled.String(), msg.RoutingKey)
		assert.Equal(t, events.DefaultExchange, msg.ExchangeName)
		assert.Equal(t, 3, msg.MaxRetries)
		assert.Equal(t, "not connected", msg.LastError)
		assert.JSONEq(t, `{"id":"o_1"}`, string(msg.Payload))
	})

	t.Run("reports both errors when parking fails", func(t *testing.T) {
		brokerErr := errors.New("not connected")
		insertErr := errors.New("db down")
		p := NewPublisher(&fakeBroker{err: brokerErr}, &fakeRepo{messages: map[int64]Message{}, insertErr: insertErr}, 3)

		err := p.Publish(ctx, events.OrderCreated, map[string]string{"id": "o_1"})
		assert.ErrorIs(t, err, brokerErr)
		assert.ErrorIs(t, err, insertErr)
	})

	t.Run("a hanging outbox insert does not hold the caller", func(t *testing.T) {
		brokerErr := errors.New("not connected")
		repo := &fakeRepo{messages: map[int64]Message{}, blockInsert: true}
		p := NewPublisher(&fakeBroker{err: brokerErr}, repo, 3)
		p.parkTimeout = 20 * time.Millisecond

		start := time.Now()
		err := p.Publish(ctx, events.OrderCreated, map[string]string{"id": "o_1"})

		assert.Less(t, time.Since(start), time.Second)
		assert.ErrorIs(t, err, brokerErr)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestWorker_ProcessMessages(t *testing.T) {
	ctx := context.Background()

	t.Run("republishes and deletes delivered messages", func(t *testing.T) {
		repo := newFakeRepo()
		require.NoError(t, repo.Insert(ctx, Message{RoutingKey: "user.updated", Payload: []byte(`{"id":"u1"}`), MaxRetries: 3}))
		broker := &fakeBroker{}

		w := NewWorker(repo, broker, WorkerConfig{})
		w.processMessages(ctx)

		require.Len(t, broker.published, 1)
		assert.Equal(t, events.UserUpdated, broker.published[0].key)
		assert.Equal(t, events.DefaultExchange, broker.published[0].exchange, "messages without an exchange use the broker's")
		assert.Equal(t, []int64{1}, repo.deleted)
		assert.Empty(t, repo.messages)
	})

	t.Run("republishes to the exchange the message was parked for", func(t *testing.T) {
		repo := newFakeRepo()
		require.NoError(t, repo.Insert(ctx, Message{
			ExchangeName: "legacy.topic",
			RoutingKey:   "order.cancelled",
			Payload:      []byte(`{"id":"o_1"}`),
			MaxRetries:   3,
		}))
		broker := &fakeBroker{}

		NewWorker(repo, broker, WorkerConfig{}).processMessages(ctx)

		require.Len(t, broker.published, 1)
		assert.Equal(t, "legacy.topic", broker.published[0].exchange)
		assert.Equal(t, events.OrderCancelled, broker.published[0].key)
	})

	t.Run("schedules a retry when the broker still fails", func(t *testing.T) {
		repo := newFakeRepo()
		require.NoError(t, repo.Insert(ctx, Message{RoutingKey: "order.created", MaxRetries: 3}))
		broker := &fakeBroker{err: errors.New("still down")}

		w := NewWorker(repo, broker, WorkerConfig{RetryBase: time.Second})
		w.processMessages(ctx)

		require.Len(t, repo.retries, 1)
		assert.Equal(t, retryCall{id: 1, retryCount: 1, lastError: "still down"}, repo.retries[0])
		assert.True(t, repo.messages[1].NextRetryAt.After(time.Now().Add(time.Second)))
		assert.Empty(t, repo.deleted)
	})
}

func TestWorker_Backoff(t *testing.T) {
	w := NewWorker(newFakeRepo(), &fakeBroker{}, WorkerConfig{RetryBase: 30 * time.Second})

	assert.Equal(t, 60*time.Second, w.backoff(1))
	assert.Equal(t, 120*time.Second, w.backoff(2))
	assert.Equal(t, 240*time.Second, w.backoff(3))
}

func TestWorker_StartStop(t *testing.T) {
	w := NewWorker(newFakeRepo(), &fakeBroker{}, WorkerConfig{PollInterval: time.Millisecond})

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	w.Stop()
	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
