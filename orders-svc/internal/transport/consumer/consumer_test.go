package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/dal/usercache"
	"github.com/corray333/backend-labs/usersync/pkg/events"
	"github.com/corray333/backend-labs/usersync/pkg/rabbitmq"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackOutcome struct {
	acked   bool
	requeue bool
}

// fakeAcknowledger records how each delivery tag was settled.
type fakeAcknowledger struct {
	mu       sync.Mutex
	outcomes map[uint64]ackOutcome
}

func newFakeAcknowledger() *fakeAcknowledger {
	return &fakeAcknowledger{outcomes: make(map[uint64]ackOutcome)}
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes[tag] = ackOutcome{acked: true}

	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.outcomes[tag] = ackOutcome{requeue: requeue}

	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) outcome(tag uint64) (ackOutcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.outcomes[tag]

	return o, ok
}

func delivery(ack amqp.Acknowledger, tag uint64, key events.RoutingKey, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		RoutingKey:   key.String(),
		Body:         []byte(body),
	}
}

func TestConsumer_ProcessMessage(t *testing.T) {
	tests := []struct {
		name      string
		key       events.RoutingKey
		body      string
		wantAcked bool
		wantID    string
	}{
		{
			name:      "user created",
			key:       events.UserCreated,
			body:      `{"id":"u1","name":"Ana","email":"ana@example.com","createdAt":"2024-05-01T10:00:00Z"}`,
			wantAcked: true,
			wantID:    "u1",
		},
		{
			name:      "user updated",
			key:       events.UserUpdated,
			body:      `{"id":"u2","name":"Bo","email":"bo@example.com","createdAt":"2024-05-01T10:00:00Z","updatedAt":"2024-05-02T10:00:00Z"}`,
			wantAcked: true,
			wantID:    "u2",
		},
		{
			name:      "unrelated routing key is acked and ignored",
			key:       events.OrderCreated,
			body:      `{"id":"o_1"}`,
			wantAcked: true,
		},
		{
			name: "unparsable body",
			key:  events.UserCreated,
			body: `{"id":`,
		},
		{
			name: "payload without id",
			key:  events.UserCreated,
			body: `{"name":"Ana"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := usercache.New()
			ack := newFakeAcknowledger()
			c := NewConsumer(nil, cache, Config{Queue: "orders.q"})

			c.processMessage(context.Background(), delivery(ack, 1, tt.key, tt.body))

			outcome, settled := ack.outcome(1)
			require.True(t, settled, "every delivery must be settled")
			assert.Equal(t, tt.wantAcked, outcome.acked)
			assert.False(t, outcome.requeue, "nothing is ever requeued")

			if tt.wantID != "" {
				assert.True(t, cache.Has(tt.wantID))
			} else {
				assert.Equal(t, 0, cache.Len())
			}
		})
	}
}

type fakeBroker struct {
	mu         sync.Mutex
	waits      int
	deliveries chan amqp.Delivery
	bound      []events.RoutingKey
	declared   rabbitmq.DeclareQueueConfig
	consumed   rabbitmq.ConsumeConfig
}

// WaitConnected reports connected once, then closed.
func (b *fakeBroker) WaitConnected(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.waits++
	if b.waits > 1 {
		return rabbitmq.ErrClosed
	}

	return nil
}

func (b *fakeBroker) DeclareQueue(cfg rabbitmq.DeclareQueueConfig) (amqp.Queue, error) {
	b.declared = cfg

	return amqp.Queue{Name: cfg.Name}, nil
}

func (b *fakeBroker) BindQueue(_ string, keys ...events.RoutingKey) error {
	b.bound = keys

	return nil
}

func (b *fakeBroker) Consume(cfg rabbitmq.ConsumeConfig) (<-chan amqp.Delivery, error) {
	b.consumed = cfg

	return b.deliveries, nil
}

func TestConsumer_Run(t *testing.T) {
	cache := usercache.New()
	ack := newFakeAcknowledger()
	broker := &fakeBroker{deliveries: make(chan amqp.Delivery, 4)}

	broker.deliveries <- delivery(ack, 1, events.UserCreated, `{"id":"u1","name":"Ana"}`)
	broker.deliveries <- delivery(ack, 2, events.UserCreated, `not json`)
	broker.deliveries <- delivery(ack, 3, events.UserUpdated, `{"id":"u1","name":"Ana Maria"}`)
	close(broker.deliveries)

	c := NewConsumer(broker, cache, Config{Queue: "orders.q"})

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop after the broker closed")
	}

	assert.Equal(t, "orders.q", broker.declared.Name)
	assert.True(t, broker.declared.Durable)
	assert.Equal(t, []events.RoutingKey{events.UserCreated, events.UserUpdated}, broker.bound)
	assert.Equal(t, 1, broker.consumed.Prefetch)
	assert.False(t, broker.consumed.AutoAck)

	for tag, wantAcked := range map[uint64]bool{1: true, 2: false, 3: true} {
		outcome, settled := ack.outcome(tag)
		require.True(t, settled, "delivery %d", tag)
		assert.Equal(t, wantAcked, outcome.acked, "delivery %d", tag)
	}

	u, ok := cache.Get("u1")
	require.True(t, ok)
	assert.Equal(t, "Ana Maria", u.Name)
}

type erroringBroker struct {
	fakeBroker
}

func (b *erroringBroker) WaitConnected(context.Context) error { return nil }

func (b *erroringBroker) DeclareQueue(rabbitmq.DeclareQueueConfig) (amqp.Queue, error) {
	return amqp.Queue{}, errors.New("channel/connection is not open")
}

func TestConsumer_RunStopsOnContextWhileRetrying(t *testing.T) {
	c := NewConsumer(&erroringBroker{}, usercache.New(), Config{Queue: "orders.q", RetryDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, c.Run(ctx))
}
