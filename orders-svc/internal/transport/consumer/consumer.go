package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/usersync/orders-svc/internal/service/models/user"
	"github.com/corray333/backend-labs/usersync/pkg/events"
	"github.com/corray333/backend-labs/usersync/pkg/metrics"
	"github.com/corray333/backend-labs/usersync/pkg/rabbitmq"
	"github.com/streadway/amqp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	resultApplied   = "applied"
	resultIgnored   = "ignored"
	resultMalformed = "malformed"
	resultRejected  = "rejected"
)

// broker is the subset of the RabbitMQ client the consumer needs.
type broker interface {
	WaitConnected(ctx context.Context) error
	DeclareQueue(cfg rabbitmq.DeclareQueueConfig) (amqp.Queue, error)
	BindQueue(queue string, keys ...events.RoutingKey) error
	Consume(cfg rabbitmq.ConsumeConfig) (<-chan amqp.Delivery, error)
}

// cache receives user lifecycle events.
type cache interface {
	Apply(key events.RoutingKey, u user.User) (bool, error)
}

// Config configures a Consumer.
type Config struct {
	Queue       string
	RoutingKeys []events.RoutingKey
	ConsumerTag string
	// RetryDelay is the pause before subscribing again after a failed subscription.
	RetryDelay time.Duration
}

// Consumer drains user lifecycle events into the user cache.
type Consumer struct {
	broker broker
	cache  cache
	cfg    Config
}

// NewConsumer creates a new Consumer.
func NewConsumer(broker broker, cache cache, cfg Config) *Consumer {
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "orders-svc"
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if len(cfg.RoutingKeys) == 0 {
		cfg.RoutingKeys = []events.RoutingKey{events.UserCreated, events.UserUpdated}
	}

	return &Consumer{
		broker: broker,
		cache:  cache,
		cfg:    cfg,
	}
}

// Run consumes until ctx is done or the broker client gives up reconnecting.
// A lost subscription is re-established once the client reconnects.
// Deliveries are handled one at a time.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.broker.WaitConnected(ctx); err != nil {
			if errors.Is(err, rabbitmq.ErrClosed) {
				slog.Error("Broker connection closed for good, user cache is frozen")
			}

			return nil
		}

		deliveries, err := c.subscribe()
		if errors.Is(err, rabbitmq.ErrClosed) {
			slog.Error("Broker connection closed for good, user cache is frozen")

			return nil
		}
		if err != nil {
			slog.Warn("Failed to subscribe to user events", "queue", c.cfg.Queue, "error", err)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.cfg.RetryDelay):
			}

			continue
		}

		slog.Info("Consumer started", "queue", c.cfg.Queue, "consumer_tag", c.cfg.ConsumerTag)

		if stopped := c.drain(ctx, deliveries); stopped {
			slog.Info("Stopping consumer")

			return nil
		}

		slog.Warn("Delivery channel closed, resubscribing", "queue", c.cfg.Queue)
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	if _, err := c.broker.DeclareQueue(rabbitmq.DeclareQueueConfig{
		Name:    c.cfg.Queue,
		Durable: true,
	}); err != nil {
		return nil, err
	}

	if err := c.broker.BindQueue(c.cfg.Queue, c.cfg.RoutingKeys...); err != nil {
		return nil, err
	}

	return c.broker.Consume(rabbitmq.ConsumeConfig{
		Queue:    c.cfg.Queue,
		Consumer: c.cfg.ConsumerTag,
		Prefetch: 1,
	})
}

// drain reports true when ctx ended and false when the delivery channel closed.
func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case msg, ok := <-deliveries:
			if !ok {
				return false
			}
			c.processMessage(ctx, msg)
		}
	}
}

// processMessage applies one delivery to the cache. Malformed or unusable
// payloads are rejected without requeue so they cannot block the queue.
func (c *Consumer) processMessage(ctx context.Context, msg amqp.Delivery) {
	_, span := otel.Tracer("consumer").Start(ctx, "Consumer.processMessage")
	defer span.End()

	key := events.RoutingKey(msg.RoutingKey)
	span.SetAttributes(attribute.String("messaging.routing_key", msg.RoutingKey))

	if !key.IsUserLifecycle() {
		c.ack(msg, key, resultIgnored)

		return
	}

	var u user.User
	if err := json.Unmarshal(msg.Body, &u); err != nil {
		slog.Error("Discarding malformed user event",
			"routing_key", key,
			"delivery_tag", msg.DeliveryTag,
			"error", err,
		)
		c.reject(msg, key, resultMalformed)

		return
	}

	if _, err := c.cache.Apply(key, u); err != nil {
		slog.Error("Discarding user event that could not be applied",
			"routing_key", key,
			"delivery_tag", msg.DeliveryTag,
			"error", err,
		)
		c.reject(msg, key, resultRejected)

		return
	}

	slog.Debug("User event applied", "routing_key", key, "user_id", u.ID)
	c.ack(msg, key, resultApplied)
}

func (c *Consumer) ack(msg amqp.Delivery, key events.RoutingKey, result string) {
	metrics.ConsumedEvents.WithLabelValues(key.String(), result).Inc()
	if err := msg.Ack(false); err != nil {
		slog.Error("Failed to ack message", "delivery_tag", msg.DeliveryTag, "error", err)
	}
}

func (c *Consumer) reject(msg amqp.Delivery, key events.RoutingKey, result string) {
	metrics.ConsumedEvents.WithLabelValues(key.String(), result).Inc()
	if err := msg.Nack(false, false); err != nil {
		slog.Error("Failed to nack message", "delivery_tag", msg.DeliveryTag, "error", err)
	}
}
