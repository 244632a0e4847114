package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corray333/backend-labs/usersync/pkg/events"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/streadway/amqp"
)

const contentTypeJSON = "application/json"

var (
	// ErrNotConnected is returned by operations attempted while the broker is unreachable.
	ErrNotConnected = errors.New("rabbitmq: client is not connected")
	// ErrClosed is returned once the client was closed or gave up reconnecting.
	ErrClosed = errors.New("rabbitmq: client is closed")
)

// State is the lifecycle state of a Client.
type State int32

const (
	StateDisconnected State = iota
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Config configures a Client.
type Config struct {
	URL      string
	Exchange string
	// ReconnectBaseDelay is the first backoff step between dial attempts.
	ReconnectBaseDelay time.Duration
	// ReconnectMaxDelay caps a single backoff step.
	ReconnectMaxDelay time.Duration
	// ReconnectAttempts bounds consecutive failed dials; zero means retry forever.
	ReconnectAttempts uint64
}

// Client represents a RabbitMQ client publishing to a single topic exchange.
// It starts disconnected; Start dials in the background and keeps redialing
// after connection loss until the retry budget is spent.
type Client struct {
	cfg Config

	mu      sync.RWMutex
	state   State
	conn    *amqp.Connection
	channel *amqp.Channel
	ready   chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient creates a disconnected client.
func NewClient(cfg Config) *Client {
	if cfg.Exchange == "" {
		cfg.Exchange = events.DefaultExchange
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = 500 * time.Millisecond
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 30 * time.Second
	}

	return &Client{
		cfg:    cfg,
		state:  StateDisconnected,
		ready:  make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Exchange returns the name of the exchange messages are published to.
func (r *Client) Exchange() string {
	return r.cfg.Exchange
}

// State returns the current lifecycle state.
func (r *Client) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.state
}

// Start connects in the background. It returns immediately.
func (r *Client) Start(ctx context.Context) {
	go r.connectLoop(ctx)
}

// WaitConnected blocks until the client is connected, the client is closed or ctx is done.
func (r *Client) WaitConnected(ctx context.Context) error {
	for {
		r.mu.RLock()
		state, ready := r.state, r.ready
		r.mu.RUnlock()

		switch state {
		case StateConnected:
			return nil
		case StateClosed:
			return ErrClosed
		}

		select {
		case <-ready:
		case <-r.closed:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close closes the channel and connection for graceful shutdown.
func (r *Client) Close() error {
	r.markClosed()

	r.mu.Lock()
	conn, channel := r.conn, r.channel
	r.conn, r.channel = nil, nil
	r.mu.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			return err
		}
	}

	return nil
}

// Publish marshals payload to JSON and publishes it persistently under key.
func (r *Client) Publish(ctx context.Context, key events.RoutingKey, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", key, err)
	}

	return r.PublishBody(ctx, key, contentTypeJSON, body)
}

// PublishBody publishes an already encoded body under key to the client's exchange.
// It never blocks waiting for a connection: a client that is not connected returns ErrNotConnected.
func (r *Client) PublishBody(ctx context.Context, key events.RoutingKey, contentType string, body []byte) error {
	return r.PublishBodyTo(ctx, r.cfg.Exchange, key, contentType, body)
}

// PublishBodyTo is PublishBody for an explicit exchange, used when replaying parked messages.
func (r *Client) PublishBodyTo(_ context.Context, exchange string, key events.RoutingKey, contentType string, body []byte) error {
	channel, err := r.currentChannel()
	if err != nil {
		return err
	}

	err = channel.Publish(
		exchange,
		key.String(),
		false,
		false,
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", key, err)
	}

	return nil
}

type DeclareQueueConfig struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       amqp.Table
}

// DeclareQueue declares a queue with the given configuration.
func (r *Client) DeclareQueue(cfg DeclareQueueConfig) (amqp.Queue, error) {
	channel, err := r.currentChannel()
	if err != nil {
		return amqp.Queue{}, err
	}

	return channel.QueueDeclare(
		cfg.Name,
		cfg.Durable,
		cfg.AutoDelete,
		cfg.Exclusive,
		cfg.NoWait,
		cfg.Args,
	)
}

// BindQueue binds queue to the client's exchange for every key.
func (r *Client) BindQueue(queue string, keys ...events.RoutingKey) error {
	channel, err := r.currentChannel()
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := channel.QueueBind(queue, key.String(), r.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", queue, key, err)
		}
	}

	return nil
}

type ConsumeConfig struct {
	Queue     string
	Consumer  string
	AutoAck   bool
	Exclusive bool
	NoLocal   bool
	NoWait    bool
	Prefetch  int
	Args      amqp.Table
}

// Consume starts consuming messages from the queue.
func (r *Client) Consume(cfg ConsumeConfig) (<-chan amqp.Delivery, error) {
	channel, err := r.currentChannel()
	if err != nil {
		return nil, err
	}

	if cfg.Prefetch > 0 {
		if err := channel.Qos(cfg.Prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	return channel.Consume(
		cfg.Queue,
		cfg.Consumer,
		cfg.AutoAck,
		cfg.Exclusive,
		cfg.NoLocal,
		cfg.NoWait,
		cfg.Args,
	)
}

func (r *Client) currentChannel() (*amqp.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch {
	case r.state == StateClosed:
		return nil, ErrClosed
	case r.state != StateConnected || r.channel == nil:
		return nil, ErrNotConnected
	}

	return r.channel, nil
}

// connectLoop dials, waits for the connection to drop and dials again.
func (r *Client) connectLoop(ctx context.Context) {
	for {
		if err := r.connect(ctx); err != nil {
			if ctx.Err() == nil && !r.isClosed() {
				slog.Error("RabbitMQ unreachable, giving up", "error", err)
			}
			r.markClosed()

			return
		}

		r.mu.RLock()
		conn, channel := r.conn, r.channel
		r.mu.RUnlock()
		if conn == nil || channel == nil {
			return
		}

		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chanClosed := channel.NotifyClose(make(chan *amqp.Error, 1))

		var reason *amqp.Error
		select {
		case <-ctx.Done():
			return
		case <-r.closed:
			return
		case reason = <-connClosed:
		case reason = <-chanClosed:
		}

		if r.isClosed() {
			return
		}

		slog.Warn("RabbitMQ connection lost, reconnecting", "error", reason)
		r.setDisconnected()
	}
}

func (r *Client) connect(ctx context.Context) error {
	backoff := retry.NewExponential(r.cfg.ReconnectBaseDelay)
	backoff = retry.WithCappedDuration(r.cfg.ReconnectMaxDelay, backoff)
	if r.cfg.ReconnectAttempts > 0 {
		backoff = retry.WithMaxRetries(r.cfg.ReconnectAttempts, backoff)
	}

	attempt := 0

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if r.isClosed() {
			return ErrClosed
		}
		attempt++

		conn, err := amqp.Dial(r.cfg.URL)
		if err != nil {
			slog.Warn("Failed to connect to RabbitMQ", "attempt", attempt, "error", err)

			return retry.RetryableError(err)
		}

		channel, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			slog.Warn("Failed to open a channel", "attempt", attempt, "error", err)

			return retry.RetryableError(err)
		}

		if err := channel.ExchangeDeclare(r.cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			_ = conn.Close()
			slog.Warn("Failed to declare exchange", "exchange", r.cfg.Exchange, "error", err)

			return retry.RetryableError(err)
		}

		r.setConnected(conn, channel)
		slog.Info("RabbitMQ connected", "exchange", r.cfg.Exchange, "attempt", attempt)

		return nil
	})
}

func (r *Client) setConnected(conn *amqp.Connection, channel *amqp.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateClosed {
		_ = conn.Close()

		return
	}

	r.conn = conn
	r.channel = channel
	r.state = StateConnected
	close(r.ready)
}

func (r *Client) setDisconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateConnected {
		return
	}

	if r.conn != nil {
		_ = r.conn.Close()
	}
	r.conn = nil
	r.channel = nil
	r.state = StateDisconnected
	r.ready = make(chan struct{})
}

func (r *Client) markClosed() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.state = StateClosed
		r.mu.Unlock()

		close(r.closed)
	})
}

func (r *Client) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}
