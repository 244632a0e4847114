package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/usersync/pkg/events"
	"github.com/corray333/backend-labs/usersync/pkg/metrics"
)

const (
	contentTypeJSON = "application/json"
	// defaultParkTimeout bounds the outbox insert made on the caller's path.
	defaultParkTimeout = 3 * time.Second
)

// broker hands encoded bodies to the message broker.
type broker interface {
	Exchange() string
	PublishBodyTo(ctx context.Context, exchange string, key events.RoutingKey, contentType string, body []byte) error
}

// Publisher publishes through the broker and parks the message in the outbox when that fails.
type Publisher struct {
	broker      broker
	repo        Repository
	maxRetries  int
	parkTimeout time.Duration
}

// NewPublisher creates a publisher; maxRetries bounds later redelivery attempts.
func NewPublisher(broker broker, repo Repository, maxRetries int) *Publisher {
	if maxRetries <= 0 {
		maxRetries = 10
	}

	return &Publisher{
		broker:      broker,
		repo:        repo,
		maxRetries:  maxRetries,
		parkTimeout: defaultParkTimeout,
	}
}

// Publish publishes payload under key. A broker failure is not returned when the
// message was parked; it is returned joined with the insert error when parking fails too.
func (p *Publisher) Publish(ctx context.Context, key events.RoutingKey, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", key, err)
	}

	exchange := p.broker.Exchange()
	publishErr := p.broker.PublishBodyTo(ctx, exchange, key, contentTypeJSON, body)
	if publishErr == nil {
		return nil
	}

	now := time.Now().UTC()
	msg := Message{
		ExchangeName: exchange,
		RoutingKey:   key.String(),
		Payload:      body,
		ContentType:  contentTypeJSON,
		MaxRetries:   p.maxRetries,
		LastError:    publishErr.Error(),
		CreatedAt:    now,
		UpdatedAt:    now,
		NextRetryAt:  now,
	}

	// Parking outlives the triggering request but never holds it longer than parkTimeout.
	parkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.parkTimeout)
	defer cancel()

	if err := p.repo.Insert(parkCtx, msg); err != nil {
		return errors.Join(publishErr, err)
	}

	metrics.OutboxMessages.WithLabelValues("parked").Inc()
	slog.Warn("Publish failed, event parked in outbox",
		"routing_key", key,
		"error", publishErr,
	)

	return nil
}
