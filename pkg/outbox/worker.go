package outbox

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/corray333/backend-labs/usersync/pkg/events"
	"github.com/corray333/backend-labs/usersync/pkg/metrics"
)

// WorkerConfig tunes the outbox polling loop.
type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// RetryBase is the first backoff step; each retry doubles it.
	RetryBase time.Duration
}

// Worker processes messages from the outbox table.
type Worker struct {
	outboxRepo   Repository
	broker       broker
	pollInterval time.Duration
	batchSize    int
	retryBase    time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewWorker creates a new outbox worker.
func NewWorker(outboxRepo Repository, broker broker, cfg WorkerConfig) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 30 * time.Second
	}

	return &Worker{
		outboxRepo:   outboxRepo,
		broker:       broker,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		retryBase:    cfg.RetryBase,
		stopCh:       make(chan struct{}),
	}
}

// Start begins processing messages from the outbox.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Outbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Outbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Outbox worker stopped")

			return
		case <-ticker.C:
			w.processMessages(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// processMessages retrieves and republishes pending messages from the outbox.
func (w *Worker) processMessages(ctx context.Context) {
	messages, err := w.outboxRepo.GetPendingMessages(ctx, w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from outbox", "error", err)

		return
	}

	if len(messages) == 0 {
		return
	}

	slog.Info("Processing outbox messages", "count", len(messages))

	for _, msg := range messages {
		exchange := msg.ExchangeName
		if exchange == "" {
			exchange = w.broker.Exchange()
		}

		err := w.broker.PublishBodyTo(ctx, exchange, events.RoutingKey(msg.RoutingKey), msg.ContentType, msg.Payload)
		if err != nil {
			w.scheduleRetry(ctx, msg, err)

			continue
		}

		metrics.OutboxMessages.WithLabelValues("delivered").Inc()

		if err := w.outboxRepo.Delete(ctx, msg.ID); err != nil {
			slog.Error("Failed to delete message from outbox after successful publish",
				"outbox_id", msg.ID,
				"error", err,
			)
		} else {
			slog.Info("Message successfully published and removed from outbox",
				"outbox_id", msg.ID,
				"routing_key", msg.RoutingKey,
			)
		}
	}
}

func (w *Worker) scheduleRetry(ctx context.Context, msg Message, publishErr error) {
	newRetryCount := msg.RetryCount + 1
	nextRetryAt := time.Now().UTC().Add(w.backoff(newRetryCount))

	if newRetryCount >= msg.MaxRetries {
		metrics.OutboxMessages.WithLabelValues("abandoned").Inc()
		slog.Error("Outbox message reached max retries, giving up",
			"outbox_id", msg.ID,
			"routing_key", msg.RoutingKey,
			"error", publishErr,
		)
	} else {
		metrics.OutboxMessages.WithLabelValues("retried").Inc()
		slog.Warn("Failed to publish message from outbox, will retry",
			"outbox_id", msg.ID,
			"retry_count", newRetryCount,
			"next_retry", nextRetryAt,
			"error", publishErr,
		)
	}

	if err := w.outboxRepo.UpdateRetry(ctx, msg.ID, newRetryCount, publishErr.Error(), nextRetryAt); err != nil {
		slog.Error("Failed to update retry information", "outbox_id", msg.ID, "error", err)
	}
}

// backoff returns retryBase * 2^retry.
func (w *Worker) backoff(retry int) time.Duration {
	return time.Duration(math.Pow(2, float64(retry))) * w.retryBase
}
