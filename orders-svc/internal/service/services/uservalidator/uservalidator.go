// Package uservalidator decides whether a user id may own a new order.
package uservalidator

import (
	"context"
	"log/slog"
	"time"

	"github.com/corray333/backend-labs/usersync/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Outcome is the result of validating a user id.
type Outcome int

const (
	// OutcomeUsable means the user exists, confirmed by the users service or by the cache fallback.
	OutcomeUsable Outcome = iota + 1
	// OutcomeUnusable means the users service answered that the user does not exist.
	OutcomeUnusable
	// OutcomeIndeterminate means the users service could not be reached and the cache has no entry.
	OutcomeIndeterminate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUsable:
		return "usable"
	case OutcomeUnusable:
		return "unusable"
	case OutcomeIndeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

const (
	sourceUsersService = "users_service"
	sourceCache        = "cache"
)

// lookup is the authoritative existence check.
type lookup interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// cache is the event-fed fallback.
type cache interface {
	Has(id string) bool
}

// Validator checks users against the users service and falls back to the cache
// only when the service is unreachable.
type Validator struct {
	lookup  lookup
	cache   cache
	timeout time.Duration
}

// New creates a Validator. Every lookup is bounded by timeout.
func New(lookup lookup, cache cache, timeout time.Duration) *Validator {
	return &Validator{
		lookup:  lookup,
		cache:   cache,
		timeout: timeout,
	}
}

type lookupResult struct {
	exists bool
	err    error
}

// Validate returns the outcome for userID. It never blocks longer than the
// configured timeout: a lookup still running at the deadline is abandoned.
func (v *Validator) Validate(ctx context.Context, userID string) Outcome {
	ctx, span := otel.Tracer("orders").Start(ctx, "Validator.Validate")
	defer span.End()

	outcome, source := v.validate(ctx, userID)

	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("validation.outcome", outcome.String()),
		attribute.String("validation.source", source),
	)
	metrics.ValidationOutcomes.WithLabelValues(outcome.String(), source).Inc()

	return outcome
}

func (v *Validator) validate(ctx context.Context, userID string) (Outcome, string) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	// Buffered so an abandoned lookup can still finish and exit.
	result := make(chan lookupResult, 1)
	go func() {
		exists, err := v.lookup.Exists(ctx, userID)
		result <- lookupResult{exists: exists, err: err}
	}()

	var lookupErr error
	select {
	case res := <-result:
		if res.err == nil {
			if res.exists {
				return OutcomeUsable, sourceUsersService
			}

			return OutcomeUnusable, sourceUsersService
		}
		lookupErr = res.err
	case <-ctx.Done():
		lookupErr = ctx.Err()
	}

	if v.cache.Has(userID) {
		slog.Warn("Users service unreachable, user confirmed from cache",
			"user_id", userID,
			"error", lookupErr,
		)

		return OutcomeUsable, sourceCache
	}

	slog.Warn("Users service unreachable and user not cached",
		"user_id", userID,
		"error", lookupErr,
	)

	return OutcomeIndeterminate, sourceCache
}
