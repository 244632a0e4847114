// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ValidationOutcomes counts user validation results by outcome and by the source that decided it.
	ValidationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orders",
			Name:      "validation_outcomes_total",
			Help:      "User validation outcomes by deciding source (users_service or cache).",
		},
		[]string{"outcome", "source"},
	)

	// ConsumedEvents counts user lifecycle deliveries by result.
	ConsumedEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orders",
			Name:      "consumed_events_total",
			Help:      "Deliveries handled by the user event consumer (applied, ignored, malformed, rejected).",
		},
		[]string{"routing_key", "result"},
	)

	// PublishFailures counts events whose publication failed.
	PublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "events",
			Name:      "publish_failures_total",
			Help:      "Events that could not be handed to the broker.",
		},
		[]string{"routing_key"},
	)

	// OutboxMessages counts outbox traffic by result (parked, delivered, retried, abandoned).
	OutboxMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "events",
			Name:      "outbox_messages_total",
			Help:      "Outbox messages by result.",
		},
		[]string{"result"},
	)
)

// MustRegisterUserCacheSize exports the number of cached users.
func MustRegisterUserCacheSize(size func() int) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "orders",
			Name:      "user_cache_entries",
			Help:      "Users currently held in the event-fed cache.",
		},
		func() float64 { return float64(size()) },
	))
}
