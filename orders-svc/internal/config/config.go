package config

import (
	"maps"

	sharedconfig "github.com/corray333/backend-labs/usersync/pkg/config"
)

func MustInit() {
	aliases := maps.Clone(sharedconfig.SharedEnvAliases)
	aliases["users.base_url"] = "USERS_BASE_URL"
	aliases["users.timeout_ms"] = "HTTP_TIMEOUT_MS"
	aliases["rabbitmq.queue"] = "QUEUE"

	sharedconfig.MustLoad("orders-svc", map[string]any{
		"server.http.port":         "3002",
		"users.base_url":           "http://localhost:3001",
		"users.timeout_ms":         2000,
		"rabbitmq.queue":           "orders.q",
		"rabbitmq.consumer_tag":    "orders-svc",
		"rabbitmq.routing_keys":    []string{"user.created", "user.updated"},
		"postgres.migrations_path": "./migrations",
	}, aliases)
}
