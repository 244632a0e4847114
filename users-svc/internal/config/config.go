package config

import (
	sharedconfig "github.com/corray333/backend-labs/usersync/pkg/config"
)

func MustInit() {
	sharedconfig.MustLoad("users-svc", map[string]any{
		"server.http.port":         "3001",
		"postgres.migrations_path": "./migrations",
	}, sharedconfig.SharedEnvAliases)
}
