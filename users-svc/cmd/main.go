package main

import (
	"github.com/corray333/backend-labs/usersync/users-svc/internal/app"
	"github.com/corray333/backend-labs/usersync/users-svc/internal/config"
)

func main() {
	config.MustInit()
	app.MustNewApp().Run()
}
