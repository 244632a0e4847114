package main

import (
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/app"
	"github.com/corray333/backend-labs/usersync/orders-svc/internal/config"
	"github.com/shopspring/decimal"
)

func main() {
	// Order totals travel as JSON numbers in responses and events.
	decimal.MarshalJSONWithoutQuotes = true

	config.MustInit()
	app.MustNewApp().Run()
}
