package main

import (
	"authd/internal/configuration"
	"authd/internal/core"
	"authd/internal/database"
	"authd/internal/messaging"

	"go.uber.org/zap"
)

func main() {
	zap.ReplaceGlobals(zap.Must(zap.NewProduction()))

	config := configuration.Read()
	core.NewLogger(config.App.LogLevel)

	db := database.InitDB(config.Database)
	cache := core.NewCache(config.Cache)
	notify := core.NewNotifier(config.Notifier)

	bus := messaging.NewEventBus()
	publisher := bus.Publisher(configuration.EventsTopicAuth)
	subscriber := bus.Subscriber(configuration.EventsTopicAuth)

	core.StartNotificationWorker(subscriber, notify)

	core.StartHTTPServer(config, db, cache, publisher)
}
