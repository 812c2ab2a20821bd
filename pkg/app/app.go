package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/config"
	"github.com/Zanooda/sunshine-homeassistant/pkg/coordinator"
	"github.com/Zanooda/sunshine-homeassistant/pkg/entity"
	"github.com/Zanooda/sunshine-homeassistant/pkg/homeassistant"
	"github.com/Zanooda/sunshine-homeassistant/pkg/mqtt"
	"github.com/Zanooda/sunshine-homeassistant/pkg/server"
	"github.com/Zanooda/sunshine-homeassistant/pkg/sunshine"
)

type Application struct {
	config   *config.Config
	logger   *logrus.Logger
	version  string
	services *ServiceManager
	handlers *EventHandlers
	registry *entity.Registry
}

func NewApplication(cfg *config.Config, logger *logrus.Logger, version string) *Application {
	app := &Application{
		config:  cfg,
		logger:  logger,
		version: version,
	}

	app.services = NewServiceManager(logger)
	app.handlers = NewEventHandlers(logger)

	return app
}

// Initialize builds every component. The first poll must succeed: entities
// are created from its snapshot, so without it there is nothing to expose.
func (app *Application) Initialize(ctx context.Context) error {
	app.logger.Info("Initializing application components...")

	client, err := sunshine.NewClient(&app.config.Sunshine, app.version, app.logger)
	if err != nil {
		return err
	}

	coord := coordinator.New(
		client,
		app.config.Sunshine.PollInterval,
		app.config.Sunshine.RequestTimeout,
		app.logger,
	)

	firstCtx, cancel := context.WithTimeout(ctx, app.config.Sunshine.RequestTimeout)
	defer cancel()
	if err := coord.Refresh(firstCtx); err != nil {
		return fmt.Errorf("initial scooter fetch failed: %w", err)
	}

	app.registry = entity.NewRegistry(entity.SetupAll(client, coord, app.logger))

	mqttClient, err := mqtt.NewClient(
		&app.config.MQTT,
		homeassistant.GenerateBridgeAvailabilityTopic(&app.config.HomeAssistant),
		app.logger,
	)
	if err != nil {
		return err
	}

	haManager := homeassistant.NewIntegration(
		mqttClient,
		&app.config.HomeAssistant,
		coord,
		app.registry,
		app.config.Sunshine.RequestTimeout,
		app.version,
		app.logger,
	)

	app.services.Register("mqtt", mqttClient)
	app.services.Register("homeassistant", haManager)
	app.services.Register("coordinator", coord)

	if app.config.Server.Listen != "" {
		statusServer := server.New(
			&app.config.Server,
			coord,
			app.registry,
			app.config.Sunshine.RequestTimeout,
			app.version,
			app.logger,
		)
		app.services.Register("server", statusServer)
	}

	app.handlers.SetupHandlers(app.services, coord)

	return nil
}

func (app *Application) Start() error {
	return app.services.StartAll()
}

func (app *Application) Stop() error {
	return app.services.StopAll()
}

// Entities is nil until Initialize succeeded
func (app *Application) Entities() *entity.Registry {
	return app.registry
}
