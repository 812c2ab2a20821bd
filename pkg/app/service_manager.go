package app

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/coordinator"
	"github.com/Zanooda/sunshine-homeassistant/pkg/homeassistant"
	"github.com/Zanooda/sunshine-homeassistant/pkg/mqtt"
)

const mqttConnectTimeout = 10 * time.Second

type Service interface {
	Start() error
	Stop() error
}

// ServiceManager starts services in registration order and stops them in
// reverse. The MQTT client is connected first and disconnected last.
type ServiceManager struct {
	services map[string]Service
	order    []string
	started  []string
	logger   *logrus.Logger
}

func NewServiceManager(logger *logrus.Logger) *ServiceManager {
	return &ServiceManager{
		services: make(map[string]Service),
		logger:   logger,
	}
}

func (sm *ServiceManager) Register(name string, service Service) {
	sm.services[name] = service
	sm.order = append(sm.order, name)
	sm.logger.WithField("service", name).Debug("Service registered")
}

func (sm *ServiceManager) Get(name string) Service {
	if service, ok := sm.services[name]; ok {
		return service
	}
	return nil
}

func getService[T any](sm *ServiceManager, name string) T {
	var zero T
	service := sm.Get(name)
	if service == nil {
		return zero
	}
	if typed, ok := service.(T); ok {
		return typed
	}
	sm.logger.WithField("service", name).Error("Service type assertion failed")
	return zero
}

func (sm *ServiceManager) GetMQTTClient() *mqtt.Client {
	return getService[*mqtt.Client](sm, "mqtt")
}

func (sm *ServiceManager) GetHomeAssistantIntegration() *homeassistant.Integration {
	return getService[*homeassistant.Integration](sm, "homeassistant")
}

func (sm *ServiceManager) GetCoordinator() *coordinator.Coordinator {
	return getService[*coordinator.Coordinator](sm, "coordinator")
}

func (sm *ServiceManager) StartAll() error {
	sm.logger.Info("Starting application services...")

	if mqttClient := sm.GetMQTTClient(); mqttClient != nil {
		if err := mqttClient.Connect(); err != nil {
			return fmt.Errorf("MQTT connection failed: %w", err)
		}
		if err := mqttClient.WaitForConnection(mqttConnectTimeout); err != nil {
			return fmt.Errorf("MQTT connection timeout: %w", err)
		}
		sm.logger.Info("MQTT service started")
	}

	for _, name := range sm.order {
		if name == "mqtt" {
			continue
		}

		logger := sm.logger.WithField("service", name)
		logger.Debug("Starting service")
		if err := sm.services[name].Start(); err != nil {
			return fmt.Errorf("failed to start service %s: %w", name, err)
		}
		sm.started = append(sm.started, name)
		logger.Debug("Service started")
	}

	sm.logger.Info("All services started successfully")
	return nil
}

// StopAll stops every service that was started, even after a partial
// StartAll
func (sm *ServiceManager) StopAll() error {
	sm.logger.Info("Stopping application services...")

	for i := len(sm.started) - 1; i >= 0; i-- {
		name := sm.started[i]

		logger := sm.logger.WithField("service", name)
		logger.Debug("Stopping service")
		if err := sm.services[name].Stop(); err != nil {
			logger.WithError(err).Error("Failed to stop service")
		} else {
			logger.Debug("Service stopped")
		}
	}
	sm.started = nil

	if mqttClient := sm.GetMQTTClient(); mqttClient != nil {
		mqttClient.Disconnect()
		sm.logger.Debug("MQTT service disconnected")
	}

	sm.logger.Info("All services stopped")
	return nil
}
