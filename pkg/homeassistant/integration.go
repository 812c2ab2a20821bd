package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/config"
	"github.com/Zanooda/sunshine-homeassistant/pkg/coordinator"
	"github.com/Zanooda/sunshine-homeassistant/pkg/entity"
	"github.com/Zanooda/sunshine-homeassistant/pkg/mqtt"
)

// Broker is the slice of the MQTT client the integration needs
type Broker interface {
	Publish(topic, payload string, retain bool) error
	PublishJSON(topic string, v any, retain bool) error
	Subscribe(topic string, handler mqtt.MessageHandler) error
	IsConnected() bool
	SetOnConnectCallback(callback func())
	SetOnDisconnectCallback(callback func())
}

type scooterEntity struct {
	entity entity.Entity
	topics Topics
}

// Integration exposes the scooter entities to Home Assistant through MQTT
// discovery, keeps their state topics current and routes command topics
// back to the entities.
type Integration struct {
	broker         Broker
	config         *config.HomeAssistantConfig
	logger         *logrus.Logger
	fleet          FleetStatus
	registry       *entity.Registry
	commandTimeout time.Duration

	bridgeID           string
	bridgeAvailability string
	bridgeDeviceInfo   *DeviceInfo
	entities           []scooterEntity
	byObjectID         map[string]string

	publishMutex sync.Mutex
}

func NewIntegration(
	broker Broker,
	haConfig *config.HomeAssistantConfig,
	fleet FleetStatus,
	registry *entity.Registry,
	commandTimeout time.Duration,
	version string,
	logger *logrus.Logger,
) *Integration {
	bridgeID := GenerateBridgeID(haConfig)

	integration := &Integration{
		broker:             broker,
		config:             haConfig,
		logger:             logger,
		fleet:              fleet,
		registry:           registry,
		commandTimeout:     commandTimeout,
		bridgeID:           bridgeID,
		bridgeAvailability: GenerateBridgeAvailabilityTopic(haConfig),
		bridgeDeviceInfo: &DeviceInfo{
			Identifiers:  []string{bridgeID},
			Name:         "Sunshine Scooter Bridge",
			Model:        "https://github.com/Zanooda/sunshine-homeassistant",
			Manufacturer: entity.Manufacturer,
			SWVersion:    version,
		},
		byObjectID: make(map[string]string, registry.Len()),
	}

	for _, e := range registry.All() {
		topics := generateTopics(haConfig.DiscoveryPrefix, string(e.Platform()), bridgeID, e.UniqueID())
		integration.entities = append(integration.entities, scooterEntity{entity: e, topics: topics})

		objectID := SanitizeObjectID(e.UniqueID())
		if existing, ok := integration.byObjectID[objectID]; ok {
			logger.Warnf("Entities %s and %s share object id %s, commands go to the latter", existing, e.UniqueID(), objectID)
		}
		integration.byObjectID[objectID] = e.UniqueID()
	}

	return integration
}

// CommandTopicFilter matches the command topic of every scooter entity
func (integration *Integration) CommandTopicFilter() string {
	return fmt.Sprintf("%s/+/%s/+/set", integration.config.DiscoveryPrefix, integration.bridgeID)
}

// BirthTopic is where Home Assistant announces it (re)started
func (integration *Integration) BirthTopic() string {
	return fmt.Sprintf("%s/status", integration.config.DiscoveryPrefix)
}

func (integration *Integration) Start() error {
	integration.logger.WithField("entities", len(integration.entities)).Info("Starting Home Assistant integration")

	integration.broker.SetOnConnectCallback(integration.handleConnect)
	integration.broker.SetOnDisconnectCallback(integration.handleDisconnect)

	if err := integration.broker.Subscribe(integration.CommandTopicFilter(), integration.handleCommand); err != nil {
		return fmt.Errorf("failed to subscribe to command topics: %w", err)
	}
	if err := integration.broker.Subscribe(integration.BirthTopic(), integration.handleBirth); err != nil {
		return fmt.Errorf("failed to subscribe to birth topic: %w", err)
	}

	if integration.broker.IsConnected() {
		integration.handleConnect()
	}

	return nil
}

func (integration *Integration) Stop() error {
	integration.logger.Info("Stopping Home Assistant integration")

	if !integration.broker.IsConnected() {
		return nil
	}

	for _, bridgeEntity := range bridgeEntities {
		topics := integration.bridgeEntityTopics(bridgeEntity)
		if err := integration.broker.Publish(topics.StateTopic, bridgeEntity.GetShutdownState(integration.fleet), false); err != nil {
			integration.logger.WithError(err).Errorf("Failed to publish %s shutdown state", bridgeEntity.Name)
		}
	}

	if err := integration.publishBridgeAvailability(StatusOffline); err != nil {
		integration.logger.WithError(err).Error("Failed to publish bridge offline status")
	}

	return nil
}

// HandleUpdate is registered as a coordinator listener and republishes
// every entity after each poll, successful or not
func (integration *Integration) HandleUpdate(snapshot coordinator.Snapshot, err error) {
	logger := integration.logger.WithField("scooters", len(snapshot))
	if err != nil {
		logger = logger.WithError(err)
	}
	logger.Debug("Coordinator update, publishing entity states")

	integration.PublishStates()
}

// PublishStates publishes availability, state and attributes for every
// entity plus the bridge diagnostics. No-op while disconnected.
func (integration *Integration) PublishStates() {
	if !integration.broker.IsConnected() {
		return
	}

	integration.publishMutex.Lock()
	defer integration.publishMutex.Unlock()

	for _, se := range integration.entities {
		if err := integration.publishEntityState(se); err != nil {
			integration.logger.WithField("entity", se.entity.UniqueID()).WithError(err).Error("Failed to publish entity state")
		}
	}

	for _, bridgeEntity := range bridgeEntities {
		if err := integration.publishBridgeEntityState(bridgeEntity); err != nil {
			integration.logger.WithError(err).Errorf("Failed to update %s", bridgeEntity.Name)
		}
	}
}

func (integration *Integration) publishEntityState(se scooterEntity) error {
	availability := StatusOffline
	if se.entity.Available() {
		availability = StatusOnline
	}
	if err := integration.broker.Publish(se.topics.AvailabilityTopic, availability, true); err != nil {
		return err
	}

	if state, ok := EntityState(se.entity); ok {
		if err := integration.broker.Publish(se.topics.StateTopic, state, false); err != nil {
			return err
		}
	}

	if tracker, ok := se.entity.(*entity.DeviceTracker); ok {
		return integration.broker.PublishJSON(se.topics.AttributesTopic, tracker.Attributes(), false)
	}

	return nil
}

func (integration *Integration) publishDiscovery() {
	for _, bridgeEntity := range bridgeEntities {
		if err := integration.publishBridgeEntityDiscoveryConfig(bridgeEntity); err != nil {
			integration.logger.WithError(err).Errorf("Failed to publish %s discovery config", bridgeEntity.Name)
		}
	}

	for _, se := range integration.entities {
		cfg := buildDiscoveryConfig(se.entity, se.topics, integration.bridgeAvailability, integration.bridgeID)
		if err := integration.broker.PublishJSON(se.topics.ConfigTopic, cfg, true); err != nil {
			integration.logger.WithField("entity", se.entity.UniqueID()).WithError(err).Error("Failed to publish discovery config")
		}
	}
}

func (integration *Integration) bridgeEntityTopics(bridgeEntity BridgeEntity) Topics {
	return generateTopics(integration.config.DiscoveryPrefix, string(entity.PlatformSensor), integration.bridgeID, bridgeEntity.EntityType)
}

func (integration *Integration) publishBridgeEntityDiscoveryConfig(bridgeEntity BridgeEntity) error {
	topics := integration.bridgeEntityTopics(bridgeEntity)
	entityID := fmt.Sprintf("%s-%s", integration.bridgeID, bridgeEntity.EntityType)

	return integration.broker.PublishJSON(topics.ConfigTopic, DiscoveryConfig{
		Name:            bridgeEntity.Name,
		ObjectID:        SanitizeObjectID(entityID),
		UniqueID:        entityID,
		TildeTopic:      topics.Base,
		StateTopic:      "~/state",
		AttributesTopic: "~/attributes",
		Availability: []AvailabilityConfig{
			{Topic: integration.bridgeAvailability},
		},
		Device:         integration.bridgeDeviceInfo,
		Icon:           bridgeEntity.Icon,
		EntityCategory: EntityCategoryDiag,
	}, true)
}

func (integration *Integration) publishBridgeEntityState(bridgeEntity BridgeEntity) error {
	topics := integration.bridgeEntityTopics(bridgeEntity)

	if err := integration.broker.Publish(topics.StateTopic, bridgeEntity.GetStatus(integration.fleet), false); err != nil {
		return err
	}

	return integration.broker.PublishJSON(topics.AttributesTopic, bridgeEntity.GetAttributes(integration.fleet), false)
}

func (integration *Integration) publishBridgeAvailability(status string) error {
	return integration.broker.Publish(integration.bridgeAvailability, status, true)
}

func (integration *Integration) handleConnect() {
	integration.logger.Info("MQTT connected, publishing discovery configs and entity states")

	integration.publishDiscovery()

	if err := integration.publishBridgeAvailability(StatusOnline); err != nil {
		integration.logger.WithError(err).Error("Failed to publish bridge availability")
	}

	integration.PublishStates()
}

func (integration *Integration) handleDisconnect() {
	integration.logger.Warn("MQTT disconnected, entity states will be republished on reconnect")
}

// handleBirth republishes everything when Home Assistant comes back online,
// since it drops non-retained state on restart
func (integration *Integration) handleBirth(_, payload string) {
	if strings.TrimSpace(payload) != StatusOnline {
		return
	}

	integration.logger.Info("Home Assistant came online, republishing discovery configs")
	integration.publishDiscovery()
	integration.PublishStates()
}

func (integration *Integration) handleCommand(topic, payload string) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return
	}
	objectID := parts[len(parts)-2]

	uniqueID, ok := integration.byObjectID[objectID]
	if !ok {
		integration.logger.WithField("topic", topic).Warn("Command for unknown entity")
		return
	}

	ctx := context.Background()
	if integration.commandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, integration.commandTimeout)
		defer cancel()
	}

	logger := integration.logger.WithFields(logrus.Fields{
		"entity":  uniqueID,
		"payload": payload,
	})

	if err := integration.registry.Dispatch(ctx, uniqueID, payload); err != nil {
		if IsRejectedCommand(err) {
			logger.WithError(err).Warn("Rejected command")
		} else {
			// the entity has already logged the API failure
			logger.WithError(err).Debug("Command failed")
		}
		return
	}

	logger.Info("Command executed")
}

// IsRejectedCommand reports whether err means the command never reached the
// scooter API
func IsRejectedCommand(err error) bool {
	return errors.Is(err, entity.ErrUnknownEntity) ||
		errors.Is(err, entity.ErrReadOnlyEntity) ||
		errors.Is(err, entity.ErrInvalidOption) ||
		errors.Is(err, entity.ErrInvalidPayload)
}
