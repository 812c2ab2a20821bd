package app

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/coordinator"
	"github.com/Zanooda/sunshine-homeassistant/pkg/entity"
)

// EventHandlers manages all event handling logic
type EventHandlers struct {
	logger *logrus.Logger

	mutex     sync.Mutex
	known     map[string]bool
	available bool
}

// NewEventHandlers creates a new event handlers instance
func NewEventHandlers(logger *logrus.Logger) *EventHandlers {
	return &EventHandlers{
		logger:    logger,
		available: true,
	}
}

// SetupHandlers configures all event handlers between services
func (h *EventHandlers) SetupHandlers(services *ServiceManager, coord *coordinator.Coordinator) {
	h.mutex.Lock()
	h.known = make(map[string]bool)
	for _, scooterID := range entity.ScooterIDs(coord.Data()) {
		h.known[scooterID] = true
	}
	h.mutex.Unlock()

	coord.Subscribe(h.createUpdateHandler(services))
}

// createUpdateHandler creates the coordinator listener that logs fleet
// changes and republishes entity state to Home Assistant
func (h *EventHandlers) createUpdateHandler(services *ServiceManager) coordinator.Listener {
	return func(snapshot coordinator.Snapshot, err error) {
		h.logUpdate(snapshot, err)

		haManager := services.GetHomeAssistantIntegration()
		if haManager == nil {
			h.logger.Error("Home Assistant integration not available in update handler")
			return
		}
		haManager.HandleUpdate(snapshot, err)
	}
}

func (h *EventHandlers) logUpdate(snapshot coordinator.Snapshot, err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if err != nil {
		if h.available {
			h.logger.WithError(err).Warn("Scooter entities unavailable until the next successful poll")
		}
		h.available = false
		return
	}

	if !h.available {
		h.logger.WithField("scooters", len(snapshot)).Info("Scooter data available again")
	}
	h.available = true

	for scooterID := range h.known {
		if _, ok := snapshot[scooterID]; !ok {
			h.logger.WithField("scooter_id", scooterID).Warn("Scooter missing from API response, its entities are unavailable")
		}
	}

	for scooterID := range snapshot {
		if !h.known[scooterID] {
			// entities are only created at startup
			h.logger.WithField("scooter_id", scooterID).Info("New scooter in API response, restart the bridge to add its entities")
			h.known[scooterID] = true
		}
	}
}
