package homeassistant

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/Zanooda/sunshine-homeassistant/pkg/coordinator"
	"github.com/Zanooda/sunshine-homeassistant/pkg/sunshine"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// FleetStatus is what the bridge device reports about the polling loop.
// *coordinator.Coordinator satisfies it.
type FleetStatus interface {
	Data() coordinator.Snapshot
	LastUpdateSuccess() bool
	LastError() error
	LastUpdated() time.Time
}

// BridgeEntity is a diagnostic sensor attached to the bridge device rather
// than to a scooter
type BridgeEntity struct {
	EntityType       string
	Name             string
	Icon             string
	GetStatus        func(FleetStatus) string
	GetAttributes    func(FleetStatus) map[string]any
	GetShutdownState func(FleetStatus) string
}

var bridgeEntities = []BridgeEntity{
	{
		EntityType:       "diagnostics",
		Name:             "Fleet Diagnostics",
		Icon:             "mdi:stethoscope",
		GetStatus:        fleetStatus,
		GetAttributes:    fleetAttributes,
		GetShutdownState: func(FleetStatus) string { return StatusOffline },
	},
}

func fleetStatus(fleet FleetStatus) string {
	if fleet.LastUpdateSuccess() {
		return StatusOnline
	}
	return StatusOffline
}

func fleetAttributes(fleet FleetStatus) map[string]any {
	snapshot := fleet.Data()

	attributes := map[string]any{
		"scooter_count": len(snapshot),
	}

	if battery := batteryLevels(snapshot); len(battery) > 0 {
		if mean, err := stats.Mean(battery); err == nil {
			if rounded, err := stats.Round(mean, 1); err == nil {
				attributes["average_battery"] = rounded
			}
		}
		if lowest, err := stats.Min(battery); err == nil {
			attributes["lowest_battery"] = lowest
		}
	}

	if updated := fleet.LastUpdated(); !updated.IsZero() {
		attributes["last_update"] = updated.Format(time.RFC3339)
	}
	if err := fleet.LastError(); err != nil {
		attributes["last_error"] = err.Error()
	}

	return attributes
}

func batteryLevels(snapshot coordinator.Snapshot) stats.Float64Data {
	levels := make(stats.Float64Data, 0, len(snapshot))
	for _, scooter := range snapshot {
		if level, ok := scooter.Float(sunshine.FieldBatteryLevel); ok {
			levels = append(levels, level)
		}
	}
	return levels
}
