package entity

import (
	"slices"

	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/coordinator"
)

// Entities are created once from the snapshot at setup time. Scooters that
// appear in later polls get no entities until the bridge restarts.

// ScooterIDs returns the snapshot's scooter ids in stable order
func ScooterIDs(snapshot coordinator.Snapshot) []string {
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func fanOut[D any, E any](snapshot coordinator.Snapshot, descriptions []D, build func(scooterID string, description D) E) []E {
	entities := make([]E, 0, len(snapshot)*len(descriptions))
	for _, scooterID := range ScooterIDs(snapshot) {
		for _, description := range descriptions {
			entities = append(entities, build(scooterID, description))
		}
	}
	return entities
}

func SetupSensors(api API, source DataSource, logger logrus.FieldLogger, snapshot coordinator.Snapshot, descriptions []SensorDescription) []*Sensor {
	return fanOut(snapshot, descriptions, func(scooterID string, d SensorDescription) *Sensor {
		return NewSensor(api, source, logger, scooterID, d)
	})
}

func SetupButtons(api API, source DataSource, logger logrus.FieldLogger, snapshot coordinator.Snapshot, descriptions []ButtonDescription) []*Button {
	return fanOut(snapshot, descriptions, func(scooterID string, d ButtonDescription) *Button {
		return NewButton(api, source, logger, scooterID, d)
	})
}

func SetupSelects(api API, source DataSource, logger logrus.FieldLogger, snapshot coordinator.Snapshot, descriptions []SelectDescription) []*Select {
	return fanOut(snapshot, descriptions, func(scooterID string, d SelectDescription) *Select {
		return NewSelect(api, source, logger, scooterID, d)
	})
}

func SetupLockSwitches(api API, source DataSource, logger logrus.FieldLogger, snapshot coordinator.Snapshot) []*LockSwitch {
	entities := make([]*LockSwitch, 0, len(snapshot))
	for _, scooterID := range ScooterIDs(snapshot) {
		entities = append(entities, NewLockSwitch(api, source, logger, scooterID))
	}
	return entities
}

func SetupDeviceTrackers(api API, source DataSource, logger logrus.FieldLogger, snapshot coordinator.Snapshot) []*DeviceTracker {
	entities := make([]*DeviceTracker, 0, len(snapshot))
	for _, scooterID := range ScooterIDs(snapshot) {
		entities = append(entities, NewDeviceTracker(api, source, logger, scooterID))
	}
	return entities
}

// SetupAll builds every platform's entities from the source's current
// snapshot, ordered by platform.
func SetupAll(api API, source DataSource, logger logrus.FieldLogger) []Entity {
	snapshot := source.Data()

	var entities []Entity
	for _, e := range SetupSensors(api, source, logger, snapshot, SensorTypes) {
		entities = append(entities, e)
	}
	for _, e := range SetupLockSwitches(api, source, logger, snapshot) {
		entities = append(entities, e)
	}
	for _, e := range SetupDeviceTrackers(api, source, logger, snapshot) {
		entities = append(entities, e)
	}
	for _, e := range SetupSelects(api, source, logger, snapshot, SelectTypes) {
		entities = append(entities, e)
	}
	for _, e := range SetupButtons(api, source, logger, snapshot, ButtonTypes) {
		entities = append(entities, e)
	}

	logger.WithField("scooters", len(snapshot)).Infof("Set up %d entities", len(entities))
	return entities
}
