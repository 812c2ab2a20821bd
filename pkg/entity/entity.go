package entity

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/coordinator"
	"github.com/Zanooda/sunshine-homeassistant/pkg/sunshine"
)

const (
	Manufacturer = "Sunshine"
	UnknownModel = "Unknown"
)

type Platform string

const (
	PlatformSensor        Platform = "sensor"
	PlatformSwitch        Platform = "switch"
	PlatformDeviceTracker Platform = "device_tracker"
	PlatformSelect        Platform = "select"
	PlatformButton        Platform = "button"
)

// API is the set of per-scooter commands entities can issue
type API interface {
	Lock(ctx context.Context, scooterID string) error
	Unlock(ctx context.Context, scooterID string) error
	Honk(ctx context.Context, scooterID string) error
	Locate(ctx context.Context, scooterID string) error
	Ping(ctx context.Context, scooterID string) error
	MakeNoise(ctx context.Context, scooterID string) error
	OpenSeatbox(ctx context.Context, scooterID string) error
	RequestTelemetry(ctx context.Context, scooterID string) error
	UpdateFirmware(ctx context.Context, scooterID string) error
	TriggerAlarm(ctx context.Context, scooterID, duration string) error
	Blinkers(ctx context.Context, scooterID, state string) error
	PlaySound(ctx context.Context, scooterID, sound string) error
}

// DataSource is the read side entities render from. *coordinator.Coordinator
// satisfies it.
type DataSource interface {
	Data() coordinator.Snapshot
	Scooter(id string) (sunshine.Scooter, bool)
	LastUpdateSuccess() bool
	RequestRefresh(ctx context.Context)
}

// DeviceInfo identifies the scooter an entity belongs to
type DeviceInfo struct {
	ID           string
	Name         string
	Model        string
	Manufacturer string
}

// Entity is the common surface of every scooter entity
type Entity interface {
	UniqueID() string
	Key() string
	Platform() Platform
	ScooterID() string
	Name() string
	Icon() string
	Device() DeviceInfo
	Available() bool
}

type base struct {
	api       API
	source    DataSource
	logger    logrus.FieldLogger
	scooterID string
	key       string
	name      string
	icon      string
	platform  Platform
}

func newBase(api API, source DataSource, logger logrus.FieldLogger, scooterID, key, name, icon string, platform Platform) base {
	return base{
		api:       api,
		source:    source,
		logger:    logger.WithField("scooter_id", scooterID),
		scooterID: scooterID,
		key:       key,
		name:      name,
		icon:      icon,
		platform:  platform,
	}
}

func (b *base) UniqueID() string {
	return fmt.Sprintf("%s_%s", b.scooterID, b.key)
}

func (b *base) Key() string {
	return b.key
}

func (b *base) Platform() Platform {
	return b.platform
}

func (b *base) ScooterID() string {
	return b.scooterID
}

func (b *base) Icon() string {
	return b.icon
}

func (b *base) scooter() (sunshine.Scooter, bool) {
	return b.source.Scooter(b.scooterID)
}

func (b *base) displayID() string {
	if scooter, ok := b.scooter(); ok {
		return scooter.DisplayID(b.scooterID)
	}
	return b.scooterID
}

// Name renders as "{vin-or-id} {capability name}"
func (b *base) Name() string {
	return fmt.Sprintf("%s %s", b.displayID(), b.name)
}

func (b *base) Device() DeviceInfo {
	model := UnknownModel
	if scooter, ok := b.scooter(); ok {
		if m, ok := scooter.String(sunshine.FieldModel); ok && m != "" {
			model = m
		}
	}

	return DeviceInfo{
		ID:           b.scooterID,
		Name:         fmt.Sprintf("Scooter %s", b.displayID()),
		Model:        model,
		Manufacturer: Manufacturer,
	}
}

// Available is false while the last poll failed or the scooter has dropped
// out of the snapshot.
func (b *base) Available() bool {
	if !b.source.LastUpdateSuccess() {
		return false
	}
	_, ok := b.scooter()
	return ok
}

func (b *base) field(key string) (any, bool) {
	scooter, ok := b.scooter()
	if !ok {
		return nil, false
	}
	return scooter.Get(key)
}
