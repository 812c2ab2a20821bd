package entity

import (
	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/sunshine"
)

const (
	SourceTypeGPS = "gps"

	// DefaultLocationAccuracy in meters, used when the API omits it
	DefaultLocationAccuracy = 10
)

type DeviceTracker struct {
	base
}

func NewDeviceTracker(api API, source DataSource, logger logrus.FieldLogger, scooterID string) *DeviceTracker {
	return &DeviceTracker{
		base: newBase(api, source, logger, scooterID, "tracker", "Location", "mdi:scooter", PlatformDeviceTracker),
	}
}

func (d *DeviceTracker) number(key string) (float64, bool) {
	scooter, ok := d.scooter()
	if !ok {
		return 0, false
	}
	return scooter.Float(key)
}

func (d *DeviceTracker) Latitude() (float64, bool) {
	return d.number(sunshine.FieldLatitude)
}

func (d *DeviceTracker) Longitude() (float64, bool) {
	return d.number(sunshine.FieldLongitude)
}

func (d *DeviceTracker) BatteryLevel() (float64, bool) {
	return d.number(sunshine.FieldBatteryLevel)
}

func (d *DeviceTracker) LocationAccuracy() float64 {
	if accuracy, ok := d.number(sunshine.FieldLocationAccuracy); ok {
		return accuracy
	}
	return DefaultLocationAccuracy
}

func (d *DeviceTracker) SourceType() string {
	return SourceTypeGPS
}

// Attributes is the location payload in the shape Home Assistant expects
// for GPS trackers. Missing coordinates are left out.
func (d *DeviceTracker) Attributes() map[string]any {
	attributes := map[string]any{
		"gps_accuracy": d.LocationAccuracy(),
		"source_type":  d.SourceType(),
	}
	if lat, ok := d.Latitude(); ok {
		attributes["latitude"] = lat
	}
	if lon, ok := d.Longitude(); ok {
		attributes["longitude"] = lon
	}
	if battery, ok := d.BatteryLevel(); ok {
		attributes["battery_level"] = battery
	}
	return attributes
}
