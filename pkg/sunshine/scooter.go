package sunshine

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Scooter is one record as returned by the API. No schema is enforced;
// callers pick the fields they need and apply their own defaults.
type Scooter map[string]any

const (
	FieldID               = "id"
	FieldVIN              = "vin"
	FieldModel            = "model"
	FieldBatteryLevel     = "battery_level"
	FieldSpeed            = "speed"
	FieldOdometer         = "odometer"
	FieldStatus           = "status"
	FieldLatitude         = "latitude"
	FieldLongitude        = "longitude"
	FieldLocationAccuracy = "location_accuracy"
	FieldLocked           = "locked"
)

// ID returns the scooter identifier. Numeric ids are rendered as strings.
func (s Scooter) ID() (string, bool) {
	v, ok := s[FieldID]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return fmt.Sprint(id), true
	}
}

func (s Scooter) Get(key string) (any, bool) {
	v, ok := s[key]
	return v, ok
}

func (s Scooter) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok
}

// Float reads a numeric field, accepting any of the number shapes a JSON
// decoder or a hand-built record may produce.
func (s Scooter) Float(key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (s Scooter) Bool(key string) (bool, bool) {
	v, ok := s[key].(bool)
	return v, ok
}

// DisplayID is the VIN when the API provides one, the scooter id otherwise.
func (s Scooter) DisplayID(fallback string) string {
	if vin, ok := s.String(FieldVIN); ok && vin != "" {
		return vin
	}
	return fallback
}
