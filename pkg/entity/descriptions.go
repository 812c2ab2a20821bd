package entity

import (
	"context"
	"fmt"
)

const (
	BlinkerOff   = "off"
	BlinkerLeft  = "left"
	BlinkerRight = "right"
	BlinkerBoth  = "both"

	SoundAlarm  = "alarm"
	SoundChirp  = "chirp"
	SoundFindMe = "find_me"
)

// SensorDescription describes one read-only sensor reading a single field
type SensorDescription struct {
	Key  string
	Name string
	Unit string
	Icon string
}

// ButtonDescription binds a button to a direct API call
type ButtonDescription struct {
	Key   string
	Name  string
	Icon  string
	Press func(ctx context.Context, api API, scooterID string) error
}

// Method tags the API operation a select drives. Dispatch is a plain
// switch in Invoke, never reflection.
type Method string

const (
	MethodBlinkers  Method = "blinkers"
	MethodPlaySound Method = "play_sound"
)

// Invoke calls the API operation for m with the option as its parameter
func (m Method) Invoke(ctx context.Context, api API, scooterID, param string) error {
	switch m {
	case MethodBlinkers:
		return api.Blinkers(ctx, scooterID, param)
	case MethodPlaySound:
		return api.PlaySound(ctx, scooterID, param)
	default:
		return fmt.Errorf("unknown select method %q", m)
	}
}

// SelectDescription binds a select to the API method receiving the
// chosen option
type SelectDescription struct {
	Key     string
	Name    string
	Icon    string
	Options []string
	Method  Method
}

// StateKey is the record field that, when present, holds the server-side
// current option.
func (d SelectDescription) StateKey() string {
	return d.Key + "_state"
}

var SensorTypes = []SensorDescription{
	{Key: "battery_level", Name: "Battery Level", Unit: "%", Icon: "mdi:battery"},
	{Key: "speed", Name: "Speed", Unit: "km/h", Icon: "mdi:speedometer"},
	{Key: "odometer", Name: "Odometer", Unit: "km", Icon: "mdi:counter"},
	{Key: "status", Name: "Status", Icon: "mdi:information-outline"},
}

var ButtonTypes = []ButtonDescription{
	{
		Key:  "honk",
		Name: "Honk",
		Icon: "mdi:bullhorn",
		Press: func(ctx context.Context, api API, scooterID string) error {
			return api.Honk(ctx, scooterID)
		},
	},
	{
		Key:  "locate",
		Name: "Locate",
		Icon: "mdi:map-marker",
		Press: func(ctx context.Context, api API, scooterID string) error {
			return api.Locate(ctx, scooterID)
		},
	},
	{
		Key:  "ping",
		Name: "Ping",
		Icon: "mdi:access-point-network",
		Press: func(ctx context.Context, api API, scooterID string) error {
			return api.Ping(ctx, scooterID)
		},
	},
	{
		Key:  "make_noise",
		Name: "Make Noise",
		Icon: "mdi:volume-high",
		Press: func(ctx context.Context, api API, scooterID string) error {
			return api.MakeNoise(ctx, scooterID)
		},
	},
	{
		Key:  "open_seatbox",
		Name: "Open Seatbox",
		Icon: "mdi:treasure-chest",
		Press: func(ctx context.Context, api API, scooterID string) error {
			return api.OpenSeatbox(ctx, scooterID)
		},
	},
	{
		Key:  "request_telemetry",
		Name: "Request Telemetry",
		Icon: "mdi:chart-line",
		Press: func(ctx context.Context, api API, scooterID string) error {
			return api.RequestTelemetry(ctx, scooterID)
		},
	},
	{
		Key:  "update_firmware",
		Name: "Update Firmware",
		Icon: "mdi:cellphone-arrow-down",
		Press: func(ctx context.Context, api API, scooterID string) error {
			return api.UpdateFirmware(ctx, scooterID)
		},
	},
	{
		Key:  "alarm_5s",
		Name: "Alarm (5s)",
		Icon: "mdi:alarm-light",
		Press: func(ctx context.Context, api API, scooterID string) error {
			return api.TriggerAlarm(ctx, scooterID, "5s")
		},
	},
}

var SelectTypes = []SelectDescription{
	{
		Key:     "blinkers",
		Name:    "Blinkers",
		Icon:    "mdi:car-light-high",
		Options: []string{BlinkerOff, BlinkerLeft, BlinkerRight, BlinkerBoth},
		Method:  MethodBlinkers,
	},
	{
		Key:     "sound",
		Name:    "Play Sound",
		Icon:    "mdi:volume-high",
		Options: []string{SoundAlarm, SoundChirp, SoundFindMe},
		Method:  MethodPlaySound,
	},
}
