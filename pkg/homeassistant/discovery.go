package homeassistant

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/Zanooda/sunshine-homeassistant/pkg/config"
	"github.com/Zanooda/sunshine-homeassistant/pkg/entity"
)

const (
	AvailabilityModeAll = "all"
	EntityCategoryDiag  = "diagnostic"

	// PayloadNone makes Home Assistant render a sensor as unknown
	PayloadNone = "None"
)

type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

type AvailabilityConfig struct {
	Topic string `json:"topic"`
}

// DiscoveryConfig is the retained payload published on an entity's config
// topic. Fields that do not apply to a platform are left empty.
type DiscoveryConfig struct {
	Name              string               `json:"name"`
	ObjectID          string               `json:"object_id,omitempty"`
	UniqueID          string               `json:"unique_id"`
	TildeTopic        string               `json:"~,omitempty"`
	StateTopic        string               `json:"state_topic,omitempty"`
	CommandTopic      string               `json:"command_topic,omitempty"`
	AttributesTopic   string               `json:"json_attributes_topic,omitempty"`
	Availability      []AvailabilityConfig `json:"availability,omitempty"`
	AvailabilityMode  string               `json:"availability_mode,omitempty"`
	Device            *DeviceInfo          `json:"device,omitempty"`
	Icon              string               `json:"icon,omitempty"`
	EntityCategory    string               `json:"entity_category,omitempty"`
	UnitOfMeasurement string               `json:"unit_of_measurement,omitempty"`
	Options           []string             `json:"options,omitempty"`
	PayloadOn         string               `json:"payload_on,omitempty"`
	PayloadOff        string               `json:"payload_off,omitempty"`
	StateOn           string               `json:"state_on,omitempty"`
	StateOff          string               `json:"state_off,omitempty"`
	PayloadPress      string               `json:"payload_press,omitempty"`
	SourceType        string               `json:"source_type,omitempty"`
}

// Topics for one discovered entity, all below
// {prefix}/{platform}/{node}/{object}
type Topics struct {
	Base              string
	ConfigTopic       string
	StateTopic        string
	CommandTopic      string
	AvailabilityTopic string
	AttributesTopic   string
}

var invalidTopicChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeObjectID maps an id onto the characters allowed in a discovery
// node or object id
func SanitizeObjectID(id string) string {
	return invalidTopicChars.ReplaceAllString(id, "_")
}

func GenerateBridgeID(haConfig *config.HomeAssistantConfig) string {
	instance := haConfig.InstanceID
	if instance == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		instance = hostname
	}
	return SanitizeObjectID(fmt.Sprintf("sunshine-bridge-%s", instance))
}

// GenerateBridgeAvailabilityTopic is also the MQTT last will topic
func GenerateBridgeAvailabilityTopic(haConfig *config.HomeAssistantConfig) string {
	return fmt.Sprintf("%s/sensor/%s/availability", haConfig.DiscoveryPrefix, GenerateBridgeID(haConfig))
}

func generateTopics(prefix, platform, node, object string) Topics {
	base := fmt.Sprintf("%s/%s/%s/%s", prefix, platform, node, SanitizeObjectID(object))
	return Topics{
		Base:              base,
		ConfigTopic:       base + "/config",
		StateTopic:        base + "/state",
		CommandTopic:      base + "/set",
		AvailabilityTopic: base + "/availability",
		AttributesTopic:   base + "/attributes",
	}
}

func scooterDevice(info entity.DeviceInfo, bridgeID string) *DeviceInfo {
	return &DeviceInfo{
		Identifiers:  []string{fmt.Sprintf("sunshine_%s", info.ID)},
		Name:         info.Name,
		Model:        info.Model,
		Manufacturer: info.Manufacturer,
		ViaDevice:    bridgeID,
	}
}

// buildDiscoveryConfig renders the platform specific discovery payload for
// a scooter entity. Topics are relative to "~".
func buildDiscoveryConfig(e entity.Entity, topics Topics, bridgeAvailability, bridgeID string) DiscoveryConfig {
	cfg := DiscoveryConfig{
		Name:       e.Name(),
		ObjectID:   SanitizeObjectID(e.UniqueID()),
		UniqueID:   e.UniqueID(),
		TildeTopic: topics.Base,
		Availability: []AvailabilityConfig{
			{Topic: "~/availability"},
			{Topic: bridgeAvailability},
		},
		AvailabilityMode: AvailabilityModeAll,
		Device:           scooterDevice(e.Device(), bridgeID),
		Icon:             e.Icon(),
	}

	switch target := e.(type) {
	case *entity.Sensor:
		cfg.StateTopic = "~/state"
		cfg.UnitOfMeasurement = target.Unit()
	case *entity.LockSwitch:
		cfg.StateTopic = "~/state"
		cfg.CommandTopic = "~/set"
		cfg.PayloadOn = entity.PayloadOn
		cfg.PayloadOff = entity.PayloadOff
		cfg.StateOn = entity.PayloadOn
		cfg.StateOff = entity.PayloadOff
	case *entity.DeviceTracker:
		cfg.AttributesTopic = "~/attributes"
		cfg.SourceType = target.SourceType()
	case *entity.Select:
		cfg.StateTopic = "~/state"
		cfg.CommandTopic = "~/set"
		cfg.Options = target.Options()
	case *entity.Button:
		cfg.CommandTopic = "~/set"
		cfg.PayloadPress = entity.PayloadPress
	}

	return cfg
}

// EntityState renders the state topic payload. ok is false for platforms
// without a state topic.
func EntityState(e entity.Entity) (state string, ok bool) {
	switch target := e.(type) {
	case *entity.Sensor:
		return formatValue(target.Value()), true
	case *entity.LockSwitch:
		if target.IsOn() {
			return entity.PayloadOn, true
		}
		return entity.PayloadOff, true
	case *entity.Select:
		return target.CurrentOption(), true
	default:
		return "", false
	}
}

func formatValue(v any) string {
	switch value := v.(type) {
	case nil:
		return PayloadNone
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprint(value)
	}
}
