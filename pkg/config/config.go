package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

type Config struct {
	Sunshine      SunshineConfig      `yaml:"sunshine"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	HomeAssistant HomeAssistantConfig `yaml:"homeassistant"`
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type SunshineConfig struct {
	APIURL         string        `yaml:"api_url"`
	Token          string        `yaml:"token,omitempty"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type MQTTConfig struct {
	BrokerURL          string `yaml:"broker_url"`
	Username           string `yaml:"username,omitempty"`
	Password           string `yaml:"password,omitempty"`
	ClientID           string `yaml:"client_id"`
	QoS                byte   `yaml:"qos"`
	KeepAlive          int    `yaml:"keep_alive"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

type HomeAssistantConfig struct {
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	InstanceID      string `yaml:"instance_id,omitempty"` // Unique identifier for this bridge instance
}

// ServerConfig controls the local status API. An empty Listen disables it.
type ServerConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Environment variables that take precedence over the config file, so
// secrets can live in a .env file instead of config.yaml.
const (
	EnvAPIURL       = "SUNSHINE_API_URL"
	EnvAPIToken     = "SUNSHINE_API_TOKEN"
	EnvMQTTUsername = "MQTT_USERNAME"
	EnvMQTTPassword = "MQTT_PASSWORD"
)

func (m *MQTTConfig) IsSecure() bool {
	return strings.HasPrefix(m.BrokerURL, "mqtts://") || strings.HasPrefix(m.BrokerURL, "wss://")
}

func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(configPath), ".env")); err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvironment()
	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadDotEnv populates the process environment from an optional .env file.
// Variables already set in the environment win.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironment() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.Sunshine.APIURL = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		c.Sunshine.Token = v
	}
	if v := os.Getenv(EnvMQTTUsername); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv(EnvMQTTPassword); v != "" {
		c.MQTT.Password = v
	}
}

func (c *Config) setDefaults() {
	c.setSunshineDefaults()
	c.setMQTTDefaults()
	c.setHomeAssistantDefaults()
	c.setLoggingDefaults()
}

func (c *Config) setSunshineDefaults() {
	if c.Sunshine.PollInterval == 0 {
		c.Sunshine.PollInterval = DefaultPollInterval
	}
	if c.Sunshine.RequestTimeout == 0 {
		c.Sunshine.RequestTimeout = DefaultRequestTimeout
	}
}

func (c *Config) setMQTTDefaults() {
	defaults := map[string]any{
		"broker_url": "mqtt://localhost:1883",
		"client_id":  "sunshine-bridge",
		"qos":        byte(1),
		"keep_alive": 60,
	}

	if c.MQTT.BrokerURL == "" {
		c.MQTT.BrokerURL = defaults["broker_url"].(string)
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = defaults["client_id"].(string)
	}
	if c.MQTT.QoS == 0 {
		c.MQTT.QoS = defaults["qos"].(byte)
	}
	if c.MQTT.KeepAlive == 0 {
		c.MQTT.KeepAlive = defaults["keep_alive"].(int)
	}
}

func (c *Config) setHomeAssistantDefaults() {
	if c.HomeAssistant.DiscoveryPrefix == "" {
		c.HomeAssistant.DiscoveryPrefix = "homeassistant"
	}
}

func (c *Config) setLoggingDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	if err := c.validateSunshine(); err != nil {
		return err
	}
	if err := c.validateMQTT(); err != nil {
		return err
	}
	if err := c.validateHomeAssistant(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSunshine() error {
	if c.Sunshine.APIURL == "" {
		return fmt.Errorf("sunshine.api_url is required (or set %s)", EnvAPIURL)
	}

	apiURL, err := url.Parse(c.Sunshine.APIURL)
	if err != nil {
		return fmt.Errorf("invalid sunshine.api_url '%s': %w", c.Sunshine.APIURL, err)
	}
	if apiURL.Scheme != "http" && apiURL.Scheme != "https" {
		return fmt.Errorf("sunshine.api_url '%s' must use http:// or https://", c.Sunshine.APIURL)
	}

	if c.Sunshine.Token == "" {
		return fmt.Errorf("sunshine.token is required (or set %s)", EnvAPIToken)
	}
	if c.Sunshine.PollInterval < time.Second {
		return fmt.Errorf("sunshine.poll_interval must be at least 1s (got %v)", c.Sunshine.PollInterval)
	}
	if c.Sunshine.RequestTimeout < 0 {
		return fmt.Errorf("sunshine.request_timeout must not be negative (got %v)", c.Sunshine.RequestTimeout)
	}
	return nil
}

func (c *Config) validateMQTT() error {
	if c.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url is required")
	}

	if _, err := url.Parse(c.MQTT.BrokerURL); err != nil {
		return fmt.Errorf("invalid mqtt.broker_url '%s': %w", c.MQTT.BrokerURL, err)
	}

	validSchemes := []string{"mqtt://", "mqtts://", "ws://", "wss://"}
	for _, scheme := range validSchemes {
		if strings.HasPrefix(c.MQTT.BrokerURL, scheme) {
			return c.validateMQTTParams()
		}
	}

	return fmt.Errorf("mqtt.broker_url '%s' must use one of: %s", c.MQTT.BrokerURL, strings.Join(validSchemes, ", "))
}

func (c *Config) validateMQTTParams() error {
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1, or 2 (got %d)", c.MQTT.QoS)
	}
	if c.MQTT.KeepAlive < 10 {
		return fmt.Errorf("mqtt.keep_alive must be at least 10 seconds (got %d)", c.MQTT.KeepAlive)
	}
	return nil
}

func (c *Config) validateHomeAssistant() error {
	if c.HomeAssistant.DiscoveryPrefix == "" {
		return fmt.Errorf("homeassistant.discovery_prefix is required")
	}

	if c.HomeAssistant.InstanceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname for instance_id: %w", err)
		}
		c.HomeAssistant.InstanceID = hostname
	}

	return nil
}

func (c *Config) validateLogging() error {
	validLogLevels := []string{"debug", "info", "warn", "warning", "error", "fatal", "panic"}
	logLevel := strings.ToLower(c.Logging.Level)
	if !slices.Contains(validLogLevels, logLevel) {
		return fmt.Errorf("logging.level '%s' must be one of: %s",
			c.Logging.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"text", "json"}
	logFormat := strings.ToLower(c.Logging.Format)
	if !slices.Contains(validLogFormats, logFormat) {
		return fmt.Errorf("logging.format '%s' must be one of: %s",
			c.Logging.Format, strings.Join(validLogFormats, ", "))
	}

	return nil
}
