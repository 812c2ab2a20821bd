package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/config"
)

const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

var ErrNotConnected = errors.New("MQTT client is not connected")

// MessageHandler receives the topic and payload of an incoming message
type MessageHandler func(topic, payload string)

// Client wraps paho with availability handling and subscriptions that
// survive reconnects.
type Client struct {
	client        mqtt.Client
	config        *config.MQTTConfig
	logger        *logrus.Logger
	connected     bool
	mutex         sync.RWMutex
	willTopic     string
	onConnect     func()
	onDisconnect  func()
	subscriptions map[string]MessageHandler
}

// NewClient creates a new MQTT client. willTopic receives "online" on every
// connect and "offline" as last will.
func NewClient(cfg *config.MQTTConfig, willTopic string, logger *logrus.Logger) (*Client, error) {
	c := &Client{
		config:        cfg,
		logger:        logger,
		willTopic:     willTopic,
		subscriptions: make(map[string]MessageHandler),
	}

	c.client = mqtt.NewClient(c.buildClientOptions())

	return c, nil
}

func (c *Client) buildClientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(c.config.BrokerURL).
		SetClientID(c.config.ClientID).
		SetKeepAlive(time.Duration(c.config.KeepAlive) * time.Second).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(60 * time.Second).
		SetConnectRetryInterval(2 * time.Second).
		SetConnectRetry(true).
		SetConnectTimeout(10 * time.Second).
		SetPingTimeout(5 * time.Second).
		SetWriteTimeout(5 * time.Second).
		// command handlers call the scooter API and publish state; they
		// must not hold up paho's router
		SetOrderMatters(false).
		SetOnConnectHandler(c.handleConnect).
		SetConnectionLostHandler(c.handleConnectionLost)

	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		if c.config.Password != "" {
			opts.SetPassword(c.config.Password)
		}
	}

	if c.config.IsSecure() {
		opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: c.config.InsecureSkipVerify, // #nosec G402 - configurable for dev environments
		})
	}

	if c.willTopic != "" {
		opts.SetWill(c.willTopic, PayloadOffline, c.config.QoS, true)
	}

	return opts
}

// SetOnConnectCallback sets the callback function to be called when connected
func (c *Client) SetOnConnectCallback(callback func()) {
	c.mutex.Lock()
	c.onConnect = callback
	c.mutex.Unlock()
}

// SetOnDisconnectCallback sets the callback function to be called when disconnected
func (c *Client) SetOnDisconnectCallback(callback func()) {
	c.mutex.Lock()
	c.onDisconnect = callback
	c.mutex.Unlock()
}

// Start connects to the broker (implements Service interface)
func (c *Client) Start() error {
	return c.Connect()
}

// Connect connects to the MQTT broker
func (c *Client) Connect() error {
	c.logger.WithField("broker", c.config.BrokerURL).Info("Connecting to MQTT broker")

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return nil
}

// Stop disconnects from the broker (implements Service interface)
func (c *Client) Stop() error {
	c.Disconnect()
	return nil
}

// Disconnect publishes offline availability and disconnects. Safe to call
// repeatedly.
func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker")

	if c.willTopic != "" && c.IsConnected() {
		_ = c.Publish(c.willTopic, PayloadOffline, true)
	}

	c.client.Disconnect(250)
	c.setConnected(false)
}

// Publish publishes a message to the specified topic with retain flag
func (c *Client) Publish(topic, payload string, retain bool) error {
	logger := c.logger.WithField("topic", topic)

	if !c.IsConnected() {
		logger.Debug("MQTT not connected, dropping publish")
		return ErrNotConnected
	}

	logger.Debugf("Publishing: %s", payload)

	token := c.client.Publish(topic, c.config.QoS, retain, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		logger.WithError(err).Error("Failed to publish")
		return err
	}

	return nil
}

// PublishJSON marshals v and publishes it
func (c *Client) PublishJSON(topic string, v any, retain bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}
	return c.Publish(topic, string(payload), retain)
}

// Subscribe registers handler for topic. Subscriptions are remembered and
// restored after every reconnect since sessions are clean.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.mutex.Lock()
	c.subscriptions[topic] = handler
	c.mutex.Unlock()

	if !c.IsConnected() {
		c.logger.WithField("topic", topic).Debug("MQTT not connected, subscription deferred")
		return nil
	}

	return c.subscribe(topic, handler)
}

func (c *Client) subscribe(topic string, handler MessageHandler) error {
	token := c.client.Subscribe(topic, c.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), string(msg.Payload()))
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	c.logger.WithField("topic", topic).Debug("Subscribed")
	return nil
}

func (c *Client) resubscribe() {
	c.mutex.RLock()
	subscriptions := make(map[string]MessageHandler, len(c.subscriptions))
	for topic, handler := range c.subscriptions {
		subscriptions[topic] = handler
	}
	c.mutex.RUnlock()

	for topic, handler := range subscriptions {
		if err := c.subscribe(topic, handler); err != nil {
			c.logger.WithError(err).Error("Failed to restore subscription")
		}
	}
}

// IsConnected returns true if the client is connected to the broker
func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.connected && c.client.IsConnected()
}

func (c *Client) setConnected(connected bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.connected = connected
}

func (c *Client) handleConnect(mqtt.Client) {
	c.logger.Info("MQTT client connected")
	c.setConnected(true)

	if c.willTopic != "" {
		if err := c.Publish(c.willTopic, PayloadOnline, true); err != nil {
			c.logger.WithError(err).Error("Failed to publish online status")
		}
	}

	c.resubscribe()

	c.mutex.RLock()
	callback := c.onConnect
	c.mutex.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleConnectionLost(_ mqtt.Client, err error) {
	c.logger.WithError(err).Error("MQTT connection lost, reconnecting automatically")
	c.setConnected(false)

	c.mutex.RLock()
	callback := c.onDisconnect
	c.mutex.RUnlock()
	if callback != nil {
		callback()
	}
}

// WaitForConnection waits for the client to connect, with a timeout
func (c *Client) WaitForConnection(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsConnected() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for MQTT connection")
}
