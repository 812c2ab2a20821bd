package mqtt

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	cfg := &config.MQTTConfig{
		BrokerURL: "mqtt://localhost:1883",
		ClientID:  "sunshine-test",
		QoS:       1,
		KeepAlive: 60,
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	client, err := NewClient(cfg, "homeassistant/sensor/sunshine-bridge-test/availability", logger)
	if err != nil {
		t.Fatalf("Expected no error creating client, got: %v", err)
	}
	return client
}

func TestNewClient_StoresConfig(t *testing.T) {
	cfg := &config.MQTTConfig{
		BrokerURL: "mqtt://localhost:1883",
		ClientID:  "sunshine-test",
	}
	logger := logrus.New()

	client, err := NewClient(cfg, "bridge/availability", logger)
	if err != nil {
		t.Fatalf("Expected no error creating client, got: %v", err)
	}

	if client.config != cfg {
		t.Error("Expected config to be stored")
	}
	if client.willTopic != "bridge/availability" {
		t.Errorf("Expected will topic to be stored, got %q", client.willTopic)
	}
	if client.subscriptions == nil {
		t.Error("Expected subscription table to be initialized")
	}
}

func TestClient_IsConnected_InitiallyFalse(t *testing.T) {
	client := newTestClient(t)

	if client.IsConnected() {
		t.Error("Expected client to initially not be connected")
	}
}

func TestClient_SetCallbacks(t *testing.T) {
	client := newTestClient(t)

	connectCalled := false
	disconnectCalled := false
	client.SetOnConnectCallback(func() { connectCalled = true })
	client.SetOnDisconnectCallback(func() { disconnectCalled = true })

	client.handleConnectionLost(nil, errors.New("broker went away"))
	if !disconnectCalled {
		t.Error("Expected disconnect callback to be called")
	}
	if client.IsConnected() {
		t.Error("Expected client to be marked disconnected")
	}

	// publishing the online status fails without a broker; the callback
	// still runs
	client.handleConnect(nil)
	if !connectCalled {
		t.Error("Expected connect callback to be called")
	}
}

func TestClient_Subscribe_DeferredWhileDisconnected(t *testing.T) {
	client := newTestClient(t)

	received := ""
	err := client.Subscribe("homeassistant/button/s1/s1_honk/set", func(_, payload string) {
		received = payload
	})
	if err != nil {
		t.Fatalf("Expected deferred subscription to succeed, got: %v", err)
	}

	handler, ok := client.subscriptions["homeassistant/button/s1/s1_honk/set"]
	if !ok {
		t.Fatal("Expected subscription to be remembered for reconnect")
	}

	handler("homeassistant/button/s1/s1_honk/set", "PRESS")
	if received != "PRESS" {
		t.Errorf("Expected stored handler to be the registered one, got %q", received)
	}
}

func TestClient_Subscribe_ReplacesHandler(t *testing.T) {
	client := newTestClient(t)

	first, second := 0, 0
	_ = client.Subscribe("a/set", func(string, string) { first++ })
	_ = client.Subscribe("a/set", func(string, string) { second++ })

	if len(client.subscriptions) != 1 {
		t.Fatalf("Expected one subscription, got %d", len(client.subscriptions))
	}
	client.subscriptions["a/set"]("a/set", "")
	if first != 0 || second != 1 {
		t.Errorf("Expected latest handler to win, got first=%d second=%d", first, second)
	}
}

func TestClient_Publish_NotConnected(t *testing.T) {
	client := newTestClient(t)

	for _, retain := range []bool{true, false} {
		err := client.Publish("test/topic", "test message", retain)
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("Expected ErrNotConnected (retain=%v), got %v", retain, err)
		}
	}
}

func TestClient_PublishJSON(t *testing.T) {
	client := newTestClient(t)

	err := client.PublishJSON("test/topic", map[string]any{"state": "online"}, true)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}

	err = client.PublishJSON("test/topic", make(chan int), true)
	if err == nil || errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected marshal error, got %v", err)
	}
}

func TestMQTTConfig_IsSecure(t *testing.T) {
	tests := []struct {
		name      string
		brokerURL string
		expected  bool
	}{
		{"Plain MQTT", "mqtt://localhost:1883", false},
		{"Secure MQTT", "mqtts://localhost:8883", true},
		{"WebSocket", "ws://localhost:9001", false},
		{"Secure WebSocket", "wss://localhost:9002", true},
		{"TCP", "tcp://localhost:1883", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.MQTTConfig{BrokerURL: tt.brokerURL}
			if got := cfg.IsSecure(); got != tt.expected {
				t.Errorf("IsSecure() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestClient_WaitForConnection_Timeout(t *testing.T) {
	client := newTestClient(t)

	start := time.Now()
	err := client.WaitForConnection(100 * time.Millisecond)
	elapsed := time.Since(start)

	if err == nil {
		t.Error("Expected connection to timeout and return error")
	}
	if elapsed < 100*time.Millisecond {
		t.Error("Expected to wait at least 100ms")
	}
	if elapsed > 300*time.Millisecond {
		t.Error("Expected to timeout around 100ms, but waited too long")
	}
}

func TestClient_Disconnect_Safe(t *testing.T) {
	client := newTestClient(t)

	if err := client.Stop(); err != nil {
		t.Errorf("Expected no error stopping client, got: %v", err)
	}
	if client.IsConnected() {
		t.Error("Expected client to not be connected after stop")
	}

	client.Disconnect()
	client.Disconnect()
}
