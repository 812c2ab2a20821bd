package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zanooda/sunshine-homeassistant/pkg/config"
	"github.com/Zanooda/sunshine-homeassistant/pkg/coordinator"
	"github.com/Zanooda/sunshine-homeassistant/pkg/sunshine"
)

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		Sunshine: config.SunshineConfig{
			APIURL:         apiURL,
			Token:          "secret",
			PollInterval:   time.Minute,
			RequestTimeout: time.Second,
		},
		MQTT: config.MQTTConfig{
			BrokerURL: "mqtt://127.0.0.1:1",
			ClientID:  "sunshine-test",
			QoS:       1,
			KeepAlive: 60,
		},
		HomeAssistant: config.HomeAssistantConfig{
			DiscoveryPrefix: "homeassistant",
			InstanceID:      "test",
		},
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func scooterAPI(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestInitialize(t *testing.T) {
	api := scooterAPI(t, http.StatusOK, `[{"id":"s1","vin":"V1","battery_level":42}]`)
	cfg := testConfig(api.URL)
	cfg.Server.Listen = "127.0.0.1:0"

	app := NewApplication(cfg, quietLogger(), "test")
	require.NoError(t, app.Initialize(context.Background()))

	// 4 sensors, lock, tracker, 2 selects, 8 buttons
	require.NotNil(t, app.Entities())
	assert.Equal(t, 16, app.Entities().Len())

	assert.NotNil(t, app.services.GetMQTTClient())
	assert.NotNil(t, app.services.GetHomeAssistantIntegration())
	assert.NotNil(t, app.services.GetCoordinator())
	assert.NotNil(t, app.services.Get("server"))
	assert.Equal(t, []string{"mqtt", "homeassistant", "coordinator", "server"}, app.services.order)

	data := app.services.GetCoordinator().Data()
	assert.Contains(t, data, "s1")
}

func TestInitialize_ServerDisabled(t *testing.T) {
	api := scooterAPI(t, http.StatusOK, `[]`)

	app := NewApplication(testConfig(api.URL), quietLogger(), "test")
	require.NoError(t, app.Initialize(context.Background()))

	assert.Nil(t, app.services.Get("server"))
	assert.Equal(t, 0, app.Entities().Len())
}

func TestInitialize_FirstRefreshFails(t *testing.T) {
	api := scooterAPI(t, http.StatusInternalServerError, "maintenance")

	app := NewApplication(testConfig(api.URL), quietLogger(), "test")
	err := app.Initialize(context.Background())
	require.Error(t, err)

	var updateErr *coordinator.UpdateFailedError
	assert.True(t, errors.As(err, &updateErr))

	var apiErr *sunshine.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)

	assert.Nil(t, app.Entities())
	assert.Empty(t, app.services.order, "nothing is registered when setup fails")
}

func TestInitialize_MissingToken(t *testing.T) {
	cfg := testConfig("https://api.example.test")
	cfg.Sunshine.Token = ""

	app := NewApplication(cfg, quietLogger(), "test")
	assert.ErrorIs(t, app.Initialize(context.Background()), sunshine.ErrMissingToken)
}

type fakeFetcher struct {
	scooters []sunshine.Scooter
	err      error
}

func (f *fakeFetcher) GetScooters(context.Context) ([]sunshine.Scooter, error) {
	return f.scooters, f.err
}

func TestEventHandlers_LogsFleetChanges(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	fetcher := &fakeFetcher{scooters: []sunshine.Scooter{{"id": "s1"}, {"id": "s2"}}}
	coord := coordinator.New(fetcher, time.Minute, 0, quietLogger())
	require.NoError(t, coord.Refresh(context.Background()))

	h := NewEventHandlers(logger)
	h.SetupHandlers(NewServiceManager(quietLogger()), coord)

	fetcher.scooters = []sunshine.Scooter{{"id": "s1"}, {"id": "s3"}}
	require.NoError(t, coord.Refresh(context.Background()))

	var missing, added, noIntegration int
	for _, entry := range hook.AllEntries() {
		switch {
		case entry.Level == logrus.WarnLevel && entry.Data["scooter_id"] == "s2":
			missing++
		case entry.Level == logrus.InfoLevel && entry.Data["scooter_id"] == "s3":
			added++
		case entry.Level == logrus.ErrorLevel:
			noIntegration++
		}
	}
	assert.Equal(t, 1, missing)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, noIntegration, "listener reports the missing integration")
}

func TestEventHandlers_FailureLoggedOnTransition(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	h := NewEventHandlers(logger)
	h.known = map[string]bool{"s1": true}

	boom := errors.New("boom")
	h.logUpdate(coordinator.Snapshot{"s1": {"id": "s1"}}, boom)
	h.logUpdate(coordinator.Snapshot{"s1": {"id": "s1"}}, boom)

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 1, warnings)

	hook.Reset()
	h.logUpdate(coordinator.Snapshot{"s1": {"id": "s1"}}, nil)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Scooter data available again", hook.LastEntry().Message)
}
