package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zanooda/sunshine-homeassistant/pkg/config"
	"github.com/Zanooda/sunshine-homeassistant/pkg/coordinator"
	"github.com/Zanooda/sunshine-homeassistant/pkg/entity"
	"github.com/Zanooda/sunshine-homeassistant/pkg/sunshine"
)

type fakeFetcher struct {
	mutex    sync.Mutex
	scooters []sunshine.Scooter
	err      error
}

func (f *fakeFetcher) GetScooters(context.Context) ([]sunshine.Scooter, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.scooters, f.err
}

func (f *fakeFetcher) fail(err error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.err = err
}

type fakeAPI struct {
	mutex sync.Mutex
	calls []string
	err   error
}

func (f *fakeAPI) record(method, scooterID, param string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%s:%s", method, scooterID, param))
	return f.err
}

func (f *fakeAPI) Lock(_ context.Context, id string) error      { return f.record("lock", id, "") }
func (f *fakeAPI) Unlock(_ context.Context, id string) error    { return f.record("unlock", id, "") }
func (f *fakeAPI) Honk(_ context.Context, id string) error      { return f.record("honk", id, "") }
func (f *fakeAPI) Locate(_ context.Context, id string) error    { return f.record("locate", id, "") }
func (f *fakeAPI) Ping(_ context.Context, id string) error      { return f.record("ping", id, "") }
func (f *fakeAPI) MakeNoise(_ context.Context, id string) error { return f.record("make_noise", id, "") }
func (f *fakeAPI) OpenSeatbox(_ context.Context, id string) error {
	return f.record("open_seatbox", id, "")
}
func (f *fakeAPI) RequestTelemetry(_ context.Context, id string) error {
	return f.record("request_telemetry", id, "")
}
func (f *fakeAPI) UpdateFirmware(_ context.Context, id string) error {
	return f.record("update_firmware", id, "")
}
func (f *fakeAPI) TriggerAlarm(_ context.Context, id, duration string) error {
	return f.record("alarm", id, duration)
}
func (f *fakeAPI) Blinkers(_ context.Context, id, state string) error {
	return f.record("blinkers", id, state)
}
func (f *fakeAPI) PlaySound(_ context.Context, id, sound string) error {
	return f.record("play_sound", id, sound)
}

type fixture struct {
	fetcher     *fakeFetcher
	api         *fakeAPI
	coordinator *coordinator.Coordinator
	server      *Server
	handler     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	fetcher := &fakeFetcher{scooters: []sunshine.Scooter{
		{"id": "s1", "vin": "V1", "battery_level": 42, "status": "parked"},
	}}
	coord := coordinator.New(fetcher, time.Minute, 0, logger)
	require.NoError(t, coord.Refresh(context.Background()))

	api := &fakeAPI{}
	registry := entity.NewRegistry(entity.SetupAll(api, coord, logger))

	s := New(&config.ServerConfig{Listen: "127.0.0.1:0"}, coord, registry, time.Second, "1.2.3", logger)

	return &fixture{
		fetcher:     fetcher,
		api:         api,
		coordinator: coord,
		server:      s,
		handler:     s.Router(),
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "1.2.3", health.Version)
	assert.True(t, health.LastUpdateSuccess)
	assert.Equal(t, 1, health.Scooters)
	assert.Equal(t, f.server.registry.Len(), health.Entities)
	assert.NotEmpty(t, health.LastUpdate)
}

func TestHealth_Degraded(t *testing.T) {
	f := newFixture(t)
	f.fetcher.fail(errors.New("upstream down"))
	require.Error(t, f.coordinator.Refresh(context.Background()))

	rec := f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "degraded", health.Status)
	assert.Contains(t, health.LastError, "upstream down")
	assert.Equal(t, 1, health.Scooters, "stale snapshot is still reported")
}

func TestScooters(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/scooters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	scooters := decode[map[string]map[string]any](t, rec)
	assert.Equal(t, 42.0, scooters["s1"]["battery_level"])

	rec = f.do(t, http.MethodGet, "/api/scooters/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "parked", decode[map[string]any](t, rec)["status"])

	rec = f.do(t, http.MethodGet, "/api/scooters/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusNotFound), decode[ErrorResponse](t, rec).Error)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.fetcher.fail(errors.New("timeout"))
	rec = f.do(t, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "timeout")
}

func TestEntities(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/entities", "")
	require.Equal(t, http.StatusOK, rec.Code)

	views := decode[[]EntityView](t, rec)
	require.Len(t, views, f.server.registry.Len())

	byID := make(map[string]EntityView, len(views))
	for _, v := range views {
		byID[v.UniqueID] = v
	}

	battery := byID["s1_battery_level"]
	assert.Equal(t, "sensor", battery.Platform)
	assert.Equal(t, "V1 Battery Level", battery.Name)
	assert.True(t, battery.Available)
	require.NotNil(t, battery.State)
	assert.Equal(t, "42", *battery.State)

	lock := byID["s1_lock"]
	require.NotNil(t, lock.State)
	assert.Equal(t, entity.PayloadOn, *lock.State, "locked when the API omits the field")

	blinkers := byID["s1_blinkers"]
	assert.Equal(t, []string{"off", "left", "right", "both"}, blinkers.Options)

	assert.Nil(t, byID["s1_honk"].State)
	assert.Contains(t, byID["s1_tracker"].Attributes, "gps_accuracy")
}

func TestCommand(t *testing.T) {
	tests := []struct {
		name           string
		path           string
		body           string
		apiErr         error
		expectedStatus int
		expectedCalls  []string
	}{
		{"Button press", "/api/entities/s1_honk", `{"payload":"PRESS"}`, nil, http.StatusOK, []string{"honk:s1:"}},
		{"Switch off", "/api/entities/s1_lock", `{"payload":"OFF"}`, nil, http.StatusOK, []string{"unlock:s1:"}},
		{"Select option", "/api/entities/s1_sound", `{"payload":"chirp"}`, nil, http.StatusOK, []string{"play_sound:s1:chirp"}},
		{"Unknown entity", "/api/entities/s9_honk", `{"payload":"PRESS"}`, nil, http.StatusNotFound, nil},
		{"Read-only entity", "/api/entities/s1_speed", `{"payload":"10"}`, nil, http.StatusBadRequest, nil},
		{"Invalid option", "/api/entities/s1_blinkers", `{"payload":"hazard"}`, nil, http.StatusBadRequest, nil},
		{"Invalid JSON", "/api/entities/s1_honk", `PRESS`, nil, http.StatusBadRequest, nil},
		{"API failure", "/api/entities/s1_ping", `{"payload":"PRESS"}`, errors.New("scooter offline"), http.StatusBadGateway, []string{"ping:s1:"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.api.err = tt.apiErr

			rec := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.expectedCalls, f.api.calls)
		})
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.server.Start())
	t.Cleanup(func() { _ = f.server.Stop() })

	resp, err := http.Get("http://" + f.server.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))

	require.NoError(t, f.server.Stop())
}

func TestStop_NotStarted(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.server.Stop())
}
