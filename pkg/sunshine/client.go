package sunshine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/sirupsen/logrus"

	"github.com/Zanooda/sunshine-homeassistant/pkg/config"
)

const (
	CommandLock             = "lock"
	CommandUnlock           = "unlock"
	CommandHonk             = "honk"
	CommandLocate           = "locate"
	CommandPing             = "ping"
	CommandMakeNoise        = "make_noise"
	CommandOpenSeatbox      = "open_seatbox"
	CommandRequestTelemetry = "request_telemetry"
	CommandUpdateFirmware   = "update_firmware"
	CommandAlarm            = "alarm"
	CommandBlinkers         = "blinkers"
	CommandPlaySound        = "play_sound"
)

// maxErrorBody bounds how much of a failed response ends up in an APIError.
const maxErrorBody = 512

// Client talks to the Sunshine scooter REST API
type Client struct {
	baseURL    *url.URL
	token      string
	userAgent  string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewClient creates a new API client
func NewClient(cfg *config.SunshineConfig, version string, logger *logrus.Logger) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, ErrMissingAPIURL
	}
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}

	baseURL, err := url.Parse(strings.TrimRight(cfg.APIURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url '%s': %w", cfg.APIURL, err)
	}

	return &Client{
		baseURL:   baseURL,
		token:     cfg.Token,
		userAgent: fmt.Sprintf("sunshine-homeassistant/%s", version),
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// GetScooters fetches every scooter on the account
func (c *Client) GetScooters(ctx context.Context) ([]Scooter, error) {
	body, err := c.do(ctx, http.MethodGet, "scooters", nil, "")
	if err != nil {
		return nil, err
	}

	return decodeScooters(body)
}

// decodeScooters accepts either a bare array or an object wrapping it
func decodeScooters(body []byte) ([]Scooter, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Scooters []Scooter `json:"scooters"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode scooters response: %w", err)
		}
		return wrapped.Scooters, nil
	}

	var scooters []Scooter
	if err := json.Unmarshal(trimmed, &scooters); err != nil {
		return nil, fmt.Errorf("failed to decode scooters response: %w", err)
	}
	return scooters, nil
}

func (c *Client) Lock(ctx context.Context, scooterID string) error {
	return c.command(ctx, scooterID, CommandLock, nil)
}

func (c *Client) Unlock(ctx context.Context, scooterID string) error {
	return c.command(ctx, scooterID, CommandUnlock, nil)
}

func (c *Client) Honk(ctx context.Context, scooterID string) error {
	return c.command(ctx, scooterID, CommandHonk, nil)
}

func (c *Client) Locate(ctx context.Context, scooterID string) error {
	return c.command(ctx, scooterID, CommandLocate, nil)
}

func (c *Client) Ping(ctx context.Context, scooterID string) error {
	return c.command(ctx, scooterID, CommandPing, nil)
}

func (c *Client) MakeNoise(ctx context.Context, scooterID string) error {
	return c.command(ctx, scooterID, CommandMakeNoise, nil)
}

func (c *Client) OpenSeatbox(ctx context.Context, scooterID string) error {
	return c.command(ctx, scooterID, CommandOpenSeatbox, nil)
}

func (c *Client) RequestTelemetry(ctx context.Context, scooterID string) error {
	return c.command(ctx, scooterID, CommandRequestTelemetry, nil)
}

func (c *Client) UpdateFirmware(ctx context.Context, scooterID string) error {
	return c.command(ctx, scooterID, CommandUpdateFirmware, nil)
}

// TriggerAlarm sounds the alarm for the given duration, e.g. "5s"
func (c *Client) TriggerAlarm(ctx context.Context, scooterID, duration string) error {
	return c.command(ctx, scooterID, CommandAlarm, map[string]string{"duration": duration})
}

// Blinkers sets the blinker state: off, left, right or both
func (c *Client) Blinkers(ctx context.Context, scooterID, state string) error {
	return c.command(ctx, scooterID, CommandBlinkers, map[string]string{"state": state})
}

// PlaySound plays one of alarm, chirp or find_me
func (c *Client) PlaySound(ctx context.Context, scooterID, sound string) error {
	return c.command(ctx, scooterID, CommandPlaySound, map[string]string{"sound": sound})
}

func (c *Client) command(ctx context.Context, scooterID, command string, params map[string]string) error {
	requestID := uuid.Must(uuid.NewV4()).String()

	logger := c.logger.WithFields(logrus.Fields{
		"scooter_id": scooterID,
		"command":    command,
		"request_id": requestID,
	})
	logger.Debug("Sending scooter command")

	var payload []byte
	if params != nil {
		var err error
		payload, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal %s parameters: %w", command, err)
		}
	}

	path := fmt.Sprintf("scooters/%s/commands/%s", url.PathEscape(scooterID), command)
	if _, err := c.do(ctx, http.MethodPost, path, payload, requestID); err != nil {
		return err
	}

	logger.Debug("Scooter command accepted")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, requestID string) ([]byte, error) {
	endpoint := c.baseURL.JoinPath(path)

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, endpoint.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debugf("%s %s -> %d in %v", method, endpoint.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(respBody))
		if len(message) > maxErrorBody {
			message = message[:maxErrorBody]
		}
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	return respBody, nil
}
