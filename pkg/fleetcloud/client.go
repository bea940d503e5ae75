// Package fleetcloud is the client for the third-party fleet-tracking
// provider the cloud poll adapter synchronizes against.
package fleetcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/routewise/telemetry-engine/internal/models"
	"github.com/rs/zerolog"
)

// API is the provider surface the sync service consumes.
type API interface {
	Probe(ctx context.Context) error
	VehicleLocations(ctx context.Context) ([]VehicleFix, error)
}

// VehicleFix is one remote vehicle position as reported by the
// provider's fleet-wide location endpoint.
type VehicleFix struct {
	DeviceID     string    `json:"device_id"`
	Registration string    `json:"registration_no"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Speed        float64   `json:"speed"`
	Heading      float64   `json:"heading"`
	Accuracy     *float64  `json:"accuracy,omitempty"`
	GPSTime      time.Time `json:"gps_time"`
}

// Config carries the provider endpoint and credentials.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
}

// Client authenticates against the provider and fetches fleet
// locations. The bearer token is cached and refreshed on expiry or a
// 401.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient builds a provider client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "fleetcloud").Logger(),
	}
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// authenticate obtains a fresh bearer token if the cached one expired.
func (c *Client) authenticate(ctx context.Context, force bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"username": c.cfg.Username,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: provider auth returned status %d", models.ErrTransportUnreachable, resp.StatusCode)
	}

	var login loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	if login.Token == "" {
		return "", fmt.Errorf("%w: provider auth returned empty token", models.ErrParse)
	}

	c.token = login.Token
	c.tokenExpiry = time.Now().Add(time.Duration(login.ExpiresIn) * time.Second)
	return c.token, nil
}

// Probe performs a lightweight auth check for operator diagnostics,
// without touching any tracking state.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.authenticate(ctx, true)
	return err
}

// VehicleLocations fetches the provider's current fleet-wide vehicle
// location list. An expired token is refreshed once on 401.
func (c *Client) VehicleLocations(ctx context.Context) ([]VehicleFix, error) {
	fixes, retry, err := c.fetchLocations(ctx, false)
	if retry {
		fixes, _, err = c.fetchLocations(ctx, true)
	}
	return fixes, err
}

func (c *Client) fetchLocations(ctx context.Context, forceAuth bool) ([]VehicleFix, bool, error) {
	token, err := c.authenticate(ctx, forceAuth)
	if err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/api/vehicles/locations", nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && !forceAuth {
		return nil, true, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("%w: provider returned status %d", models.ErrTransportUnreachable, resp.StatusCode)
	}

	var result struct {
		Vehicles []VehicleFix `json:"vehicles"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	return result.Vehicles, false, nil
}

func classifyTransport(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", models.ErrTransportTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrTransportUnreachable, err)
}
