// Package backend talks to the dashboard's REST backend: health, recent
// sensor history for seeding, and actuator control.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tuan204-dev/iot-next/internal/domain"
)

type Config struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WaitReady    bool          `yaml:"wait_ready"`
	SeedRecent   bool          `yaml:"seed_recent"`
}

func (c *Config) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 5 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return nil
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

// ErrTriggerRejected is returned when the backend answers a trigger request
// without a truthy status.
var ErrTriggerRejected = errors.New("backend rejected trigger")

// StatusError reports a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Recent is the backend's recent history, one series per metric.
type Recent struct {
	Temperature []domain.Sample `json:"temperature"`
	Humidity    []domain.Sample `json:"humidity"`
	Light       []domain.Sample `json:"light"`
}

type Client struct {
	base *url.URL
	http *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base_url is required")
	}
	base, _ := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	return &Client{base: base, http: &http.Client{Timeout: cfg.Timeout}}, nil
}

type pingResponse struct {
	Status bool `json:"status"`
}

// Ping reports whether the device behind the backend is connected.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	var res pingResponse
	if err := c.do(ctx, http.MethodGet, "devices/ping", nil, &res); err != nil {
		return false, err
	}
	return res.Status, nil
}

// WaitReady pings every interval until the device reports connected or ctx
// is done.
func (c *Client) WaitReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if ok, err := c.Ping(ctx); err == nil && ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) RecentSensorData(ctx context.Context) (Recent, error) {
	var out struct {
		Data Recent `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "sensor-data/recent", nil, &out)
	return out.Data, err
}

type triggerRequest struct {
	ActionID   int `json:"actionId"`
	ActuatorID int `json:"actuatorId"`
}

type triggerResponse struct {
	Status json.RawMessage `json:"status"`
}

// TriggerDevice switches an actuator on or off.
func (c *Client) TriggerDevice(ctx context.Context, a domain.Actuator, on bool) error {
	var res triggerResponse
	req := triggerRequest{ActionID: a.ActionFor(on), ActuatorID: a.ID}
	if err := c.do(ctx, http.MethodPost, "devices/trigger", req, &res); err != nil {
		return err
	}
	if !truthy(res.Status) {
		return fmt.Errorf("%w: %s %s", ErrTriggerRejected, a.Name, onOff(on))
	}
	return nil
}

type lastAction struct {
	ActuatorID int    `json:"actuatorId"`
	State      string `json:"state"`
}

// LastActions returns the state of every known actuator. Actuators the
// backend has no record of are reported off.
func (c *Client) LastActions(ctx context.Context) ([]domain.ActuatorState, error) {
	var actions []lastAction
	if err := c.do(ctx, http.MethodGet, "actions/last", nil, &actions); err != nil {
		return nil, err
	}
	on := make(map[int]bool, len(actions))
	for _, a := range actions {
		on[a.ActuatorID] = strings.EqualFold(a.State, "on")
	}
	out := make([]domain.ActuatorState, 0, len(domain.Actuators))
	for _, a := range domain.Actuators {
		out = append(out, domain.ActuatorState{Actuator: a, On: on[a.ID]})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	u := c.base.ResolveReference(&url.URL{Path: path})

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, u.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, Path: u.Path, Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", u.Path, err)
	}
	return nil
}

func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && !strings.EqualFold(t, "false")
	case float64:
		return t != 0
	default:
		return false
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
