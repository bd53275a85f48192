package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tuan204-dev/iot-next/internal/adapters/backend"
	"github.com/tuan204-dev/iot-next/internal/adapters/collector/mqtt"
	"github.com/tuan204-dev/iot-next/internal/adapters/collector/opcua"
	"github.com/tuan204-dev/iot-next/internal/adapters/collector/websocket"
	"github.com/tuan204-dev/iot-next/internal/adapters/observability"
	"github.com/tuan204-dev/iot-next/internal/adapters/sink"
	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
	"github.com/tuan204-dev/iot-next/internal/window"
)

// Source kinds.
const (
	SourceMQTT      = "mqtt"
	SourceWebSocket = "websocket"
	SourceOPCUA     = "opcua"
	SourceChannel   = "channel"
)

type Config struct {
	Window  WindowConfig            `yaml:"window"`
	Chart   ChartConfig             `yaml:"chart"`
	Policy  ports.Policy            `yaml:"policy"`
	Source  SourceConfig            `yaml:"source"`
	Backend backend.Config          `yaml:"backend"`
	Archive ArchiveConfig           `yaml:"archive"`
	Cache   CacheConfig             `yaml:"cache"`
	HTTP    HTTPConfig              `yaml:"http"`
	Log     observability.LogConfig `yaml:"log"`
	Limits  domain.Limits           `yaml:"limits"`
}

type WindowConfig struct {
	Capacity int `yaml:"capacity"`
	// SessionBuffer is the per live-view channel size.
	SessionBuffer int `yaml:"session_buffer"`
}

type ChartConfig struct {
	Rows        int    `yaml:"rows"`
	LabelLayout string `yaml:"label_layout"`
	Timezone    string `yaml:"timezone"` // IANA name; empty means local time
}

// MergeOptions resolves the chart settings. The timezone was checked by
// Load, so the error only fires for hand-built configs.
func (c ChartConfig) MergeOptions() (window.MergeOptions, error) {
	opts := window.MergeOptions{Rows: c.Rows, Layout: c.LabelLayout}
	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return opts, fmt.Errorf("chart.timezone: %w", err)
		}
		opts.Location = loc
	}
	return opts, nil
}

type SourceConfig struct {
	Kind      string           `yaml:"kind"`
	MQTT      mqtt.Config      `yaml:"mqtt"`
	WebSocket websocket.Config `yaml:"websocket"`
	OPCUA     opcua.Config     `yaml:"opcua"`
}

type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ConnString  string `yaml:"conn_string"`
	Table       string `yaml:"table"`
	CreateTable bool   `yaml:"create_table"`
}

type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a config with every default applied and a channel source,
// for embedding without a file.
func Default() *Config {
	cfg := &Config{Source: SourceConfig{Kind: SourceChannel}}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.Window.Capacity <= 0 {
		c.Window.Capacity = window.DefaultCapacity
	}
	if c.Window.SessionBuffer <= 0 {
		c.Window.SessionBuffer = 64
	}
	if c.Chart.Rows <= 0 {
		c.Chart.Rows = window.DefaultChartRows
	}
	if c.Chart.LabelLayout == "" {
		c.Chart.LabelLayout = window.DefaultLabelLayout
	}
	if c.Policy.MaxQueueLen == 0 {
		c.Policy.MaxQueueLen = 10_000
	}
	if c.Policy.MaxBatchSize == 0 {
		c.Policy.MaxBatchSize = 500
	}
	if c.Policy.IdleSleep == 0 {
		c.Policy.IdleSleep = 50 * time.Millisecond
	}
	if c.Policy.OnQueueFull == "" {
		c.Policy.OnQueueFull = "drop"
	}
	if c.Source.Kind == "" {
		c.Source.Kind = SourceMQTT
	}
	c.Source.Kind = strings.ToLower(c.Source.Kind)
	switch c.Source.Kind {
	case SourceMQTT:
		c.Source.MQTT.ApplyDefaults()
	case SourceWebSocket:
		c.Source.WebSocket.ApplyDefaults()
	case SourceOPCUA:
		c.Source.OPCUA.ApplyDefaults()
	}
	c.Backend.ApplyDefaults()
	if c.Archive.Table == "" {
		c.Archive.Table = "sensor_readings"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "iot"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 10 * time.Minute
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":9100"
	}
	c.Log.ApplyDefaults()
	c.applyLimitDefaults()
}

// applyLimitDefaults fills every band left at zero.
func (c *Config) applyLimitDefaults() {
	def := domain.DefaultLimits()
	if c.Limits.Temperature == (domain.Range{}) {
		c.Limits.Temperature = def.Temperature
	}
	if c.Limits.Humidity == (domain.Range{}) {
		c.Limits.Humidity = def.Humidity
	}
	if c.Limits.Light == (domain.Range{}) {
		c.Limits.Light = def.Light
	}
}

func (c *Config) Validate() error {
	if c.Window.Capacity < 1 {
		return errors.New("window.capacity must be positive")
	}
	if c.Chart.Rows < 1 {
		return errors.New("chart.rows must be positive")
	}
	if _, err := c.Chart.MergeOptions(); err != nil {
		return err
	}
	switch c.Policy.OnQueueFull {
	case "block", "drop", "reject":
	default:
		return fmt.Errorf("policy.on_queue_full must be block, drop or reject, got %q", c.Policy.OnQueueFull)
	}
	if c.Policy.MaxQueueLen < 1 {
		return errors.New("policy.max_queue_len must be positive")
	}
	if c.Policy.MaxBatchSize < 1 {
		return errors.New("policy.max_batch_size must be positive")
	}

	switch c.Source.Kind {
	case SourceMQTT:
		if err := c.Source.MQTT.Validate(); err != nil {
			return fmt.Errorf("source.mqtt.%w", err)
		}
	case SourceWebSocket:
		if err := c.Source.WebSocket.Validate(); err != nil {
			return fmt.Errorf("source.websocket.%w", err)
		}
	case SourceOPCUA:
		if err := c.Source.OPCUA.Validate(); err != nil {
			return fmt.Errorf("source.opcua.%w", err)
		}
	case SourceChannel:
	default:
		return fmt.Errorf("source.kind %q is not one of mqtt, websocket, opcua, channel", c.Source.Kind)
	}

	if err := c.Backend.Validate(); err != nil {
		return fmt.Errorf("backend.%w", err)
	}
	if (c.Backend.WaitReady || c.Backend.SeedRecent) && c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required when wait_ready or seed_recent is set")
	}

	if c.Archive.Enabled {
		if c.Archive.ConnString == "" {
			return errors.New("archive.conn_string is required")
		}
		if err := sink.ValidateTable(c.Archive.Table); err != nil {
			return fmt.Errorf("archive.table: %w", err)
		}
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return errors.New("cache.addr is required")
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	for _, m := range domain.Metrics {
		if r := c.Limits.For(m); r.Min > r.Max {
			return fmt.Errorf("limits.%s: min %v exceeds max %v", m, r.Min, r.Max)
		}
	}
	return nil
}
