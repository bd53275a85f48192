package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tuan204-dev/iot-next/internal/domain"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := `
policy:
  max_queue_len: 1000
source:
  mqtt:
    broker: tcp://localhost:1883
limits:
  light:
    min: 10
    max: 500
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Window.Capacity != 150 {
		t.Fatalf("expected capacity default 150, got %d", cfg.Window.Capacity)
	}
	if cfg.Chart.Rows != 20 || cfg.Chart.LabelLayout != "15:04" {
		t.Fatalf("unexpected chart defaults %+v", cfg.Chart)
	}
	if cfg.Policy.MaxQueueLen != 1000 {
		t.Fatalf("expected explicit max_queue_len kept, got %d", cfg.Policy.MaxQueueLen)
	}
	if cfg.Policy.IdleSleep != 50*time.Millisecond {
		t.Fatalf("expected IdleSleep default 50ms, got %s", cfg.Policy.IdleSleep)
	}
	if cfg.Policy.OnQueueFull != "drop" {
		t.Fatalf("expected on_queue_full default drop, got %s", cfg.Policy.OnQueueFull)
	}
	if cfg.Source.Kind != SourceMQTT {
		t.Fatalf("expected default source mqtt, got %s", cfg.Source.Kind)
	}
	if cfg.Source.MQTT.TopicPrefix != "iot" {
		t.Fatalf("expected default topic prefix iot, got %s", cfg.Source.MQTT.TopicPrefix)
	}
	if cfg.HTTP.Addr != ":9100" {
		t.Fatalf("expected default http addr :9100, got %s", cfg.HTTP.Addr)
	}
	if cfg.Archive.Table != "sensor_readings" {
		t.Fatalf("expected default table sensor_readings, got %s", cfg.Archive.Table)
	}
	if cfg.Cache.TTL != 10*time.Minute || cfg.Cache.Prefix != "iot" {
		t.Fatalf("unexpected cache defaults %+v", cfg.Cache)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Fatalf("expected backend timeout 5s, got %s", cfg.Backend.Timeout)
	}
	if cfg.Limits.Light != (domain.Range{Min: 10, Max: 500}) {
		t.Fatalf("expected explicit light limits kept, got %+v", cfg.Limits.Light)
	}
	if cfg.Limits.Temperature != domain.DefaultLimits().Temperature {
		t.Fatalf("expected default temperature limits, got %+v", cfg.Limits.Temperature)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestParseValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"mqtt broker", "source: {kind: mqtt}", "source.mqtt.broker is required"},
		{"unknown kind", "source: {kind: serial}", "source.kind"},
		{"websocket scheme", "source: {kind: websocket, websocket: {url: 'http://x'}}", "source.websocket.url scheme"},
		{"opcua metric", "source: {kind: opcua, opcua: {endpoint: 'opc.tcp://x:4840', nodes: [{node_id: 'ns=2;i=1', metric: pressure}]}}", "source.opcua.nodes[0].metric"},
		{"queue policy", "source: {kind: channel}\npolicy: {on_queue_full: spill}", "policy.on_queue_full"},
		{"archive conn", "source: {kind: channel}\narchive: {enabled: true}", "archive.conn_string is required"},
		{"archive table", "source: {kind: channel}\narchive: {enabled: true, conn_string: 'postgres://x', table: 'a;b'}", "archive.table"},
		{"cache addr", "source: {kind: channel}\ncache: {enabled: true}", "cache.addr is required"},
		{"seed without backend", "source: {kind: channel}\nbackend: {seed_recent: true}", "backend.base_url is required"},
		{"timezone", "source: {kind: channel}\nchart: {timezone: Mars/Olympus}", "chart.timezone"},
		{"log level", "source: {kind: channel}\nlog: {level: loud}", "log:"},
		{"limits order", "source: {kind: channel}\nlimits: {humidity: {min: 90, max: 10}}", "limits.humidity"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestChartMergeOptions(t *testing.T) {
	cfg, err := Parse([]byte("source: {kind: channel}\nchart: {rows: 5, timezone: UTC, label_layout: '15:04:05'}"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	opts, err := cfg.Chart.MergeOptions()
	if err != nil {
		t.Fatalf("merge options: %v", err)
	}
	if opts.Rows != 5 || opts.Layout != "15:04:05" || opts.Location != time.UTC {
		t.Fatalf("unexpected merge options %+v", opts)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Source.Kind != SourceChannel {
		t.Fatalf("expected channel source, got %s", cfg.Source.Kind)
	}
}
