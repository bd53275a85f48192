package iotnext

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	base "github.com/tuan204-dev/iot-next/pkg/livetrend"
)

// Re-exported errors for convenience.
var (
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
	ErrCollectorStopped  = base.ErrCollectorStopped
	ErrNotPublishable    = base.ErrNotPublishable
)

// Type aliases so consumers can import github.com/tuan204-dev/iot-next directly.
type (
	Config           = base.Config
	Policy           = base.Policy
	MQTTConfig       = base.MQTTConfig
	WebSocketConfig  = base.WebSocketConfig
	OPCUAConfig      = base.OPCUAConfig
	OPCUANodeConfig  = base.OPCUANodeConfig
	BackendConfig    = base.BackendConfig
	Limits           = base.Limits
	Runtime          = base.Runtime
	Option           = base.Option
	Backend          = base.Backend
	Reading          = base.Reading
	Metric           = base.Metric
	Sample           = base.Sample
	ChartRow         = base.ChartRow
	State            = base.State
	MergeOptions     = base.MergeOptions
	Collector        = base.Collector
	ChannelCollector = base.ChannelCollector
	ReadingQueue     = base.ReadingQueue
	Sink             = base.Sink
	BatchFunc        = base.BatchFunc
	Observability    = base.Observability
	Field            = base.Field
	RecentSensorData = base.RecentSensorData
)

// Metrics shown on the dashboard.
const (
	Temperature = base.Temperature
	Humidity    = base.Humidity
	Light       = base.Light
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func DefaultConfig() *Config {
	return base.DefaultConfig()
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithCollector(col Collector) Option {
	return base.WithCollector(col)
}

func WithSink(s Sink) Option {
	return base.WithSink(s)
}

func WithReadingQueue(q ReadingQueue) Option {
	return base.WithReadingQueue(q)
}

func WithObservability(obs Observability) Option {
	return base.WithObservability(obs)
}

func WithBackend(b Backend) Option {
	return base.WithBackend(b)
}

func WithLogger(l *slog.Logger) Option {
	return base.WithLogger(l)
}

func WithRegistry(reg *prometheus.Registry) Option {
	return base.WithRegistry(reg)
}

func WithClock(now func() time.Time) Option {
	return base.WithClock(now)
}

// Sources and sinks.
func NewChannelCollector() *ChannelCollector {
	return base.NewChannelCollector()
}

func NewCallbackSink(name string, fn BatchFunc) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Reading, func()) {
	return base.NewChannelSink(name, buffer)
}

// Chart projection.
func Merge(s State) []ChartRow {
	return base.Merge(s)
}

func MergeWith(s State, opts MergeOptions) []ChartRow {
	return base.MergeWith(s, opts)
}
