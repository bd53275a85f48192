package livetrend

import (
	"github.com/tuan204-dev/iot-next/internal/adapters/backend"
	"github.com/tuan204-dev/iot-next/internal/adapters/collector/channel"
	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
	"github.com/tuan204-dev/iot-next/internal/window"
)

// Reading is one push event; nil fields are metrics the event did not carry.
type Reading = domain.Reading

// Metric names a sensor channel.
type Metric = domain.Metric

const (
	Temperature = domain.Temperature
	Humidity    = domain.Humidity
	Light       = domain.Light
)

// Sample is a timestamped value.
type Sample = domain.Sample

// ChartRow is one merged trend row.
type ChartRow = domain.ChartRow

// State is an immutable snapshot of the three histories.
type State = window.State

// MergeOptions tunes the chart projection.
type MergeOptions = window.MergeOptions

// Collector streams readings from any push source into the runtime.
type Collector = ports.Collector

// ChannelCollector lets callers publish readings in-process.
type ChannelCollector = channel.Collector

// ReadingQueue is the bounded queue in front of the archive sink.
type ReadingQueue = ports.ReadingQueue

// Sink receives ordered batches of readings from the archive path.
type Sink = ports.Sink

// Observability emits metrics and logs about the pipelines.
type Observability = ports.Observability

// Field is a structured log field used by Observability implementations.
type Field = ports.Field

// RecentSensorData is the backend history used to seed the window.
type RecentSensorData = backend.Recent

// ErrCollectorStopped is returned by ChannelCollector.Publish after Stop.
var ErrCollectorStopped = channel.ErrCollectorStopped

// NewChannelCollector returns a collector fed by Publish.
func NewChannelCollector() *ChannelCollector {
	return channel.New()
}

// Merge projects a state into chart rows with the default options.
func Merge(s State) []ChartRow {
	return window.Merge(s)
}

// MergeWith projects a state into chart rows.
func MergeWith(s State, opts MergeOptions) []ChartRow {
	return window.MergeWith(s, opts)
}
