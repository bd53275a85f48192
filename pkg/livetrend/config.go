package livetrend

import (
	"github.com/tuan204-dev/iot-next/internal/adapters/backend"
	"github.com/tuan204-dev/iot-next/internal/adapters/collector/mqtt"
	"github.com/tuan204-dev/iot-next/internal/adapters/collector/opcua"
	"github.com/tuan204-dev/iot-next/internal/adapters/collector/websocket"
	"github.com/tuan204-dev/iot-next/internal/app/config"
	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
)

// Config re-exports the root configuration struct so embedding services can
// build or adjust it programmatically.
type Config = config.Config

type (
	// Policy controls the archive queue.
	Policy = ports.Policy
	// MQTTConfig selects the broker and topic prefix.
	MQTTConfig = mqtt.Config
	// WebSocketConfig points at a websocket event feed.
	WebSocketConfig = websocket.Config
	// OPCUAConfig holds connection and node details.
	OPCUAConfig = opcua.Config
	// OPCUANodeConfig maps one node to a metric.
	OPCUANodeConfig = opcua.NodeConfig
	// BackendConfig points at the REST backend.
	BackendConfig = backend.Config
	// Limits are the operator alerting bands.
	Limits = domain.Limits
)

// Source kinds accepted in Config.Source.Kind.
const (
	SourceMQTT      = config.SourceMQTT
	SourceWebSocket = config.SourceWebSocket
	SourceOPCUA     = config.SourceOPCUA
	SourceChannel   = config.SourceChannel
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfig returns defaults with a channel source.
func DefaultConfig() *Config {
	return config.Default()
}
