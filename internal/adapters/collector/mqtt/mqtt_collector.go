// Package mqtt subscribes to the dashboard's sensor topics on an MQTT broker.
//
// Topics are <prefix>/sensor_data for combined events and <prefix>/<metric>
// for single-metric events; payloads follow collector.DecodeEvent.
package mqtt

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tuan204-dev/iot-next/internal/adapters/collector"
	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
)

type Config struct {
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            byte          `yaml:"qos"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "iot-live"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "iot"
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// Topics returns the subscription filters in a stable order.
func (c Config) Topics() []string {
	topics := []string{c.TopicPrefix + "/" + collector.EventSensorData}
	for _, m := range domain.Metrics {
		topics = append(topics, c.TopicPrefix+"/"+string(m))
	}
	return topics
}

type Collector struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	client  paho.Client
	out     chan<- *domain.Reading
	stopped chan struct{}
	started bool
}

func NewCollector(cfg Config, logger *slog.Logger) (*Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		cfg:    cfg,
		logger: logger.With("collector", "mqtt"),
		now:    time.Now,
	}, nil
}

func (c *Collector) Start(out chan<- *domain.Reading) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("mqtt collector already started")
	}
	c.out = out
	c.stopped = make(chan struct{})
	c.mu.Unlock()

	filters := make(map[string]byte, 4)
	for _, t := range c.cfg.Topics() {
		filters[t] = c.cfg.QoS
	}

	opts := paho.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.logger.Warn("connection lost", "err", err)
		}).
		SetOnConnectHandler(func(cl paho.Client) {
			// Subscriptions are not kept across reconnects with a clean session.
			tok := cl.SubscribeMultiple(filters, func(_ paho.Client, msg paho.Message) { c.handle(msg) })
			if tok.WaitTimeout(c.cfg.ConnectTimeout) && tok.Error() != nil {
				c.logger.Error("subscribe failed", "err", tok.Error())
				return
			}
			c.logger.Info("subscribed", "topics", c.cfg.Topics())
		})
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username).SetPassword(c.cfg.Password)
	}

	client := paho.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(c.cfg.ConnectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("mqtt connect %s: timeout after %s", c.cfg.Broker, c.cfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", c.cfg.Broker, err)
	}

	c.mu.Lock()
	c.client = client
	c.started = true
	c.mu.Unlock()
	return nil
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	client := c.client
	c.started = false
	c.client = nil
	close(c.stopped)
	c.mu.Unlock()

	var err error
	if tok := client.Unsubscribe(c.cfg.Topics()...); tok.WaitTimeout(time.Second) && tok.Error() != nil {
		err = tok.Error()
	}
	client.Disconnect(250)
	return err
}

// Connected reports whether the broker connection is up.
func (c *Collector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil && c.client.IsConnectionOpen()
}

func (c *Collector) handle(msg paho.Message) {
	event := msg.Topic()
	if i := strings.LastIndexByte(event, '/'); i >= 0 {
		event = event[i+1:]
	}

	r, err := collector.DecodeEvent(event, msg.Payload())
	if err != nil {
		c.logger.Warn("message rejected", "topic", msg.Topic(), "err", err)
		return
	}
	r.ReceivedAt = c.now()

	c.mu.Lock()
	out, stopped := c.out, c.stopped
	c.mu.Unlock()
	if out == nil {
		return
	}

	select {
	case out <- r:
	case <-stopped:
	}
}

var _ ports.Collector = (*Collector)(nil)
