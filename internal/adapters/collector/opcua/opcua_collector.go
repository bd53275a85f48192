// Package opcua subscribes to OPC UA nodes and maps each data change to a
// single-metric reading.
package opcua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

// Config captures the session details and the node to metric mapping.
type Config struct {
	Endpoint         string        `yaml:"endpoint"`
	Username         string        `yaml:"username"`
	Password         string        `yaml:"password"`
	SecurityMode     string        `yaml:"security_mode"`
	SecurityPolicy   string        `yaml:"security_policy"`
	ApplicationName  string        `yaml:"application_name"`
	PublishInterval  time.Duration `yaml:"publish_interval"`
	SamplingInterval time.Duration `yaml:"sampling_interval"`
	Nodes            []NodeConfig  `yaml:"nodes"`
}

// NodeConfig binds one monitored node to the metric its value feeds.
type NodeConfig struct {
	NodeID string `yaml:"node_id"`
	Metric string `yaml:"metric"`
}

func (c *Config) ApplyDefaults() {
	if c.SecurityMode == "" {
		c.SecurityMode = "None"
	}
	if c.SecurityPolicy == "" {
		c.SecurityPolicy = "None"
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "iot-live"
	}
	if c.PublishInterval <= 0 {
		c.PublishInterval = time.Second
	}
	if c.SamplingInterval < 0 {
		c.SamplingInterval = 0
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if _, ok := securityMode(c.SecurityMode); !ok {
		return fmt.Errorf("security_mode %q is not one of None, Sign, SignAndEncrypt", c.SecurityMode)
	}
	if len(c.Nodes) == 0 {
		return errors.New("at least one node must be configured")
	}
	for i, n := range c.Nodes {
		if n.NodeID == "" {
			return fmt.Errorf("nodes[%d].node_id is required", i)
		}
		if _, err := ua.ParseNodeID(n.NodeID); err != nil {
			return fmt.Errorf("nodes[%d].node_id: %w", i, err)
		}
		if _, err := domain.ParseMetric(n.Metric); err != nil {
			return fmt.Errorf("nodes[%d].metric: %w", i, err)
		}
	}
	return nil
}

type monitoredNode struct {
	id     string
	metric domain.Metric
}

// session is one live connection with its subscription.
type session struct {
	ctx    context.Context
	client *opcua.Client
	sub    *opcua.Subscription
	cancel context.CancelFunc
}

func (s *session) close(ctx context.Context) error {
	s.cancel()
	var err error
	if s.sub != nil {
		if e := s.sub.Cancel(ctx); e != nil && !errors.Is(e, context.Canceled) {
			err = errors.Join(err, e)
		}
	}
	if e := s.client.Close(ctx); e != nil && !errors.Is(e, context.Canceled) {
		err = errors.Join(err, e)
	}
	return err
}

// Collector turns data changes on the configured nodes into readings.
type Collector struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	sess      *session
	handleMap map[uint32]monitoredNode
	wg        sync.WaitGroup
}

func NewCollector(cfg Config, logger *slog.Logger) (*Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	handles := make(map[uint32]monitoredNode, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		m, _ := domain.ParseMetric(n.Metric)
		handles[uint32(i+1)] = monitoredNode{id: n.NodeID, metric: m}
	}
	return &Collector{
		cfg:       cfg,
		logger:    logger.With("collector", "opcua"),
		now:       time.Now,
		handleMap: handles,
	}, nil
}

// Start connects, subscribes to every node in a single monitor request and
// forwards readings to out until Stop.
func (c *Collector) Start(out chan<- *domain.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess != nil {
		return fmt.Errorf("opcua collector already started")
	}

	notify := make(chan *opcua.PublishNotificationData, len(c.cfg.Nodes)*4)
	sess, err := c.open(notify)
	if err != nil {
		return err
	}
	c.sess = sess

	c.wg.Add(1)
	go c.consume(sess.ctx, notify, out)
	return nil
}

func (c *Collector) open(notify chan<- *opcua.PublishNotificationData) (_ *session, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	client, err := opcua.NewClient(c.cfg.Endpoint, c.clientOptions()...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opcua new client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("opcua connect: %w", err)
	}

	sess := &session{ctx: ctx, client: client, cancel: cancel}
	defer func() {
		if err != nil {
			_ = sess.close(context.Background())
		}
	}()

	sess.sub, err = client.Subscribe(ctx, &opcua.SubscriptionParameters{Interval: c.cfg.PublishInterval}, notify)
	if err != nil {
		return nil, fmt.Errorf("opcua subscribe: %w", err)
	}

	reqs := make([]*ua.MonitoredItemCreateRequest, 0, len(c.handleMap))
	for handle := uint32(1); handle <= uint32(len(c.handleMap)); handle++ {
		id := ua.MustParseNodeID(c.handleMap[handle].id)
		req := opcua.NewMonitoredItemCreateRequestWithDefaults(id, ua.AttributeIDValue, handle)
		if c.cfg.SamplingInterval > 0 {
			req.RequestedParameters.SamplingInterval = float64(c.cfg.SamplingInterval / time.Millisecond)
		}
		reqs = append(reqs, req)
	}

	res, err := sess.sub.Monitor(ctx, ua.TimestampsToReturnBoth, reqs...)
	if err != nil {
		return nil, fmt.Errorf("opcua monitor: %w", err)
	}
	if len(res.Results) != len(reqs) {
		return nil, fmt.Errorf("opcua monitor: %d results for %d nodes", len(res.Results), len(reqs))
	}
	for i, r := range res.Results {
		if r.StatusCode != ua.StatusOK {
			return nil, fmt.Errorf("monitor node %q: %s", c.cfg.Nodes[i].NodeID, r.StatusCode)
		}
	}
	return sess, nil
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()
	if sess == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := sess.close(ctx)
	c.wg.Wait()
	return err
}

// Connected reports whether the session is currently active.
func (c *Collector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess != nil && c.sess.client.State() == opcua.Connected
}

func (c *Collector) consume(ctx context.Context, notify <-chan *opcua.PublishNotificationData, out chan<- *domain.Reading) {
	defer c.wg.Done()
	done := ctx.Done()

	for {
		select {
		case <-done:
			return
		case n := <-notify:
			if n == nil {
				continue
			}
			if n.Error != nil {
				c.logger.Warn("notification error", "err", n.Error)
				continue
			}
			for _, r := range c.readings(n.Value) {
				select {
				case <-done:
					return
				case out <- r:
				}
			}
		}
	}
}

// readings maps a data change notification to one reading per item, all
// stamped with the local receive time. Server and source timestamps are
// ignored.
func (c *Collector) readings(val interface{}) []*domain.Reading {
	data, ok := val.(*ua.DataChangeNotification)
	if !ok {
		return nil
	}
	at := c.now()

	out := make([]*domain.Reading, 0, len(data.MonitoredItems))
	for _, item := range data.MonitoredItems {
		node, ok := c.handleMap[item.ClientHandle]
		if !ok || item.Value == nil {
			continue
		}
		fv, ok := variantToFloat(item.Value.Value)
		if !ok {
			c.logger.Warn("skipping node with unsupported value type", "node", node.id)
			continue
		}

		r := domain.NewReading(node.metric, fv)
		r.ReceivedAt = at
		out = append(out, r)
	}
	return out
}

func (c *Collector) clientOptions() []opcua.Option {
	mode, _ := securityMode(c.cfg.SecurityMode)
	opts := []opcua.Option{
		opcua.SecurityModeString(mode),
		opcua.SecurityPolicy(c.cfg.SecurityPolicy),
		opcua.ApplicationName(c.cfg.ApplicationName),
		opcua.AutoReconnect(true),
		opcua.AuthAnonymous(),
	}
	if c.cfg.Username != "" {
		opts[len(opts)-1] = opcua.AuthUsername(c.cfg.Username, c.cfg.Password)
	}
	return opts
}

// variantToFloat accepts any numeric or boolean variant.
func variantToFloat(v *ua.Variant) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v.Value())
	switch {
	case !rv.IsValid():
		return 0, false
	case rv.CanFloat():
		return rv.Float(), true
	case rv.CanInt():
		return float64(rv.Int()), true
	case rv.CanUint():
		return float64(rv.Uint()), true
	case rv.Kind() == reflect.Bool:
		if rv.Bool() {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// securityMode canonicalizes the configured mode; empty means None.
func securityMode(mode string) (string, bool) {
	switch strings.ToLower(strings.NewReplacer("_", "", "+", "", "-", "").Replace(mode)) {
	case "", "none":
		return "None", true
	case "sign":
		return "Sign", true
	case "signandencrypt", "signencrypt":
		return "SignAndEncrypt", true
	}
	return "", false
}

var _ ports.Collector = (*Collector)(nil)
