// Package websocket reads sensor events from a websocket feed.
//
// Each text frame is a JSON object {"event": name, "data": payload}; the
// payload is decoded with collector.DecodeEvent. Frames with other event
// names are ignored. The collector redials until stopped.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tuan204-dev/iot-next/internal/adapters/collector"
	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
)

type Config struct {
	URL               string        `yaml:"url"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url scheme must be ws or wss, got %q", u.Scheme)
	}
	return nil
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type Collector struct {
	cfg    Config
	logger *slog.Logger
	dialer *websocket.Dialer
	now    func() time.Time

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
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
		logger: logger.With("collector", "websocket"),
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		now:    time.Now,
	}, nil
}

// Start returns immediately; dialing happens in the background.
func (c *Collector) Start(out chan<- *domain.Reading) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return fmt.Errorf("websocket collector already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.started = true

	c.wg.Add(1)
	go c.run(ctx, out)
	return nil
}

func (c *Collector) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	c.cancel()
	conn := c.conn
	c.mu.Unlock()

	var err error
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	}
	c.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Connected reports whether a feed connection is currently open.
func (c *Collector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Collector) run(ctx context.Context, out chan<- *domain.Reading) {
	defer c.wg.Done()

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("dial failed", "url", c.cfg.URL, "err", err)
		} else {
			c.logger.Info("connected", "url", c.cfg.URL)
			c.serve(ctx, conn, out)
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("disconnected", "url", c.cfg.URL)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

// serve reads conn until it fails or ctx ends. The connection is closed as
// soon as ctx is done, even when that happened before serve was called, so
// the blocking read always returns.
func (c *Collector) serve(ctx context.Context, conn *websocket.Conn, out chan<- *domain.Reading) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.setConn(conn)
	c.readLoop(ctx, conn, out)
	c.setConn(nil)
	_ = conn.Close()
}

func (c *Collector) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Collector) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- *domain.Reading) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		r, ok := c.decode(data)
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case out <- r:
		}
	}
}

func (c *Collector) decode(data []byte) (*domain.Reading, bool) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("frame rejected", "err", err)
		return nil, false
	}
	r, err := collector.DecodeEvent(f.Event, f.Data)
	if errors.Is(err, collector.ErrUnknownEvent) {
		c.logger.Debug("ignoring event", "event", f.Event)
		return nil, false
	}
	if err != nil {
		c.logger.Warn("frame rejected", "event", f.Event, "err", err)
		return nil, false
	}
	r.ReceivedAt = c.now()
	return r, true
}

var _ ports.Collector = (*Collector)(nil)
