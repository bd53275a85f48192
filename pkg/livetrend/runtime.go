// Package livetrend embeds the live trend service: a push source feeding the
// rolling window, per-client live views, the HTTP API, and an optional
// archive path.
package livetrend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/tuan204-dev/iot-next/internal/adapters/backend"
	"github.com/tuan204-dev/iot-next/internal/adapters/collector/mqtt"
	"github.com/tuan204-dev/iot-next/internal/adapters/collector/opcua"
	"github.com/tuan204-dev/iot-next/internal/adapters/collector/websocket"
	"github.com/tuan204-dev/iot-next/internal/adapters/httpapi"
	"github.com/tuan204-dev/iot-next/internal/adapters/observability"
	"github.com/tuan204-dev/iot-next/internal/adapters/queue"
	"github.com/tuan204-dev/iot-next/internal/adapters/sink"
	"github.com/tuan204-dev/iot-next/internal/app/config"
	"github.com/tuan204-dev/iot-next/internal/app/pipeline"
	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
	"github.com/tuan204-dev/iot-next/internal/window"
)

// ErrNotPublishable is returned by Runtime.Publish when the source is not a
// ChannelCollector.
var ErrNotPublishable = errors.New("livetrend: source does not accept published readings")

// Backend is the REST backend the runtime seeds from and proxies actuator
// calls to.
type Backend interface {
	WaitReady(ctx context.Context, interval time.Duration) error
	RecentSensorData(ctx context.Context) (RecentSensorData, error)
	TriggerDevice(ctx context.Context, a domain.Actuator, on bool) error
	LastActions(ctx context.Context) ([]domain.ActuatorState, error)
}

// Option customizes the dependencies used by Runtime.
type Option func(*runtimeOverrides)

type runtimeOverrides struct {
	collector     Collector
	sink          Sink
	queue         ReadingQueue
	observability Observability
	logger        *slog.Logger
	registry      *prometheus.Registry
	backend       Backend
	clock         func() time.Time
}

// WithCollector injects a custom collector implementation (simulators, other brokers, etc.).
func WithCollector(col Collector) Option {
	return func(o *runtimeOverrides) {
		o.collector = col
	}
}

// WithSink injects the archive sink, replacing the configured ones.
func WithSink(s Sink) Option {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithReadingQueue injects a custom archive queue implementation.
func WithReadingQueue(q ReadingQueue) Option {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend.
func WithObservability(obs Observability) Option {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithLogger replaces the logger built from Config.Log.
func WithLogger(l *slog.Logger) Option {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithRegistry registers metrics on reg and serves it on /metrics instead
// of the process-wide default registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithBackend injects the backend client.
func WithBackend(b Backend) Option {
	return func(o *runtimeOverrides) {
		o.backend = b
	}
}

// WithClock overrides the clock windows use for readings without a receive
// time.
func WithClock(now func() time.Time) Option {
	return func(o *runtimeOverrides) {
		o.clock = now
	}
}

// Runtime wires collector → live pipeline → {window, sessions, archive queue}
// and serves the HTTP API.
type Runtime struct {
	cfg       *Config
	policy    ports.Policy
	obs       ports.Observability
	logger    *slog.Logger
	collector ports.Collector
	window    *window.Window
	hub       *httpapi.Hub
	backend   Backend

	queue    ports.ReadingQueue
	sink     ports.Sink
	archive  *sink.TimescaleSink
	db       *sql.DB
	redis    *redis.Client
	archiver *pipeline.Archiver

	handler  http.Handler
	server   *http.Server
	listener net.Listener

	mu          sync.Mutex
	cancel      context.CancelFunc
	liveDone    <-chan struct{}
	archiveDone chan struct{}
	starting    bool
	started     bool
}

// NewRuntime builds the default adapters from cfg. Options override any of
// them.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = observability.NewLogger(cfg.Log, os.Stderr); err != nil {
			return nil, err
		}
	}

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if o.registry != nil {
		registerer, gatherer = o.registry, o.registry
	}

	obs := o.observability
	if obs == nil {
		obs = observability.NewPromObs(registerer, logger)
	}

	chart, err := cfg.Chart.MergeOptions()
	if err != nil {
		return nil, err
	}

	winOpts := []window.Option{window.WithCapacity(cfg.Window.Capacity)}
	if o.clock != nil {
		winOpts = append(winOpts, window.WithClock(o.clock))
	}

	rt := &Runtime{
		cfg:     cfg,
		policy:  cfg.Policy,
		obs:     obs,
		logger:  logger,
		window:  window.New(winOpts...),
		hub:     httpapi.NewHub(cfg.Window.SessionBuffer, obs, winOpts...),
		backend: o.backend,
	}

	rt.collector = o.collector
	if rt.collector == nil {
		if rt.collector, err = newCollector(cfg, logger); err != nil {
			return nil, err
		}
	}

	if rt.backend == nil && cfg.Backend.BaseURL != "" {
		client, err := backend.NewClient(cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("backend: %w", err)
		}
		rt.backend = client
	}

	var cache *sink.RedisCache
	if o.sink != nil {
		rt.sink = o.sink
	} else {
		var sinks []ports.Sink
		if cfg.Archive.Enabled {
			if rt.db, err = sql.Open("postgres", cfg.Archive.ConnString); err != nil {
				return nil, err
			}
			rt.archive = sink.NewTimescaleSink(rt.db, cfg.Archive.Table)
			sinks = append(sinks, rt.archive)
		}
		if cfg.Cache.Enabled {
			rt.redis = redis.NewClient(&redis.Options{
				Addr:     cfg.Cache.Addr,
				Password: cfg.Cache.Password,
				DB:       cfg.Cache.DB,
			})
			cache = sink.NewRedisCache(rt.redis, cfg.Cache.Prefix, cfg.Cache.TTL)
			sinks = append(sinks, cache)
		}
		switch len(sinks) {
		case 0:
		case 1:
			rt.sink = sinks[0]
		default:
			rt.sink = sink.NewMulti(sinks...)
		}
	}

	if rt.sink != nil {
		rt.queue = o.queue
		if rt.queue == nil {
			rt.queue = queue.NewMemQueue(cfg.Policy.MaxQueueLen)
		}
		rt.archiver = pipeline.NewArchiver(rt.queue, rt.policy, obs)
	}

	deps := httpapi.Deps{
		Window:   rt.window,
		Hub:      rt.hub,
		Chart:    chart,
		Limits:   cfg.Limits,
		Gatherer: gatherer,
		Logger:   logger,
	}
	if rt.backend != nil {
		deps.Actuators = rt.backend
		if hs, ok := rt.backend.(httpapi.History); ok {
			deps.History = hs
		}
	}
	if cache != nil {
		deps.Cache = cache
	}
	if c, ok := rt.collector.(interface{ Connected() bool }); ok {
		deps.Connected = c.Connected
	}
	rt.handler = httpapi.NewServer(deps)

	return rt, nil
}

func newCollector(cfg *Config, logger *slog.Logger) (ports.Collector, error) {
	switch cfg.Source.Kind {
	case config.SourceMQTT:
		return mqtt.NewCollector(cfg.Source.MQTT, logger)
	case config.SourceWebSocket:
		return websocket.NewCollector(cfg.Source.WebSocket, logger)
	case config.SourceOPCUA:
		return opcua.NewCollector(cfg.Source.OPCUA, logger)
	case config.SourceChannel:
		return NewChannelCollector(), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}

// Window exposes the process-wide window.
func (r *Runtime) Window() *window.Window { return r.window }

// Handler returns the HTTP API, for mounting into another server.
func (r *Runtime) Handler() http.Handler { return r.handler }

// Addr is the bound HTTP address once started.
func (r *Runtime) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Publish pushes a reading through the runtime when the source is a
// ChannelCollector.
func (r *Runtime) Publish(ctx context.Context, reading Reading) error {
	ch, ok := r.collector.(*ChannelCollector)
	if !ok {
		return ErrNotPublishable
	}
	return ch.Publish(ctx, reading)
}

// Start optionally waits for the backend and seeds the window, then starts
// the pipelines and the HTTP server. It returns once everything is running.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started || r.starting {
		r.mu.Unlock()
		return fmt.Errorf("runtime already started")
	}
	r.starting = true
	r.mu.Unlock()

	// prepare may wait on the backend indefinitely; keep r.mu free meanwhile.
	err := r.prepare(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.starting = false
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", r.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.cfg.HTTP.Addr, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	consumers := []ports.Consumer{r.window, r.hub}
	if r.archiver != nil {
		consumers = append(consumers, r.archiver)
	}
	liveDone, err := pipeline.RunLivePipeline(runCtx, r.collector, r.policy, r.obs, consumers...)
	if err != nil {
		cancel()
		_ = ln.Close()
		return err
	}

	if r.sink != nil {
		r.archiveDone = make(chan struct{})
		go func() {
			defer close(r.archiveDone)
			pipeline.RunArchivePipeline(runCtx, r.queue, r.sink, r.policy, r.obs)
		}()
	}

	r.server = &http.Server{Handler: r.handler, ReadHeaderTimeout: 10 * time.Second}
	r.listener = ln
	go func() {
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("http_server_exited", err)
		}
	}()

	r.cancel = cancel
	r.liveDone = liveDone
	r.started = true
	r.obs.LogInfo("runtime_started",
		ports.Field{Key: "addr", Value: ln.Addr().String()},
		ports.Field{Key: "source", Value: r.cfg.Source.Kind})
	return nil
}

func (r *Runtime) prepare(ctx context.Context) error {
	if r.backend != nil && r.cfg.Backend.WaitReady {
		r.obs.LogInfo("waiting_for_device")
		if err := r.backend.WaitReady(ctx, r.cfg.Backend.PingInterval); err != nil {
			return fmt.Errorf("wait for backend: %w", err)
		}
	}
	if r.backend != nil && r.cfg.Backend.SeedRecent {
		recent, err := r.backend.RecentSensorData(ctx)
		if err != nil {
			// The live view still works without history.
			r.obs.LogError("seed_recent_failed", err)
		} else {
			r.window.Replace(window.FromHistories(r.window.Capacity(), recent.Temperature, recent.Humidity, recent.Light))
			r.obs.LogInfo("window_seeded", ports.Field{Key: "samples", Value: r.window.Snapshot().Len()})
		}
	}
	if r.archive != nil && r.cfg.Archive.CreateTable {
		if err := r.archive.EnsureSchema(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the collector, ends live sessions, flushes the archive
// queue, and closes the HTTP server and storage clients.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error

	if r.collector != nil {
		if err := r.collector.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.archiver != nil {
		r.archiver.Close()
	}
	r.hub.CloseAll()

	if r.server != nil {
		if err := r.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
	}

	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
		if err := waitDone(ctx, r.liveDone); err != nil {
			errs = append(errs, err)
		}
		if r.archiveDone != nil {
			if err := waitDone(ctx, r.archiveDone); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if r.sink != nil && r.queue.Len() > 0 {
		if err := pipeline.FlushArchive(ctx, r.queue, r.sink, r.policy, r.obs); err != nil {
			errs = append(errs, err)
		}
	}

	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
		r.db = nil
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil {
			errs = append(errs, err)
		}
		r.redis = nil
	}

	r.started = false
	return errors.Join(errs...)
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
