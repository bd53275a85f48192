package observability

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tuan204-dev/iot-next/internal/ports"
)

// PromObs logs through slog and records metrics in Prometheus.
type PromObs struct {
	logger   *slog.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromObs registers the service metrics on reg, or on the default
// registerer when reg is nil.
func NewPromObs(reg prometheus.Registerer, logger *slog.Logger) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = slog.Default()
	}

	received := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricReadingsReceived,
		Help: "Push events received from the collector.",
	})
	archived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricReadingsArchived,
		Help: "Readings written to the archive sink.",
	})
	archiveDrops := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricArchiveDropped,
		Help: "Readings not archived because the archive queue was full.",
	})
	archiveFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricArchiveFailed,
		Help: "Archive batch writes that returned an error.",
	})
	sessionDrops := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ports.MetricSessionDropped,
		Help: "Readings skipped by a live session whose buffer was full.",
	})
	queueGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricArchiveQueueLen,
		Help: "Readings buffered for the archive sink.",
	})
	sessionsGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: ports.MetricLiveSessions,
		Help: "Open live trend sessions.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    ports.MetricArchiveSinkLatency,
		Help:    "Time spent writing one batch to the archive sink.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	reg.MustRegister(received, archived, archiveDrops, archiveFailures, sessionDrops, queueGauge, sessionsGauge, latency)

	return &PromObs{
		logger: logger,
		counters: map[string]prometheus.Counter{
			ports.MetricReadingsReceived: received,
			ports.MetricReadingsArchived: archived,
			ports.MetricArchiveDropped:   archiveDrops,
			ports.MetricArchiveFailed:    archiveFailures,
			ports.MetricSessionDropped:   sessionDrops,
		},
		gauges: map[string]prometheus.Gauge{
			ports.MetricArchiveQueueLen: queueGauge,
			ports.MetricLiveSessions:    sessionsGauge,
		},
		histos: map[string]prometheus.Observer{
			ports.MetricArchiveSinkLatency: latency,
		},
	}
}

// Logger returns the underlying structured logger.
func (p *PromObs) Logger() *slog.Logger { return p.logger }

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), slog.Any("error", err))...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(attrs(fields), slog.Any("error", err), slog.Bool("critical", true))...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
