package ports

type Observability interface {
	LogInfo(msg string, fields ...Field)
	LogError(msg string, err error, fields ...Field)
	LogCritical(msg string, err error, fields ...Field)

	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)

	SetGauge(name string, v float64)
}

type Field struct {
	Key   string
	Value any
}

// Metric names shared by the pipelines and the observability adapters.
const (
	MetricReadingsReceived   = "iot_readings_received_total"
	MetricReadingsArchived   = "iot_readings_archived_total"
	MetricArchiveDropped     = "iot_archive_dropped_total"
	MetricArchiveFailed      = "iot_archive_failed_total"
	MetricSessionDropped     = "iot_session_dropped_total"
	MetricArchiveQueueLen    = "iot_archive_queue_length"
	MetricLiveSessions       = "iot_live_sessions"
	MetricArchiveSinkLatency = "iot_archive_sink_latency_seconds"
)
