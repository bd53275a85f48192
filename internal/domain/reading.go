package domain

import (
	"fmt"
	"strings"
	"time"
)

// Metric names one of the fixed sensor channels.
type Metric string

const (
	Temperature Metric = "temperature"
	Humidity    Metric = "humidity"
	Light       Metric = "light"
)

// Metrics lists every metric in display order.
var Metrics = []Metric{Temperature, Humidity, Light}

// ParseMetric accepts the metric name in any case.
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(strings.ToLower(strings.TrimSpace(s))); m {
	case Temperature, Humidity, Light:
		return m, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// Unit is the display unit the dashboard uses for the metric.
func (m Metric) Unit() string {
	switch m {
	case Temperature:
		return "°C"
	case Humidity:
		return "%"
	case Light:
		return "lx"
	default:
		return ""
	}
}

// Reading is a push event. Any field may be nil, meaning the event did not
// carry that metric.
type Reading struct {
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Light       *float64 `json:"light,omitempty"`

	// ReceivedAt is set by the collector that received the event. Zero means
	// the window stamps it on ingest.
	ReceivedAt time.Time `json:"-"`
}

// Value returns the field for m and whether the event carried it.
func (r *Reading) Value(m Metric) (float64, bool) {
	if r == nil {
		return 0, false
	}
	var p *float64
	switch m {
	case Temperature:
		p = r.Temperature
	case Humidity:
		p = r.Humidity
	case Light:
		p = r.Light
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Set stores v under m.
func (r *Reading) Set(m Metric, v float64) {
	switch m {
	case Temperature:
		r.Temperature = &v
	case Humidity:
		r.Humidity = &v
	case Light:
		r.Light = &v
	}
}

// Empty reports whether the event carries no metric at all.
func (r *Reading) Empty() bool {
	return r == nil || (r.Temperature == nil && r.Humidity == nil && r.Light == nil)
}

// NewReading builds a single-metric event.
func NewReading(m Metric, v float64) *Reading {
	r := &Reading{}
	r.Set(m, v)
	return r
}

// Clone returns a copy that shares no pointers with r.
func (r *Reading) Clone() *Reading {
	if r == nil {
		return nil
	}
	out := &Reading{ReceivedAt: r.ReceivedAt}
	for _, m := range Metrics {
		if v, ok := r.Value(m); ok {
			out.Set(m, v)
		}
	}
	return out
}
