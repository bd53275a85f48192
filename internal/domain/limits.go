package domain

// Range is an inclusive operating band for one metric.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Limits holds the operator alerting bands. The window never consults them;
// they only annotate values on the way out.
type Limits struct {
	Temperature Range `yaml:"temperature" json:"temperature"`
	Humidity    Range `yaml:"humidity" json:"humidity"`
	Light       Range `yaml:"light" json:"light"`
}

// Status classifies a value against its band.
type Status string

const (
	StatusOK   Status = "ok"
	StatusLow  Status = "low"
	StatusHigh Status = "high"
)

// DefaultLimits are the bands shipped with the dashboard.
func DefaultLimits() Limits {
	return Limits{
		Temperature: Range{Min: 15, Max: 30},
		Humidity:    Range{Min: 30, Max: 80},
		Light:       Range{Min: 30, Max: 1000},
	}
}

// For returns the band for m.
func (l Limits) For(m Metric) Range {
	switch m {
	case Temperature:
		return l.Temperature
	case Humidity:
		return l.Humidity
	default:
		return l.Light
	}
}

// Check classifies v. NaN compares false on both sides and reports ok.
func (l Limits) Check(m Metric, v float64) Status {
	r := l.For(m)
	switch {
	case v < r.Min:
		return StatusLow
	case v > r.Max:
		return StatusHigh
	default:
		return StatusOK
	}
}
