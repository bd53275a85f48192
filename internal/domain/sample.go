package domain

import "time"

// Sample is one observation of a single metric, stamped by the receiver.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// History is a newest-first run of samples for one metric.
type History []Sample

// Latest returns the newest sample, if any.
func (h History) Latest() (Sample, bool) {
	if len(h) == 0 {
		return Sample{}, false
	}
	return h[0], true
}

// ChartRow is one point of the merged trend projection.
type ChartRow struct {
	Time        string  `json:"time"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Light       float64 `json:"light"`
}
