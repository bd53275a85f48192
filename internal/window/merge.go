package window

import (
	"math"
	"sort"
	"time"

	"github.com/tuan204-dev/iot-next/internal/domain"
)

const (
	// DefaultChartRows is how many of the newest rows Merge keeps.
	DefaultChartRows = 20
	// DefaultLabelLayout formats the row label as hours and minutes.
	DefaultLabelLayout = "15:04"
)

// MergeOptions tunes the chart projection. Zero values select the defaults.
type MergeOptions struct {
	Rows     int
	Layout   string
	Location *time.Location
}

func (o MergeOptions) withDefaults() MergeOptions {
	if o.Rows <= 0 {
		o.Rows = DefaultChartRows
	}
	if o.Layout == "" {
		o.Layout = DefaultLabelLayout
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Merge projects s into chart rows with the default options.
func Merge(s State) []domain.ChartRow {
	return MergeWith(s, MergeOptions{})
}

// MergeWith lines the three histories up on their distinct timestamps,
// oldest first, and keeps the newest opts.Rows rows. A metric with no sample
// at a row's exact timestamp reads as 0, and so does a non-finite value.
func MergeWith(s State, opts MergeOptions) []domain.ChartRow {
	opts = opts.withDefaults()

	type point struct {
		at   time.Time
		vals [3]float64
	}
	byTime := make(map[int64]*point, s.Len())
	for i, m := range domain.Metrics {
		for _, smp := range s.History(m) {
			key := smp.Timestamp.UnixNano()
			p, ok := byTime[key]
			if !ok {
				p = &point{at: smp.Timestamp}
				byTime[key] = p
			}
			// later entries overwrite earlier ones, so on a shared timestamp
			// the oldest sample of a newest-first history is kept
			p.vals[i] = finite(smp.Value)
		}
	}
	if len(byTime) == 0 {
		return []domain.ChartRow{}
	}

	keys := make([]int64, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	if len(keys) > opts.Rows {
		keys = keys[len(keys)-opts.Rows:]
	}

	rows := make([]domain.ChartRow, len(keys))
	for i, k := range keys {
		p := byTime[k]
		rows[i] = domain.ChartRow{
			Time:        p.at.In(opts.Location).Format(opts.Layout),
			Temperature: p.vals[0],
			Humidity:    p.vals[1],
			Light:       p.vals[2],
		}
	}
	return rows
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
