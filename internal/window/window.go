// Package window keeps a bounded, newest-first history per metric and projects
// the three histories into chart rows.
//
// A Window has one writer at a time. Every ingest builds a new State and swaps
// it in atomically, so Snapshot callers on other goroutines always observe a
// complete state and never block the writer.
package window

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tuan204-dev/iot-next/internal/domain"
)

// DefaultCapacity is the number of samples kept per metric.
const DefaultCapacity = 150

// State is the aggregate of the three metric histories. Values of State are
// never modified after they are published; Apply returns a new one.
type State struct {
	Temperature domain.History `json:"temperature"`
	Humidity    domain.History `json:"humidity"`
	Light       domain.History `json:"light"`
}

// History returns the history kept for m.
func (s State) History(m domain.Metric) domain.History {
	switch m {
	case domain.Temperature:
		return s.Temperature
	case domain.Humidity:
		return s.Humidity
	case domain.Light:
		return s.Light
	default:
		return nil
	}
}

// Len reports the total number of samples across all metrics.
func (s State) Len() int {
	return len(s.Temperature) + len(s.Humidity) + len(s.Light)
}

func (s State) with(m domain.Metric, h domain.History) State {
	switch m {
	case domain.Temperature:
		s.Temperature = h
	case domain.Humidity:
		s.Humidity = h
	case domain.Light:
		s.Light = h
	}
	return s
}

// Apply folds one reading into s and returns the resulting state. Every metric
// the reading carries gets a new head sample stamped at; the history is then
// cut to capacity, dropping the oldest entries. Metrics the reading does not
// carry keep the exact slice they had.
func Apply(s State, r *domain.Reading, at time.Time, capacity int) State {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	for _, m := range domain.Metrics {
		v, ok := r.Value(m)
		if !ok {
			continue
		}
		s = s.with(m, prepend(s.History(m), domain.Sample{Timestamp: at, Value: v}, capacity))
	}
	return s
}

func prepend(h domain.History, head domain.Sample, capacity int) domain.History {
	n := len(h) + 1
	if n > capacity {
		n = capacity
	}
	out := make(domain.History, n)
	out[0] = head
	copy(out[1:], h)
	return out
}

// FromHistories builds a valid state out of samples in any order, e.g. a
// backend snapshot. Each history is sorted newest-first and cut to capacity.
func FromHistories(capacity int, temperature, humidity, light []domain.Sample) State {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	normalize := func(in []domain.Sample) domain.History {
		if len(in) == 0 {
			return nil
		}
		h := make(domain.History, len(in))
		copy(h, in)
		sort.SliceStable(h, func(i, j int) bool {
			return h[i].Timestamp.After(h[j].Timestamp)
		})
		if len(h) > capacity {
			h = h[:capacity]
		}
		return h
	}
	return State{
		Temperature: normalize(temperature),
		Humidity:    normalize(humidity),
		Light:       normalize(light),
	}
}

// Option configures a Window.
type Option func(*Window)

// WithCapacity bounds every history to n samples.
func WithCapacity(n int) Option {
	return func(w *Window) {
		if n > 0 {
			w.capacity = n
		}
	}
}

// WithClock replaces time.Now for readings that arrive without a receive time.
func WithClock(now func() time.Time) Option {
	return func(w *Window) {
		if now != nil {
			w.now = now
		}
	}
}

// Window owns one aggregate state.
type Window struct {
	capacity int
	now      func() time.Time

	mu    sync.Mutex // serializes writers
	last  time.Time
	state atomic.Pointer[State]
}

// New returns a window holding three empty histories.
func New(opts ...Option) *Window {
	w := &Window{
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.state.Store(&State{})
	return w
}

// Capacity returns the per-metric bound.
func (w *Window) Capacity() int { return w.capacity }

// Snapshot returns the current state.
func (w *Window) Snapshot() State {
	return *w.state.Load()
}

// Ingest records the reading and returns the new state. The sample time is
// the reading's ReceivedAt, or the clock when that is unset, and never goes
// backwards relative to the previous ingest so histories stay ordered.
func (w *Window) Ingest(r *domain.Reading) State {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur := w.state.Load()
	if r.Empty() {
		return *cur
	}

	at := r.ReceivedAt
	if at.IsZero() {
		at = w.now()
	}
	at = at.Round(0)
	if at.Before(w.last) {
		at = w.last
	}
	w.last = at

	next := Apply(*cur, r, at, w.capacity)
	w.state.Store(&next)
	return next
}

// Consume implements ports.Consumer.
func (w *Window) Consume(r *domain.Reading) {
	w.Ingest(r)
}

// Replace installs s wholesale, e.g. after seeding from a backend snapshot.
// Histories longer than the capacity are cut.
func (w *Window) Replace(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()

	next := State{
		Temperature: clip(s.Temperature, w.capacity),
		Humidity:    clip(s.Humidity, w.capacity),
		Light:       clip(s.Light, w.capacity),
	}
	w.last = time.Time{}
	for _, m := range domain.Metrics {
		if head, ok := next.History(m).Latest(); ok && head.Timestamp.After(w.last) {
			w.last = head.Timestamp
		}
	}
	w.state.Store(&next)
}

// Reset drops every sample.
func (w *Window) Reset() {
	w.Replace(State{})
}

func clip(h domain.History, capacity int) domain.History {
	if len(h) > capacity {
		return h[:capacity:capacity]
	}
	return h
}

// Feed is the window's consumer loop: it ingests readings from in, in order,
// and hands each resulting state to onUpdate. It returns nil once in is closed
// and the context error if ctx ends first.
func (w *Window) Feed(ctx context.Context, in <-chan *domain.Reading, onUpdate func(State)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-in:
			if !ok {
				return nil
			}
			s := w.Ingest(r)
			if onUpdate != nil {
				onUpdate(s)
			}
		}
	}
}
