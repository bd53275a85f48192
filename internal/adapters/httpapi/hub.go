package httpapi

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/ports"
	"github.com/tuan204-dev/iot-next/internal/window"
)

// Session is one mounted live view. It owns its window; the hub only feeds
// its channel.
type Session struct {
	ID     string
	Window *window.Window
	in     chan *domain.Reading
}

// Run feeds the session window until the session is closed or ctx ends,
// calling onUpdate after every ingest.
func (s *Session) Run(ctx context.Context, onUpdate func(window.State)) error {
	return s.Window.Feed(ctx, s.in, onUpdate)
}

// Hub fans readings out to every open session without blocking the live
// pipeline.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	buffer   int
	winOpts  []window.Option
	obs      ports.Observability
}

func NewHub(buffer int, obs ports.Observability, opts ...window.Option) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{
		sessions: make(map[string]*Session),
		buffer:   buffer,
		winOpts:  opts,
		obs:      obs,
	}
}

// Open registers a new session. Its window starts from seed, or empty when
// seed is nil. The seed is installed before the session can receive
// readings, so nothing in it is delivered twice.
func (h *Hub) Open(seed *window.State) *Session {
	s := &Session{
		ID:     uuid.NewString(),
		Window: window.New(h.winOpts...),
		in:     make(chan *domain.Reading, h.buffer),
	}
	if seed != nil {
		s.Window.Replace(*seed)
	}
	h.mu.Lock()
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()
	h.obs.SetGauge(ports.MetricLiveSessions, float64(n))
	return s
}

// Close unregisters the session and ends its Run loop. Closing an unknown id
// is a no-op.
func (h *Hub) Close(id string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	if ok {
		delete(h.sessions, id)
		close(s.in)
	}
	n := len(h.sessions)
	h.mu.Unlock()
	if ok {
		h.obs.SetGauge(ports.MetricLiveSessions, float64(n))
	}
}

// CloseAll ends every session.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	for id, s := range h.sessions {
		close(s.in)
		delete(h.sessions, id)
	}
	h.mu.Unlock()
	h.obs.SetGauge(ports.MetricLiveSessions, 0)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Consume offers r to every session. A session whose buffer is full misses
// the reading.
func (h *Hub) Consume(r *domain.Reading) {
	var dropped int
	h.mu.RLock()
	for _, s := range h.sessions {
		select {
		case s.in <- r:
		default:
			dropped++
		}
	}
	h.mu.RUnlock()
	if dropped > 0 {
		h.obs.IncCounter(ports.MetricSessionDropped, float64(dropped))
	}
}

var _ ports.Consumer = (*Hub)(nil)
