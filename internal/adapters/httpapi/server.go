// Package httpapi serves the dashboard's read API, actuator control, and
// the live trend websocket.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/window"
)

// ErrNoBackend is reported when actuator routes are called without a
// backend.
var ErrNoBackend = errors.New("no backend configured")

// Actuators switches devices through the backend.
type Actuators interface {
	TriggerDevice(ctx context.Context, a domain.Actuator, on bool) error
	LastActions(ctx context.Context) ([]domain.ActuatorState, error)
}

// LatestSource supplies last known values when the window has none.
type LatestSource interface {
	Latest(ctx context.Context) (map[domain.Metric]domain.Sample, error)
}

// Deps are the collaborators the routes read from. Window and Hub are
// required; the rest are optional.
type Deps struct {
	Window    *window.Window
	Hub       *Hub
	Chart     window.MergeOptions
	Limits    domain.Limits
	Actuators Actuators
	History   History
	Cache     LatestSource
	Gatherer  prometheus.Gatherer
	// Connected reports the source connection for /healthz when set.
	Connected func() bool
	Logger    *slog.Logger
}

// Server exposes the HTTP transport.
type Server struct {
	router chi.Router
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}

	h := &handler{
		deps: d,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		writeTimeout: 5 * time.Second,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	registerRoutes(router, h)
	router.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))

	return &Server{router: router}
}

// Router returns the configured chi router.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
