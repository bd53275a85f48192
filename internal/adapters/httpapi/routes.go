package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/tuan204-dev/iot-next/internal/adapters/backend"
	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/window"
)

const (
	queryMetric = "metric"
	querySeed   = "seed"

	defaultMetric = domain.Light
)

type handler struct {
	deps         Deps
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

func registerRoutes(router chi.Router, h *handler) {
	router.Get("/healthz", h.handleHealth)
	router.Route("/api", func(r chi.Router) {
		r.Get("/trend", h.handleTrend)
		r.Get("/latest", h.handleLatest)
		r.Get("/limits", h.handleLimits)
		r.Get("/actuators", h.handleListActuators)
		r.Post("/actuators/{name}", h.handleTriggerActuator)
		r.Get("/live", h.handleLive)
		registerHistoryRoutes(r, h)
	})
}

type trendResponse struct {
	Metric domain.Metric     `json:"metric"`
	Unit   string            `json:"unit"`
	Rows   []domain.ChartRow `json:"rows"`
}

type latestEntry struct {
	Metric    domain.Metric `json:"metric"`
	Unit      string        `json:"unit"`
	Value     *float64      `json:"value"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
	Status    domain.Status `json:"status,omitempty"`
}

type triggerRequest struct {
	On *bool `json:"on"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func parseMetric(r *http.Request) (domain.Metric, error) {
	raw := r.URL.Query().Get(queryMetric)
	if raw == "" {
		return defaultMetric, nil
	}
	return domain.ParseMetric(raw)
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok", "sessions": h.deps.Hub.Len()}
	if h.deps.Connected != nil {
		body["source_connected"] = h.deps.Connected()
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *handler) handleTrend(w http.ResponseWriter, r *http.Request) {
	m, err := parseMetric(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, trendResponse{
		Metric: m,
		Unit:   m.Unit(),
		Rows:   window.MergeWith(h.deps.Window.Snapshot(), h.deps.Chart),
	})
}

func (h *handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Window.Snapshot()

	var cached map[domain.Metric]domain.Sample
	if h.deps.Cache != nil && hasEmptyHistory(snap) {
		var err error
		if cached, err = h.deps.Cache.Latest(r.Context()); err != nil {
			h.deps.Logger.Warn("cache lookup failed", "err", err)
		}
	}

	out := make([]latestEntry, 0, len(domain.Metrics))
	for _, m := range domain.Metrics {
		e := latestEntry{Metric: m, Unit: m.Unit()}
		s, ok := snap.History(m).Latest()
		if !ok {
			s, ok = cached[m]
		}
		if ok {
			ts := s.Timestamp
			e.Timestamp = &ts
			if !math.IsNaN(s.Value) && !math.IsInf(s.Value, 0) {
				v := s.Value
				e.Value = &v
				e.Status = h.deps.Limits.Check(m, v)
			}
		}
		out = append(out, e)
	}
	h.writeJSON(w, http.StatusOK, out)
}

func hasEmptyHistory(s window.State) bool {
	for _, m := range domain.Metrics {
		if len(s.History(m)) == 0 {
			return true
		}
	}
	return false
}

func (h *handler) handleLimits(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.deps.Limits)
}

func (h *handler) handleListActuators(w http.ResponseWriter, r *http.Request) {
	if h.deps.Actuators == nil {
		h.writeError(w, http.StatusServiceUnavailable, ErrNoBackend.Error())
		return
	}
	states, err := h.deps.Actuators.LastActions(r.Context())
	if err != nil {
		h.respondBackendError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, states)
}

func (h *handler) handleTriggerActuator(w http.ResponseWriter, r *http.Request) {
	if h.deps.Actuators == nil {
		h.writeError(w, http.StatusServiceUnavailable, ErrNoBackend.Error())
		return
	}
	a, err := domain.LookupActuator(chi.URLParam(r, "name"))
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.On == nil {
		h.writeError(w, http.StatusBadRequest, `body must be {"on": true|false}`)
		return
	}

	if err := h.deps.Actuators.TriggerDevice(r.Context(), a, *req.On); err != nil {
		h.respondBackendError(w, err)
		return
	}
	h.deps.Logger.Info("actuator switched", "actuator", a.Name, "on", *req.On)
	h.writeJSON(w, http.StatusOK, domain.ActuatorState{Actuator: a, On: *req.On})
}

func (h *handler) respondBackendError(w http.ResponseWriter, err error) {
	h.deps.Logger.Error("backend call failed", "err", err)
	var se *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrInvalidQuery):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, backend.ErrTriggerRejected):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &se):
		h.writeError(w, http.StatusBadGateway, "backend returned "+strconv.Itoa(se.Code))
	default:
		h.writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: status})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
