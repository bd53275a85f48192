package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tuan204-dev/iot-next/internal/adapters/backend"
)

// History serves the searchable archive views from the backend.
type History interface {
	SearchSensorData(ctx context.Context, q backend.SensorDataQuery) (backend.Page[backend.SensorRecord], error)
	SearchActionHistory(ctx context.Context, q backend.ActionHistoryQuery) (backend.Page[backend.ActionRecord], error)
	DeviceCountsToday(ctx context.Context) ([]backend.DeviceCount, error)
	Sensors(ctx context.Context) ([]backend.Sensor, error)
	Actuators(ctx context.Context) ([]backend.Device, error)
	Actions(ctx context.Context) ([]backend.Device, error)
}

func registerHistoryRoutes(r chi.Router, h *handler) {
	r.Route("/history", func(r chi.Router) {
		r.Post("/sensor-data", h.handleSearchSensorData)
		r.Post("/actions", h.handleSearchActions)
		r.Get("/device-counts", h.handleDeviceCounts)
	})
	r.Route("/catalog", func(r chi.Router) {
		r.Get("/sensors", catalog(h, History.Sensors))
		r.Get("/actuators", catalog(h, History.Actuators))
		r.Get("/actions", catalog(h, History.Actions))
	})
}

func (h *handler) handleSearchSensorData(w http.ResponseWriter, r *http.Request) {
	var q backend.SensorDataQuery
	if !h.decodeQuery(w, r, &q) {
		return
	}
	page, err := h.deps.History.SearchSensorData(r.Context(), q)
	h.respondHistory(w, page, err)
}

func (h *handler) handleSearchActions(w http.ResponseWriter, r *http.Request) {
	var q backend.ActionHistoryQuery
	if !h.decodeQuery(w, r, &q) {
		return
	}
	page, err := h.deps.History.SearchActionHistory(r.Context(), q)
	h.respondHistory(w, page, err)
}

func (h *handler) handleDeviceCounts(w http.ResponseWriter, r *http.Request) {
	if h.noHistory(w) {
		return
	}
	counts, err := h.deps.History.DeviceCountsToday(r.Context())
	if counts == nil {
		counts = []backend.DeviceCount{}
	}
	h.respondHistory(w, counts, err)
}

func catalog[T any](h *handler, list func(History, context.Context) ([]T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.noHistory(w) {
			return
		}
		items, err := list(h.deps.History, r.Context())
		if items == nil {
			items = []T{}
		}
		h.respondHistory(w, items, err)
	}
}

// decodeQuery reads an optional JSON filter body; an empty body is the
// unfiltered first page.
func (h *handler) decodeQuery(w http.ResponseWriter, r *http.Request, q any) bool {
	if h.noHistory(w) {
		return false
	}
	err := json.NewDecoder(r.Body).Decode(q)
	if err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "malformed query: "+err.Error())
		return false
	}
	return true
}

func (h *handler) noHistory(w http.ResponseWriter) bool {
	if h.deps.History == nil {
		h.writeError(w, http.StatusServiceUnavailable, ErrNoBackend.Error())
		return true
	}
	return false
}

func (h *handler) respondHistory(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		h.respondBackendError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, payload)
}
