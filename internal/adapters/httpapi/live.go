package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/window"
)

type liveFrame struct {
	Session string            `json:"session"`
	Metric  domain.Metric     `json:"metric"`
	Rows    []domain.ChartRow `json:"rows"`
}

// handleLive mounts a live view. The session starts empty unless ?seed=true,
// in which case it starts from the process window.
func (h *handler) handleLive(w http.ResponseWriter, r *http.Request) {
	m, err := parseMetric(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seed, _ := strconv.ParseBool(r.URL.Query().Get(querySeed))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		return
	}
	defer conn.Close()

	var from *window.State
	if seed {
		snap := h.deps.Window.Snapshot()
		from = &snap
	}
	sess := h.deps.Hub.Open(from)
	defer h.deps.Hub.Close(sess.ID)
	log := h.deps.Logger.With("session", sess.ID)
	log.Debug("live view mounted", "metric", m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client never sends data, but reading is what surfaces its close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(s window.State) {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		err := conn.WriteJSON(liveFrame{Session: sess.ID, Metric: m, Rows: window.MergeWith(s, h.deps.Chart)})
		if err != nil {
			log.Debug("live write failed", "err", err)
			cancel()
		}
	}

	send(sess.Window.Snapshot())
	_ = sess.Run(ctx, send)
	log.Debug("live view unmounted")
}
