package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuan204-dev/iot-next/internal/adapters/backend"
	"github.com/tuan204-dev/iot-next/internal/domain"
	"github.com/tuan204-dev/iot-next/internal/window"
)

var base = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

type stubActuators struct {
	triggered []domain.ActuatorState
	err       error
}

func (s *stubActuators) TriggerDevice(_ context.Context, a domain.Actuator, on bool) error {
	if s.err != nil {
		return s.err
	}
	s.triggered = append(s.triggered, domain.ActuatorState{Actuator: a, On: on})
	return nil
}

func (s *stubActuators) LastActions(context.Context) ([]domain.ActuatorState, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.ActuatorState{{Actuator: domain.LED, On: true}}, nil
}

type stubCache map[domain.Metric]domain.Sample

func (c stubCache) Latest(context.Context) (map[domain.Metric]domain.Sample, error) {
	return c, nil
}

func newDeps() Deps {
	return Deps{
		Window: window.New(),
		Hub:    NewHub(8, newStubObs()),
		Chart:  window.MergeOptions{Location: time.UTC},
		Limits: domain.DefaultLimits(),
	}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTrendDefaultsToLight(t *testing.T) {
	d := newDeps()
	d.Window.Ingest(&domain.Reading{Temperature: ptr(24), Humidity: ptr(60), Light: ptr(300), ReceivedAt: base})
	d.Window.Ingest(&domain.Reading{Light: ptr(320), ReceivedAt: base.Add(time.Minute)})

	rec := do(t, NewServer(d), http.MethodGet, "/api/trend", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got trendResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, domain.Light, got.Metric)
	assert.Equal(t, "lx", got.Unit)
	assert.Equal(t, []domain.ChartRow{
		{Time: "09:30", Temperature: 24, Humidity: 60, Light: 300},
		{Time: "09:31", Temperature: 0, Humidity: 0, Light: 320},
	}, got.Rows)
}

func TestTrendEmptyWindowAndMetricParam(t *testing.T) {
	rec := do(t, NewServer(newDeps()), http.MethodGet, "/api/trend?metric=Humidity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"metric":"humidity","unit":"%","rows":[]}`, rec.Body.String())
}

func TestTrendUnknownMetric(t *testing.T) {
	rec := do(t, NewServer(newDeps()), http.MethodGet, "/api/trend?metric=pressure", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown metric")
}

func TestLatest(t *testing.T) {
	d := newDeps()
	d.Window.Ingest(&domain.Reading{Temperature: ptr(35), Light: ptr(math.NaN()), ReceivedAt: base})
	d.Cache = stubCache{domain.Humidity: {Timestamp: base.Add(-time.Hour), Value: 20}}

	rec := do(t, NewServer(d), http.MethodGet, "/api/latest", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []latestEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)

	assert.Equal(t, domain.Temperature, got[0].Metric)
	require.NotNil(t, got[0].Value)
	assert.Equal(t, 35.0, *got[0].Value)
	assert.Equal(t, domain.StatusHigh, got[0].Status)

	require.NotNil(t, got[1].Value)
	assert.Equal(t, 20.0, *got[1].Value)
	assert.Equal(t, domain.StatusLow, got[1].Status)

	assert.Nil(t, got[2].Value)
	assert.NotNil(t, got[2].Timestamp)
}

func TestLimits(t *testing.T) {
	rec := do(t, NewServer(newDeps()), http.MethodGet, "/api/limits", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"temperature":{"min":15,"max":30},
		"humidity":{"min":30,"max":80},
		"light":{"min":30,"max":1000}
	}`, rec.Body.String())
}

func TestActuatorsWithoutBackend(t *testing.T) {
	srv := NewServer(newDeps())
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodGet, "/api/actuators", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, srv, http.MethodPost, "/api/actuators/fan", `{"on":true}`).Code)
}

func TestTriggerActuator(t *testing.T) {
	d := newDeps()
	act := &stubActuators{}
	d.Actuators = act
	srv := NewServer(d)

	rec := do(t, srv, http.MethodPost, "/api/actuators/air-conditioner", `{"on":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []domain.ActuatorState{{Actuator: domain.AirConditioner, On: true}}, act.triggered)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/actuators/heater", `{"on":true}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/actuators/led", `{}`).Code)

	rec = do(t, srv, http.MethodGet, "/api/actuators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"on":true`)
}

func TestTriggerActuatorBackendErrors(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{&backend.StatusError{Code: 500}, http.StatusBadGateway},
		{backend.ErrTriggerRejected, http.StatusConflict},
		{errors.New("dial tcp: refused"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		d := newDeps()
		d.Actuators = &stubActuators{err: tc.err}
		rec := do(t, NewServer(d), http.MethodPost, "/api/actuators/led", `{"on":false}`)
		assert.Equal(t, tc.code, rec.Code, tc.err.Error())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "iot_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	d := newDeps()
	d.Gatherer = reg
	d.Connected = func() bool { return true }
	srv := NewServer(d)

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0,"source_connected":true}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "iot_test_total 1")
}

func TestLiveSessionStreamsRows(t *testing.T) {
	d := newDeps()
	d.Window.Ingest(&domain.Reading{Temperature: ptr(20), ReceivedAt: base})
	ts := httptest.NewServer(NewServer(d))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live?metric=temperature"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var first liveFrame
	require.NoError(t, conn.ReadJSON(&first))
	assert.NotEmpty(t, first.Session)
	assert.Equal(t, domain.Temperature, first.Metric)
	assert.Empty(t, first.Rows, "a new live view starts empty")

	require.Eventually(t, func() bool { return d.Hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	d.Hub.Consume(&domain.Reading{Humidity: ptr(55), ReceivedAt: base.Add(time.Minute)})

	var next liveFrame
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, first.Session, next.Session)
	assert.Equal(t, []domain.ChartRow{{Time: "09:31", Humidity: 55}}, next.Rows)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return d.Hub.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestLiveSessionSeeded(t *testing.T) {
	d := newDeps()
	d.Window.Ingest(&domain.Reading{Temperature: ptr(20), ReceivedAt: base})
	ts := httptest.NewServer(NewServer(d))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live?seed=true"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first liveFrame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, domain.Light, first.Metric)
	assert.Equal(t, []domain.ChartRow{{Time: "09:30", Temperature: 20}}, first.Rows)
}

func TestLiveRejectsUnknownMetric(t *testing.T) {
	rec := do(t, NewServer(newDeps()), http.MethodGet, "/api/live?metric=co2", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
