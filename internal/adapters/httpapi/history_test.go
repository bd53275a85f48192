package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuan204-dev/iot-next/internal/adapters/backend"
)

type stubHistory struct {
	sensorQuery backend.SensorDataQuery
	actionQuery backend.ActionHistoryQuery
	err         error
}

func (s *stubHistory) SearchSensorData(_ context.Context, q backend.SensorDataQuery) (backend.Page[backend.SensorRecord], error) {
	s.sensorQuery = q
	if err := q.Validate(); err != nil {
		return backend.Page[backend.SensorRecord]{}, err
	}
	return backend.Page[backend.SensorRecord]{
		Data:       []backend.SensorRecord{{ID: 1, SensorID: 1, Value: 24.5, Unit: "°C", Timestamp: base}},
		Pagination: backend.Pagination{Total: 1, Page: 1, Size: 10, TotalPages: 1},
	}, s.err
}

func (s *stubHistory) SearchActionHistory(_ context.Context, q backend.ActionHistoryQuery) (backend.Page[backend.ActionRecord], error) {
	s.actionQuery = q
	return backend.Page[backend.ActionRecord]{Data: []backend.ActionRecord{}}, s.err
}

func (s *stubHistory) DeviceCountsToday(context.Context) ([]backend.DeviceCount, error) {
	return nil, s.err
}

func (s *stubHistory) Sensors(context.Context) ([]backend.Sensor, error) {
	return []backend.Sensor{{ID: 1, Name: "Temperature"}}, s.err
}

func (s *stubHistory) Actuators(context.Context) ([]backend.Device, error) {
	return []backend.Device{{ID: 2, Name: "Fan"}}, s.err
}

func (s *stubHistory) Actions(context.Context) ([]backend.Device, error) {
	return nil, s.err
}

func TestSearchSensorDataProxiesQuery(t *testing.T) {
	d := newDeps()
	hist := &stubHistory{}
	d.History = hist
	srv := NewServer(d)

	rec := do(t, srv, http.MethodPost, "/api/history/sensor-data", `{"page":1,"size":10,"sensorIds":["1"],"sortOrder":"ASC"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, backend.SensorDataQuery{Page: 1, Size: 10, SensorIDs: []string{"1"}, SortOrder: "ASC"}, hist.sensorQuery)

	var page backend.Page[backend.SensorRecord]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Data, 1)
	assert.Equal(t, 24.5, page.Data[0].Value)
	assert.Equal(t, 1, page.Pagination.TotalPages)
}

func TestSearchActionsEmptyBody(t *testing.T) {
	d := newDeps()
	hist := &stubHistory{}
	d.History = hist

	rec := do(t, NewServer(d), http.MethodPost, "/api/history/actions", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, backend.ActionHistoryQuery{}, hist.actionQuery)
	assert.JSONEq(t, `{"data":[],"pagination":{"total":0,"page":0,"size":0,"totalPages":0}}`, rec.Body.String())
}

func TestHistoryBadRequests(t *testing.T) {
	d := newDeps()
	d.History = &stubHistory{}
	srv := NewServer(d)

	rec := do(t, srv, http.MethodPost, "/api/history/sensor-data", `{"page":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/history/sensor-data", `{"startDate":20,"endDate":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "startDate")
}

func TestDeviceCountsAndCatalog(t *testing.T) {
	d := newDeps()
	d.History = &stubHistory{}
	srv := NewServer(d)

	rec := do(t, srv, http.MethodGet, "/api/history/device-counts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/catalog/sensors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":1,"name":"Temperature"}]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/catalog/actuators", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"id":2,"name":"Fan"}]`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/catalog/actions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestHistoryBackendFailures(t *testing.T) {
	d := newDeps()
	rec := do(t, NewServer(d), http.MethodGet, "/api/history/device-counts", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	d.History = &stubHistory{err: &backend.StatusError{Method: "GET", Path: "/sensors", Code: 500}}
	rec = do(t, NewServer(d), http.MethodGet, "/api/catalog/sensors", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "500")
}
