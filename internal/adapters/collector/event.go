// Package collector holds the event decoding shared by the push-source
// adapters in its subpackages.
package collector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/tuan204-dev/iot-next/internal/domain"
)

// EventSensorData carries any subset of the three metrics in one object.
const EventSensorData = "sensor_data"

// ErrUnknownEvent is returned for event names that carry no sensor data.
var ErrUnknownEvent = errors.New("unknown event")

type sensorDataPayload struct {
	Temperature *float64 `json:"temperature"`
	Temp        *float64 `json:"temp"`
	Humidity    *float64 `json:"humidity"`
	Light       *float64 `json:"light"`
}

type metricPayload struct {
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
}

// DecodeEvent turns a named push event into a reading.
//
// "sensor_data" carries {"temperature","humidity","light"} (the short key
// "temp" is accepted too). A metric name as event carries either
// {"value": n, "unit": "..."} or a bare number. Null fields decode to absent
// metrics.
func DecodeEvent(event string, payload []byte) (*domain.Reading, error) {
	if event == EventSensorData {
		var p sensorDataPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", event, err)
		}
		r := &domain.Reading{Temperature: p.Temperature, Humidity: p.Humidity, Light: p.Light}
		if r.Temperature == nil {
			r.Temperature = p.Temp
		}
		return r, nil
	}

	m, err := domain.ParseMetric(event)
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, event)
	}

	trimmed := bytes.TrimSpace(payload)
	if v, err := strconv.ParseFloat(string(trimmed), 64); err == nil {
		return domain.NewReading(m, v), nil
	}

	var p metricPayload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", event, err)
	}
	r := &domain.Reading{}
	if p.Value != nil {
		r.Set(m, *p.Value)
	}
	return r, nil
}
