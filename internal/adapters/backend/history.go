package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInvalidQuery is returned before any request is sent when a history
// query is malformed.
var ErrInvalidQuery = errors.New("invalid history query")

// Pagination describes one page of a backend search.
type Pagination struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Size       int `json:"size"`
	TotalPages int `json:"totalPages"`
}

// Page is one page of search results.
type Page[T any] struct {
	Data       []T        `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Sensor is a sensor known to the backend.
type Sensor struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SensorRecord is one archived sensor value.
type SensorRecord struct {
	ID        int       `json:"id"`
	SensorID  int       `json:"sensor_id"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	Sensor    Sensor    `json:"sensor"`
}

// Device is an actuator or action as the backend lists it.
type Device struct {
	ID       int    `json:"id"`
	DeviceID int    `json:"device_id,omitempty"`
	Name     string `json:"name"`
	State    string `json:"state,omitempty"`
}

// ActionRecord is one entry of the actuator action log.
type ActionRecord struct {
	ID         int       `json:"id"`
	ActionID   int       `json:"action_id"`
	ActuatorID int       `json:"actuator_id"`
	Timestamp  time.Time `json:"timestamp"`
	Status     string    `json:"status"`
	Action     Device    `json:"action"`
	Actuator   Device    `json:"actuator"`
}

// DeviceCount is how often a device was switched on and off today.
type DeviceCount struct {
	DeviceID int `json:"deviceId"`
	Counts   struct {
		On  int `json:"on"`
		Off int `json:"off"`
	} `json:"counts"`
}

// Sort orders accepted by the search endpoints.
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// SensorDataQuery filters the sensor archive. Dates are Unix milliseconds;
// zero values are left out of the request.
type SensorDataQuery struct {
	Page       int      `json:"page,omitempty"`
	Size       int      `json:"size,omitempty"`
	SensorIDs  []string `json:"sensorIds,omitempty"`
	Unit       string   `json:"unit,omitempty"`
	StartDate  int64    `json:"startDate,omitempty"`
	EndDate    int64    `json:"endDate,omitempty"`
	StartValue *float64 `json:"startValue,omitempty"`
	EndValue   *float64 `json:"endValue,omitempty"`
	SortBy     string   `json:"sortBy,omitempty"`
	SortOrder  string   `json:"sortOrder,omitempty"`
}

func (q SensorDataQuery) Validate() error {
	if err := validatePaging(q.Page, q.Size, q.StartDate, q.EndDate, q.SortOrder); err != nil {
		return err
	}
	if q.StartValue != nil && q.EndValue != nil && *q.StartValue > *q.EndValue {
		return fmt.Errorf("%w: startValue is after endValue", ErrInvalidQuery)
	}
	return nil
}

// ActionHistoryQuery filters the actuator action log.
type ActionHistoryQuery struct {
	Page        int      `json:"page,omitempty"`
	Size        int      `json:"size,omitempty"`
	ActuatorIDs []string `json:"actuatorIds,omitempty"`
	ActionIDs   []string `json:"actionIds,omitempty"`
	Status      string   `json:"status,omitempty"`
	QueryName   string   `json:"queryName,omitempty"`
	StartDate   int64    `json:"startDate,omitempty"`
	EndDate     int64    `json:"endDate,omitempty"`
	SortBy      string   `json:"sortBy,omitempty"`
	SortOrder   string   `json:"sortOrder,omitempty"`
}

func (q ActionHistoryQuery) Validate() error {
	return validatePaging(q.Page, q.Size, q.StartDate, q.EndDate, q.SortOrder)
}

func validatePaging(page, size int, start, end int64, order string) error {
	switch {
	case page < 0:
		return fmt.Errorf("%w: page must not be negative", ErrInvalidQuery)
	case size < 0:
		return fmt.Errorf("%w: size must not be negative", ErrInvalidQuery)
	case start != 0 && end != 0 && start > end:
		return fmt.Errorf("%w: startDate is after endDate", ErrInvalidQuery)
	}
	switch strings.ToUpper(order) {
	case "", SortAsc, SortDesc:
		return nil
	default:
		return fmt.Errorf("%w: sortOrder %q is not ASC or DESC", ErrInvalidQuery, order)
	}
}

// SearchSensorData returns one page of archived sensor values.
func (c *Client) SearchSensorData(ctx context.Context, q SensorDataQuery) (Page[SensorRecord], error) {
	var out Page[SensorRecord]
	if err := q.Validate(); err != nil {
		return out, err
	}
	q.SortOrder = strings.ToUpper(q.SortOrder)
	err := c.do(ctx, http.MethodPost, "sensor-data/search", q, &out)
	return out, err
}

// SearchActionHistory returns one page of the actuator action log.
func (c *Client) SearchActionHistory(ctx context.Context, q ActionHistoryQuery) (Page[ActionRecord], error) {
	var out Page[ActionRecord]
	if err := q.Validate(); err != nil {
		return out, err
	}
	q.SortOrder = strings.ToUpper(q.SortOrder)
	err := c.do(ctx, http.MethodPost, "action-histories/search", q, &out)
	return out, err
}

// DeviceCountsToday returns per-device on/off counts for the current day.
func (c *Client) DeviceCountsToday(ctx context.Context) ([]DeviceCount, error) {
	var out struct {
		Devices []DeviceCount `json:"devices"`
	}
	err := c.do(ctx, http.MethodGet, "action-histories/device-counts-today", nil, &out)
	return out.Devices, err
}

func (c *Client) Sensors(ctx context.Context) ([]Sensor, error) {
	var out []Sensor
	err := c.do(ctx, http.MethodGet, "sensors", nil, &out)
	return out, err
}

func (c *Client) Actuators(ctx context.Context) ([]Device, error) {
	var out []Device
	err := c.do(ctx, http.MethodGet, "actuators", nil, &out)
	return out, err
}

func (c *Client) Actions(ctx context.Context) ([]Device, error) {
	var out []Device
	err := c.do(ctx, http.MethodGet, "actions", nil, &out)
	return out, err
}
