package domain

import (
	"fmt"
	"strings"
)

// Actuator is a switchable device known to the backend.
type Actuator struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	OnAction  int    `json:"on_action"`
	OffAction int    `json:"off_action"`
}

// ActionFor returns the backend action id that drives the actuator to the
// requested state.
func (a Actuator) ActionFor(on bool) int {
	if on {
		return a.OnAction
	}
	return a.OffAction
}

var (
	LED            = Actuator{ID: 3, Name: "led", OnAction: 1, OffAction: 2}
	Fan            = Actuator{ID: 4, Name: "fan", OnAction: 3, OffAction: 4}
	AirConditioner = Actuator{ID: 5, Name: "air_conditioner", OnAction: 5, OffAction: 6}
)

// Actuators lists the devices in display order.
var Actuators = []Actuator{LED, Fan, AirConditioner}

// LookupActuator finds an actuator by name.
func LookupActuator(name string) (Actuator, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for _, a := range Actuators {
		if a.Name == n {
			return a, nil
		}
	}
	return Actuator{}, fmt.Errorf("unknown actuator %q", name)
}

// ActuatorState is the last known switch position of a device.
type ActuatorState struct {
	Actuator Actuator `json:"actuator"`
	On       bool     `json:"on"`
}
