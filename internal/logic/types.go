// Package logic contains the pure control logic for the sous-vide controller.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the logical state of a binary output.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// StateOf converts a boolean output level into a State.
func StateOf(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// EventType identifies something worth telling the outside world about.
type EventType string

const (
	EventHeaterOn  EventType = "HEATER_ON"
	EventHeaterOff EventType = "HEATER_OFF"
	EventStart     EventType = "START"
	EventStop      EventType = "STOP"
	EventSetpoint  EventType = "SETPOINT"
	EventWindow    EventType = "WINDOW"
	EventDry       EventType = "DRY" // water interlock tripped
	EventFault     EventType = "FAULT"
	EventAutotune  EventType = "AUTOTUNE"
)

// Event is a controller state transition to be published.
type Event struct {
	Timestamp   time.Time
	Type        EventType
	Heater      State
	Running     bool
	Setpoint    *float64
	Temperature float64
	OnTime      time.Duration
	Manual      bool
	Reason      string
}
