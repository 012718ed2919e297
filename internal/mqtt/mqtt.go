// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/sous-vide/internal/logic"
)

// DefaultTopic is the base topic used when none is configured.
const DefaultTopic = "kitchen/sous-vide"

// Topics are the three topics derived from a base topic.
type Topics struct {
	Events string // controller events, not retained
	Status string // status snapshot, retained
	System string // daemon lifecycle, last will
}

// TopicsFor derives the topic set for base.
func TopicsFor(base string) Topics {
	if base == "" {
		base = DefaultTopic
	}
	return Topics{
		Events: base + "/events",
		Status: base + "/status",
		System: base + "/system",
	}
}

// Publisher publishes controller events to MQTT.
type Publisher interface {
	// Publish sends a controller event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishStatus sends the status snapshot as a retained message.
	PublishStatus(payload []byte) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	SousVide EventPayload `json:"sous_vide"`
}

// EventPayload contains the controller event details.
type EventPayload struct {
	Timestamp   string   `json:"timestamp"`
	Event       string   `json:"event"`
	Heater      string   `json:"heater"`
	Running     bool     `json:"running"`
	Setpoint    *float64 `json:"setpoint"`
	Temperature float64  `json:"temp"`
	OnTimeMs    int64    `json:"on_time_ms"`
	Manual      bool     `json:"manual,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// FormatPayload creates the JSON payload for a controller event.
func FormatPayload(event logic.Event) ([]byte, error) {
	heater := event.Heater
	if heater == "" {
		heater = logic.StateOff
	}
	payload := Payload{
		SousVide: EventPayload{
			Timestamp:   event.Timestamp.UTC().Format(time.RFC3339),
			Event:       string(event.Type),
			Heater:      string(heater),
			Running:     event.Running,
			Setpoint:    event.Setpoint,
			Temperature: event.Temperature,
			OnTimeMs:    event.OnTime.Milliseconds(),
			Manual:      event.Manual,
			Reason:      event.Reason,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the retained last-will message the broker publishes on
// the system topic if the controller disappears.
func WillPayload() []byte {
	data, _ := json.Marshal(SystemPayload{System: SystemPayloadInner{Event: "OFFLINE", Reason: "connection lost"}})
	return data
}
