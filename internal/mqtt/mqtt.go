// Package mqtt publishes supervisor events to MQTT with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/valve-supervisor/internal/logic"
)

// Topic is the MQTT topic for supervisor events.
const Topic = "valve/supervisor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "valve/supervisor/system"

// System event names.
const (
	SystemStartup     = "STARTUP"
	SystemShutdown    = "SHUTDOWN"
	SystemHeartbeat   = "HEARTBEAT"
	SystemReconnected = "RECONNECTED"
	SystemOffline     = "OFFLINE"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a supervisor event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Valve ValvePayload `json:"valve"`
}

// ValvePayload contains the supervisor event details.
type ValvePayload struct {
	Timestamp     string `json:"timestamp"`
	Event         string `json:"event"`
	Attempt       int    `json:"attempt,omitempty"`
	FakeClose     int    `json:"fake_close"`
	CloseAttempts int    `json:"close_attempts"`
}

// FormatPayload creates the JSON payload for a supervisor event.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Valve: ValvePayload{
			Timestamp:     event.Timestamp.UTC().Format(time.RFC3339Nano),
			Event:         string(event.Type),
			Attempt:       event.Attempt,
			FakeClose:     event.Counters.FakeClose,
			CloseAttempts: event.Counters.CloseAttempts,
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

// NopPublisher drops every message. It stands in when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(logic.Event) error       { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
