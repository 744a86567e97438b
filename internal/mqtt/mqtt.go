// Package mqtt connects the calibrator to the broker, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/thermo-calibrator/internal/logic"
)

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "thermo-calibrator/system"

// Message is one inbound MQTT message.
type Message struct {
	Topic   string
	Payload []byte
}

// Publisher publishes calibration commands and lifecycle events.
type Publisher interface {
	// PublishCommand sends a calibration command to a thermostat.
	// Returns error if publishing fails (should not crash the process).
	PublishCommand(cmd logic.Command) error

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

// CommandPayload is the body of a thermostat calibration command.
type CommandPayload struct {
	LocalTemperatureCalibration float64 `json:"local_temperature_calibration"`
}

// FormatCommandPayload creates the JSON payload for a calibration command.
func FormatCommandPayload(cmd logic.Command) ([]byte, error) {
	return json.Marshal(CommandPayload{LocalTemperatureCalibration: cmd.Calibration})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
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
