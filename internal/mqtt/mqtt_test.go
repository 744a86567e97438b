package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/thermo-calibrator/internal/logic"
)

func TestFormatCommandPayload(t *testing.T) {
	cmd := logic.Command{Topic: "zigbee2mqtt/thermostat_office/set", Calibration: 1.6}

	payload, err := FormatCommandPayload(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"local_temperature_calibration":1.6}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", payload, expected)
	}
}

func TestFormatCommandPayloadValues(t *testing.T) {
	tests := []struct {
		calibration float64
		want        string
	}{
		{0, `{"local_temperature_calibration":0}`},
		{-2.4, `{"local_temperature_calibration":-2.4}`},
		{logic.RoundToStep(0.1+0.2+0.3, 0.2), `{"local_temperature_calibration":0.6}`},
		{logic.RoundToStep(-0.05, 0.2), `{"local_temperature_calibration":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			payload, err := FormatCommandPayload(logic.Command{Topic: "t/set", Calibration: tt.calibration})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(payload) != tt.want {
				t.Errorf("got %s, want %s", payload, tt.want)
			}
		})
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	err := f.PublishCommand(logic.Command{Topic: "zigbee2mqtt/thermostat_office/set", Calibration: 1.6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(f.Commands))
	}
	if f.Commands[0].Topic != "zigbee2mqtt/thermostat_office/set" {
		t.Errorf("unexpected topic: %s", f.Commands[0].Topic)
	}

	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}
	var parsed CommandPayload
	if err := json.Unmarshal(f.Payloads[0], &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.LocalTemperatureCalibration != 1.6 {
		t.Errorf("unexpected calibration: %v", parsed.LocalTemperatureCalibration)
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	err := f.PublishCommand(logic.Command{Topic: "t/set", Calibration: 1})
	if err == nil {
		t.Error("expected error")
	}

	if len(f.Commands) != 0 {
		t.Errorf("expected no commands recorded on error, got %d", len(f.Commands))
	}
}

func TestFakePublisherSystemError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystemError = errors.New("simulated error")

	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err == nil {
		t.Error("expected error")
	}
	if len(f.SystemEvents) != 0 {
		t.Errorf("expected no system events recorded on error, got %d", len(f.SystemEvents))
	}
}

func TestFakePublisherClose(t *testing.T) {
	f := NewFakePublisher()

	if f.Closed {
		t.Error("should not be closed initially")
	}

	err := f.Close()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if !f.Closed {
		t.Error("should be closed after Close()")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()

	f.PublishCommand(logic.Command{Topic: "t/set", Calibration: 1})
	f.PublishSystem(SystemEvent{Event: "STARTUP"})
	f.Close()
	f.Connected = true
	f.PublishError = errors.New("error")

	f.Reset()

	if len(f.Commands) != 0 {
		t.Error("commands should be cleared")
	}
	if len(f.Payloads) != 0 {
		t.Error("payloads should be cleared")
	}
	if len(f.SystemEvents) != 0 {
		t.Error("system events should be cleared")
	}
	if f.Closed {
		t.Error("closed should be reset")
	}
	if f.IsConnected() {
		t.Error("connected should be reset")
	}
	if f.PublishError != nil {
		t.Error("error should be cleared")
	}
}

func TestTopicSystem(t *testing.T) {
	expected := "thermo-calibrator/system"
	if TopicSystem != expected {
		t.Errorf("unexpected system topic: got %s, want %s", TopicSystem, expected)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadOmitsEmptyReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 19, 5, 51, 0, time.UTC),
		Event:     "OFFLINE",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	system := parsed["system"].(map[string]interface{})
	if _, exists := system["reason"]; exists {
		t.Error("reason field should be omitted when empty")
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"HEARTBEAT"}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}
