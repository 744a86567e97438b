// Package logic contains the pure calibration decision core.
// This package has NO external dependencies (no MQTT, storage, OS, or wall clock).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// DeviceKind is the role a device plays for its location.
type DeviceKind string

const (
	KindSensor     DeviceKind = "sensor"
	KindThermostat DeviceKind = "thermostat"
)

// Reading is the latest temperature reported by one external sensor.
type Reading struct {
	Temperature float64   `json:"temperature" dynamodbav:"temperature"`
	ObservedAt  time.Time `json:"observed_at" dynamodbav:"observed_at"`
	BaseWeight  float64   `json:"base_weight" dynamodbav:"base_weight"`
}

// Thermostat is the last report received from a location's thermostat.
type Thermostat struct {
	// Topic the thermostat reports on; commands go to Topic + suffix.
	Topic       string    `json:"topic" dynamodbav:"topic"`
	Temperature float64   `json:"temperature" dynamodbav:"temperature"`
	Calibration float64   `json:"calibration" dynamodbav:"calibration"`
	ObservedAt  time.Time `json:"observed_at" dynamodbav:"observed_at"`
}

// RawTemperature returns the thermostat's own sensor value before calibration.
func (t Thermostat) RawTemperature() float64 {
	return t.Temperature - t.Calibration
}

// LocationState is everything remembered about one location.
type LocationState struct {
	Thermostat *Thermostat `json:"thermostat,omitempty" dynamodbav:"thermostat,omitempty"`
	// Sensors is keyed by the sensor's raw identifier.
	Sensors map[string]Reading `json:"sensors" dynamodbav:"sensors"`
	// LastCalibration is the calibration most recently commanded or reported.
	LastCalibration *float64  `json:"last_calibration,omitempty" dynamodbav:"last_calibration,omitempty"`
	LastActionAt    time.Time `json:"last_action_at" dynamodbav:"last_action_at"`
	// Actions holds recent action times, oldest first, for rate limiting.
	Actions []time.Time `json:"actions" dynamodbav:"actions"`
	// Markers holds the last freshness marker seen per raw identifier.
	Markers map[string]string `json:"markers,omitempty" dynamodbav:"markers,omitempty"`
}

// Phase describes how far a location has progressed.
type Phase string

const (
	PhaseUninitialized      Phase = "UNINITIALIZED"
	PhaseAwaitingThermostat Phase = "AWAITING_THERMOSTAT"
	PhaseReady              Phase = "READY"
)

// Phase reports the location's implicit lifecycle phase.
func (s LocationState) Phase() Phase {
	switch {
	case s.Thermostat != nil:
		return PhaseReady
	case len(s.Sensors) > 0:
		return PhaseAwaitingThermostat
	default:
		return PhaseUninitialized
	}
}

// PreviousCalibration returns the calibration the decision gate compares against.
func (s LocationState) PreviousCalibration() float64 {
	if s.LastCalibration != nil {
		return *s.LastCalibration
	}
	if s.Thermostat != nil {
		return s.Thermostat.Calibration
	}
	return 0
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (s LocationState) Clone() LocationState {
	out := s
	if s.Thermostat != nil {
		th := *s.Thermostat
		out.Thermostat = &th
	}
	if s.LastCalibration != nil {
		c := *s.LastCalibration
		out.LastCalibration = &c
	}
	out.Sensors = make(map[string]Reading, len(s.Sensors))
	for k, v := range s.Sensors {
		out.Sensors[k] = v
	}
	if s.Markers != nil {
		out.Markers = make(map[string]string, len(s.Markers))
		for k, v := range s.Markers {
			out.Markers[k] = v
		}
	}
	if s.Actions != nil {
		out.Actions = append([]time.Time(nil), s.Actions...)
	}
	return out
}

// Command is a calibration offset to send to a thermostat.
type Command struct {
	Topic       string
	Calibration float64
}
