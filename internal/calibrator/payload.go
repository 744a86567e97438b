package calibrator

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// Payload fields as published by zigbee2mqtt style devices.
const (
	FieldTemperature      = "temperature"
	FieldLocalTemperature = "local_temperature"
	FieldLocalCalibration = "local_temperature_calibration"
	FieldLastSeen         = "last_seen"
	FieldTimestamp        = "ts"
)

// Payload is the decoded body of an inbound device message.
// Numeric fields are nil when absent or not numbers.
type Payload struct {
	Temperature      *float64
	LocalTemperature *float64
	LocalCalibration *float64
	// LastSeen is the device's freshness marker, empty if absent.
	LastSeen string
	// Timestamp is the event time in epoch milliseconds, 0 if absent.
	Timestamp int64
	// Invalid lists fields that were present but could not be decoded.
	Invalid []string
}

var errNotObject = errors.New("payload is not a JSON object or number")

// DecodePayload parses a device message body. A bare JSON number is taken
// as a temperature reading.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return p, errNotObject
	}

	if trimmed[0] != '{' {
		var v float64
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return p, errNotObject
		}
		p.Temperature = &v
		return p, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return p, err
	}

	p.Temperature = p.number(fields, FieldTemperature)
	p.LocalTemperature = p.number(fields, FieldLocalTemperature)
	p.LocalCalibration = p.number(fields, FieldLocalCalibration)

	if raw, ok := fields[FieldLastSeen]; ok && !isNull(raw) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			p.LastSeen = s
		} else {
			p.LastSeen = string(bytes.TrimSpace(raw))
		}
	}

	if ts := p.number(fields, FieldTimestamp); ts != nil && *ts > 0 {
		p.Timestamp = int64(*ts)
	}
	return p, nil
}

func (p *Payload) number(fields map[string]json.RawMessage, name string) *float64 {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		p.Invalid = append(p.Invalid, name)
		return nil
	}
	return &v
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// Event is one inbound device report.
type Event struct {
	Identifier string
	Payload    Payload
	// Time is when the event happened; zero means "use the engine clock".
	Time time.Time
	// DecodeErr is set when the body could not be parsed at all.
	DecodeErr error
}

// EventFromMessage builds an Event from a raw message topic and body.
func EventFromMessage(topic string, body []byte) Event {
	ev := Event{Identifier: topic}
	p, err := DecodePayload(body)
	if err != nil {
		ev.DecodeErr = err
		return ev
	}
	ev.Payload = p
	if p.Timestamp > 0 {
		ev.Time = time.UnixMilli(p.Timestamp)
	}
	return ev
}

// FormatFloat renders a value the way it is logged and published.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
