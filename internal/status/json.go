package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        CountsJSON     `json:"event_counts"`
	Locations     []LocationJSON `json:"locations"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Events      int            `json:"events"`
	Dropped     int            `json:"dropped"`
	Commands    int            `json:"commands"`
	DataQuality int            `json:"data_quality"`
	Outcomes    map[string]int `json:"outcomes"`
}

// LocationJSON is the JSON representation of one location.
type LocationJSON struct {
	Location              string   `json:"location"`
	Phase                 string   `json:"phase"`
	ThermostatTopic       string   `json:"thermostat_topic,omitempty"`
	ThermostatTemperature *float64 `json:"thermostat_temperature"`
	Calibration           *float64 `json:"calibration"`
	Sensors               int      `json:"sensors"`
	Average               *float64 `json:"average"`
	LastOutcome           string   `json:"last_outcome"`
	LastEvent             string   `json:"last_event,omitempty"`
	LastAction            string   `json:"last_action,omitempty"`
	Commands              int      `json:"commands"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HeartbeatMs  int64   `json:"heartbeat_ms"`
	Broker       string  `json:"broker"`
	HTTPAddr     string  `json:"http_addr"`
	Trigger      string  `json:"trigger"`
	Step         float64 `json:"step"`
	Hysteresis   float64 `json:"hysteresis"`
	CooldownMs   int64   `json:"cooldown_ms"`
	RateLimit    int     `json:"rate_limit"`
	RateWindowMs int64   `json:"rate_window_ms"`
	Store        string  `json:"store"`
	Journal      bool    `json:"journal"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// LocationToJSON converts one location view.
func LocationToJSON(l Location) LocationJSON {
	return LocationJSON{
		Location:              l.Name,
		Phase:                 string(l.Phase),
		ThermostatTopic:       l.ThermostatTopic,
		ThermostatTemperature: l.ThermostatTemperature,
		Calibration:           l.Calibration,
		Sensors:               l.Sensors,
		Average:               l.Average,
		LastOutcome:           string(l.LastOutcome),
		LastEvent:             formatTime(l.LastEventAt),
		LastAction:            formatTime(l.LastActionAt),
		Commands:              l.Commands,
	}
}

func buildInner(snap Snapshot) StatusInner {
	outcomes := make(map[string]int, len(snap.Counts.Outcomes))
	for k, v := range snap.Counts.Outcomes {
		outcomes[string(k)] = v
	}
	locations := make([]LocationJSON, 0, len(snap.Locations))
	for _, l := range snap.Locations {
		locations = append(locations, LocationToJSON(l))
	}

	return StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Events:      snap.Counts.Events,
			Dropped:     snap.Counts.Dropped,
			Commands:    snap.Counts.Commands,
			DataQuality: snap.Counts.DataQuality,
			Outcomes:    outcomes,
		},
		Locations: locations,
		Config: ConfigJSON{
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			Trigger:      snap.Config.Trigger,
			Step:         snap.Config.Step,
			Hysteresis:   snap.Config.Hysteresis,
			CooldownMs:   snap.Config.CooldownMs,
			RateLimit:    snap.Config.RateLimit,
			RateWindowMs: snap.Config.RateWindowMs,
			Store:        snap.Config.Store,
			Journal:      snap.Config.Journal,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
