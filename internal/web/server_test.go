package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/thermo-calibrator/internal/calibrator"
	"github.com/sweeney/thermo-calibrator/internal/logic"
	"github.com/sweeney/thermo-calibrator/internal/metrics"
	"github.com/sweeney/thermo-calibrator/internal/status"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*httptest.Server, *status.Tracker, *metrics.Metrics) {
	t.Helper()
	cfg := status.Config{
		HeartbeatMs: 900000,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
		Trigger:     "sensor",
		Step:        0.2,
		Hysteresis:  0.6,
		Store:       "memory",
	}
	tr := status.NewTracker(t0, cfg)
	m := metrics.New()
	srv := New(":0", tr, m, nil)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, tr, m
}

func observeOffice(obs calibrator.Observer) {
	cal := 1.6
	obs.Observe(calibrator.Result{
		Identifier: "zigbee2mqtt/temp_office",
		Location:   "office",
		Kind:       logic.KindSensor,
		Time:       t0,
		Outcome:    calibrator.OutcomeCommanded,
		Aggregate:  &logic.Aggregate{Average: 20.6667, ValidCount: 2},
		Command:    &logic.Command{Topic: "zigbee2mqtt/thermostat_office/set", Calibration: cal},
		State: logic.LocationState{
			Thermostat:      &logic.Thermostat{Topic: "zigbee2mqtt/thermostat_office", Temperature: 20.3, Calibration: 1.2},
			Sensors:         map[string]logic.Reading{"zigbee2mqtt/temp_office": {Temperature: 20.5, ObservedAt: t0, BaseWeight: 1}},
			LastCalibration: &cal,
			LastActionAt:    t0,
		},
	})
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	observeOffice(tr)
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q, want tcp://192.168.1.200:1883", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Commands != 1 {
		t.Errorf("Counts.Commands: got %d, want 1", sj.Status.Counts.Commands)
	}
	if len(sj.Status.Locations) != 1 || sj.Status.Locations[0].Location != "office" {
		t.Fatalf("Locations: got %+v", sj.Status.Locations)
	}
	if sj.Status.Config.Step != 0.2 {
		t.Errorf("Config.Step: got %v, want 0.2", sj.Status.Config.Step)
	}
}

func TestJSONNetworkInfo(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	tr.SetNetwork(&status.NetworkInfo{
		Type:   "wifi",
		IP:     "192.168.1.42",
		Status: "connected",
		SSID:   "MyNet",
	})

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	var sj status.StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)

	if sj.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if sj.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", sj.Status.Network.IP)
	}
}

func TestLocationEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	observeOffice(tr)

	resp, err := http.Get(ts.URL + "/locations/office")
	if err != nil {
		t.Fatalf("GET /locations/office: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	var loc status.LocationJSON
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if loc.Location != "office" || loc.Phase != "READY" {
		t.Errorf("location: got %+v", loc)
	}
	if loc.Calibration == nil || *loc.Calibration != 1.6 {
		t.Errorf("calibration: got %v", loc.Calibration)
	}
	if loc.ThermostatTopic != "zigbee2mqtt/thermostat_office" {
		t.Errorf("thermostat topic: got %q", loc.ThermostatTopic)
	}
}

func TestLocationEndpointUnknown(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/locations/garage")
	if err != nil {
		t.Fatalf("GET /locations/garage: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr, _ := newTestServer(t)
	observeOffice(tr)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{`<a href="/locations/office">office</a>`, "READY", "20.67", "1.6"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestHTMLEndpointNoLocations(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "No locations seen yet.") {
		t.Error("expected empty-state message")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, m := newTestServer(t)
	observeOffice(m)

	http.Get(ts.URL + "/index.json")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`thermo_calibrator_commands_total{location="office"} 1`,
		`thermo_calibrator_http_requests_total{route="/index.json",status="200"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/index.json", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	srv := New(":0", status.NewTracker(t0, status.Config{}), nil, &buf)
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	resp.Body.Close()

	if !strings.Contains(buf.String(), `"GET /index.json HTTP/1.1" 200`) {
		t.Errorf("access log: got %q", buf.String())
	}
}

func TestMetricsDisabled(t *testing.T) {
	srv := New(":0", status.NewTracker(t0, status.Config{}), nil, nil)
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr, _ := newTestServer(t)

	resp1, _ := http.Get(ts.URL + "/index.json")
	var sj1 status.StatusJSON
	json.NewDecoder(resp1.Body).Decode(&sj1)
	resp1.Body.Close()
	if len(sj1.Status.Locations) != 0 {
		t.Error("expected no locations initially")
	}

	observeOffice(tr)
	tr.SetMQTTConnected(true)

	resp2, _ := http.Get(ts.URL + "/index.json")
	var sj2 status.StatusJSON
	json.NewDecoder(resp2.Body).Decode(&sj2)
	resp2.Body.Close()

	if len(sj2.Status.Locations) != 1 {
		t.Error("expected one location after update")
	}
	if !sj2.Status.MQTT.Connected {
		t.Error("expected MQTT connected after update")
	}
}
