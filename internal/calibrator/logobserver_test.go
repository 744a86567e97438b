package calibrator

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/sweeney/thermo-calibrator/internal/logic"
)

func commandedResult() Result {
	return Result{
		Identifier: "sensor.temp_office",
		Location:   "office",
		Kind:       logic.KindSensor,
		Outcome:    OutcomeCommanded,
		Aggregate: &logic.Aggregate{Average: 20.6667, ValidCount: 2, Contributions: []logic.Contribution{
			{Sensor: "sensor.temp_office", Temperature: 20, TimeWeight: 1, BaseWeight: 1, FinalWeight: 1},
			{Sensor: "sensor.temp_office_old", AgeMinutes: 40, Dropped: true},
		}},
		Decision: &logic.Decision{RawTemperature: 19, Exact: 1.6667, Rounded: 1.6, Previous: 0, Apply: true, Reason: logic.ReasonApply},
		Command:  &logic.Command{Topic: "zigbee2mqtt/thermostat_office/set", Calibration: 1.6},
		State:    logic.LocationState{Thermostat: &logic.Thermostat{Temperature: 19}},
	}
}

func TestLogObserverLogsActions(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(log.New(&buf, "", 0), false)

	o.Observe(commandedResult())
	o.Observe(Result{Identifier: "light.kitchen", Outcome: OutcomeUnclassified})

	out := buf.String()
	if !strings.Contains(out, "action: office calibrating 0 -> 1.6 (avg=20.67 thermo=19)") {
		t.Errorf("missing action line:\n%s", out)
	}
	if strings.Contains(out, "debug:") {
		t.Errorf("unexpected debug output without debug:\n%s", out)
	}
}

func TestLogObserverDebugTrace(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(log.New(&buf, "", 0), true)

	o.Observe(commandedResult())
	o.Observe(Result{Identifier: "light.kitchen", Outcome: OutcomeUnclassified})

	out := buf.String()
	for _, want := range []string{
		"+ sensor.temp_office temp=20",
		"- dropping sensor.temp_office_old (age 40.0m)",
		"rounded=1.6 previous=0 (APPLY)",
		"light.kitchen did not match any discovery rule",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestLogObserverDataQuality(t *testing.T) {
	var buf bytes.Buffer
	o := NewLogObserver(log.New(&buf, "", 0), false)
	o.DataQuality("sensor.temp_office", "office", "missing temperature")
	if !strings.Contains(buf.String(), "warning: sensor sensor.temp_office (office): missing temperature") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestObserversFanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	obs := Observers{a, b}
	obs.Observe(Result{Outcome: OutcomeIngested})
	obs.DataQuality("x", "y", "z")
	if len(a.results) != 1 || len(b.results) != 1 {
		t.Error("results not fanned out")
	}
	if len(a.warnings) != 1 || len(b.warnings) != 1 {
		t.Error("warnings not fanned out")
	}
}

func TestOutcomeDropped(t *testing.T) {
	for _, o := range []Outcome{OutcomeCommandTopic, OutcomeUnclassified, OutcomeMalformed, OutcomeDuplicate} {
		if !o.Dropped() {
			t.Errorf("%s should be dropped", o)
		}
	}
	for _, o := range []Outcome{OutcomeIngested, OutcomeCommanded, OutcomeCooldown, OutcomeNoReadings} {
		if o.Dropped() {
			t.Errorf("%s should not be dropped", o)
		}
	}
}
