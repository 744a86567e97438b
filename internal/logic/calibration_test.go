package logic

import (
	"math"
	"testing"
)

func TestStepDecimals(t *testing.T) {
	tests := []struct {
		step float64
		want int
	}{
		{0.2, 1},
		{0.5, 1},
		{0.01, 2},
		{0.25, 2},
		{1, 0},
		{2, 0},
	}
	for _, tt := range tests {
		if got := StepDecimals(tt.step); got != tt.want {
			t.Errorf("StepDecimals(%v): got %d, want %d", tt.step, got, tt.want)
		}
	}
}

func TestRoundToStep(t *testing.T) {
	tests := []struct {
		value float64
		step  float64
		want  float64
	}{
		{1.6667, 0.2, 1.6},
		{1.7692, 0.2, 1.8},
		{0.1, 0.2, 0.2},
		{-0.1, 0.2, 0},
		{-0.3, 0.2, -0.2},
		{-0.5, 0.2, -0.4},
		{0.3, 0.2, 0.4},
		{-0.05, 0.2, 0},
		{2.34, 0.1, 2.3},
		{1.005, 0.01, 1.0},
		{0.3, 0.01, 0.3},
		{3.7, 1, 4},
		{-2.64, 0.5, -2.5},
		{-2.75, 0.5, -2.5},
		{-0.5, 1, 0},
		{-1.5, 1, -1},
	}
	for _, tt := range tests {
		if got := RoundToStep(tt.value, tt.step); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("RoundToStep(%v, %v): got %v, want %v", tt.value, tt.step, got, tt.want)
		}
	}
}

func TestRoundToStepNoFloatArtifacts(t *testing.T) {
	// 0.1+0.2 style artifacts must not leak into the published offset.
	got := RoundToStep(0.6000000000000001, 0.2)
	if got != 0.6 {
		t.Errorf("got %v, want exactly 0.6", got)
	}
	got = RoundToStep(0.7, 0.1)
	if got != 0.7 {
		t.Errorf("got %v, want exactly 0.7", got)
	}
}

func TestRoundToStepIdempotent(t *testing.T) {
	for _, step := range []float64{0.01, 0.1, 0.2, 0.25, 0.5, 1} {
		for v := -5.0; v <= 5.0; v += 0.037 {
			once := RoundToStep(v, step)
			twice := RoundToStep(once, step)
			if once != twice {
				t.Fatalf("step %v value %v: %v != %v", step, v, once, twice)
			}
		}
	}
}

func TestRoundToStepIsMultipleOfStep(t *testing.T) {
	step := 0.2
	for v := -3.0; v <= 3.0; v += 0.013 {
		got := RoundToStep(v, step)
		k := got / step
		if math.Abs(k-math.Round(k)) > 1e-9 {
			t.Fatalf("RoundToStep(%v) = %v is not a multiple of %v", v, got, step)
		}
	}
}

func TestDecideApply(t *testing.T) {
	p := CalibrationPolicy{Step: 0.2, Hysteresis: 0.6}
	th := Thermostat{Topic: "zigbee2mqtt/thermostat_office", Temperature: 19, Calibration: 0}

	d := p.Decide(th, 20.6667, 0)
	if !d.Apply {
		t.Fatalf("expected apply, got %s", d.Reason)
	}
	if d.Rounded != 1.6 {
		t.Errorf("rounded: got %v, want 1.6", d.Rounded)
	}
	if d.RawTemperature != 19 {
		t.Errorf("raw: got %v, want 19", d.RawTemperature)
	}
}

func TestDecideUsesRawTemperature(t *testing.T) {
	p := CalibrationPolicy{Step: 0.2, Hysteresis: 0.6}
	// Thermostat already applies +1.0: raw internal is 19.
	th := Thermostat{Temperature: 20, Calibration: 1.0}

	d := p.Decide(th, 20.7692, 1.0)
	if d.RawTemperature != 19 {
		t.Errorf("raw: got %v, want 19", d.RawTemperature)
	}
	if d.Rounded != 1.8 {
		t.Errorf("rounded: got %v, want 1.8", d.Rounded)
	}
	if !d.Apply {
		t.Errorf("expected apply, got %s", d.Reason)
	}
}

func TestDecideUnchanged(t *testing.T) {
	p := CalibrationPolicy{Step: 0.2, Hysteresis: 0.6}
	// Echo: thermostat reports the calibration we just applied.
	th := Thermostat{Temperature: 20.6, Calibration: 1.6}

	d := p.Decide(th, 20.6667, 1.6)
	if d.Apply {
		t.Fatal("expected no action")
	}
	if d.Reason != ReasonUnchanged {
		t.Errorf("reason: got %s, want %s", d.Reason, ReasonUnchanged)
	}
}

func TestDecideDeadBand(t *testing.T) {
	p := CalibrationPolicy{Step: 0.2, Hysteresis: 0.6}
	th := Thermostat{Temperature: 19, Calibration: 0}

	// exact = 1.71, rounds to 1.8 but is only 0.11 from 1.6 (dead-band 0.12).
	d := p.Decide(th, 20.71, 1.6)
	if d.Rounded != 1.8 {
		t.Fatalf("rounded: got %v, want 1.8", d.Rounded)
	}
	if d.Apply {
		t.Fatal("expected dead-band to suppress action")
	}
	if d.Reason != ReasonDeadBand {
		t.Errorf("reason: got %s, want %s", d.Reason, ReasonDeadBand)
	}
}

func TestDecideZeroHysteresis(t *testing.T) {
	p := CalibrationPolicy{Step: 0.2, Hysteresis: 0}
	th := Thermostat{Temperature: 19, Calibration: 0}

	d := p.Decide(th, 20.71, 1.6)
	if !d.Apply {
		t.Errorf("expected apply without dead-band, got %s", d.Reason)
	}
}
