package logic

import (
	"math"
	"strconv"
	"strings"
)

// epsilon absorbs binary representation noise when comparing offsets.
const epsilon = 1e-9

// maxDecimals bounds the fixed representation of very fine steps.
const maxDecimals = 10

// StepDecimals returns how many decimal places represent step exactly
// (2 for 0.01, 1 for 0.2, 0 for 1).
func StepDecimals(step float64) int {
	s := strconv.FormatFloat(step, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	if n := len(s) - i - 1; n < maxDecimals {
		return n
	}
	return maxDecimals
}

// RoundToStep rounds value to the nearest multiple of step, halves toward
// positive infinity, and fixes the result to the step's decimal places.
func RoundToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	inverse := 1 / step
	rounded := math.Floor(value*inverse+0.5) / inverse
	return fixDecimals(rounded, StepDecimals(step))
}

func fixDecimals(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	out := math.Round(v*p) / p
	if out == 0 {
		// Drop negative zero.
		return 0
	}
	return out
}

// Reason explains a decision.
type Reason string

const (
	ReasonApply     Reason = "APPLY"
	ReasonUnchanged Reason = "UNCHANGED"
	ReasonDeadBand  Reason = "DEAD_BAND"
)

// Decision is the outcome of comparing a new calibration with the previous one.
type Decision struct {
	RawTemperature float64
	Exact          float64
	Rounded        float64
	Previous       float64
	Apply          bool
	Reason         Reason
}

// CalibrationPolicy holds the rounding and dead-band settings.
type CalibrationPolicy struct {
	Step float64
	// Hysteresis is the dead-band as a fraction of Step, in [0,1].
	Hysteresis float64
}

// Decide computes the calibration that makes th read average and reports
// whether it differs enough from previous to act on.
func (p CalibrationPolicy) Decide(th Thermostat, average, previous float64) Decision {
	raw := th.RawTemperature()
	exact := average - raw
	d := Decision{
		RawTemperature: raw,
		Exact:          exact,
		Rounded:        RoundToStep(exact, p.Step),
		Previous:       previous,
	}

	if math.Abs(d.Rounded-previous) < epsilon {
		d.Reason = ReasonUnchanged
		return d
	}
	if math.Abs(exact-previous) <= p.Step*p.Hysteresis+epsilon {
		d.Reason = ReasonDeadBand
		return d
	}
	d.Apply = true
	d.Reason = ReasonApply
	return d
}
