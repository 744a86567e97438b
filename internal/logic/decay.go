package logic

import (
	"errors"
	"fmt"
)

// DecayPoint is a control point of the time-decay curve.
type DecayPoint struct {
	AgeMinutes float64
	Weight     float64
}

// DecayCurve maps a reading's age to a weight in [0,1].
//
// In step mode a reading up to Points[i].AgeMinutes old gets Points[i].Weight
// (first tier that contains it). In interpolate mode weights are linearly
// interpolated between consecutive points and held at Points[0].Weight below
// the first point. Beyond the last point the weight is always 0.
type DecayCurve struct {
	Points      []DecayPoint
	Interpolate bool
}

var errEmptyCurve = errors.New("decay curve has no points")

// DefaultDecayCurve returns the tiered curve: fresh, normal, old, very old.
func DefaultDecayCurve() DecayCurve {
	return DecayCurve{Points: []DecayPoint{
		{AgeMinutes: 5, Weight: 1.0},
		{AgeMinutes: 14, Weight: 0.8},
		{AgeMinutes: 22, Weight: 0.4},
		{AgeMinutes: 30, Weight: 0.1},
	}}
}

// Validate checks the curve is usable and non-increasing.
func (c DecayCurve) Validate() error {
	if len(c.Points) == 0 {
		return errEmptyCurve
	}
	for i, p := range c.Points {
		if p.AgeMinutes < 0 {
			return fmt.Errorf("decay point %d: negative age %v", i, p.AgeMinutes)
		}
		if p.Weight < 0 || p.Weight > 1 {
			return fmt.Errorf("decay point %d: weight %v outside [0,1]", i, p.Weight)
		}
		if i == 0 {
			continue
		}
		prev := c.Points[i-1]
		if p.AgeMinutes <= prev.AgeMinutes {
			return fmt.Errorf("decay point %d: age %v not after %v", i, p.AgeMinutes, prev.AgeMinutes)
		}
		if p.Weight > prev.Weight {
			return fmt.Errorf("decay point %d: weight %v increases from %v", i, p.Weight, prev.Weight)
		}
	}
	return nil
}

// MaxAge returns the age in minutes beyond which every reading weighs 0.
func (c DecayCurve) MaxAge() float64 {
	if len(c.Points) == 0 {
		return 0
	}
	return c.Points[len(c.Points)-1].AgeMinutes
}

// Weight returns the time weight for a reading ageMinutes old.
// Negative ages (clock skew) count as fresh.
func (c DecayCurve) Weight(ageMinutes float64) float64 {
	if len(c.Points) == 0 {
		return 0
	}
	if ageMinutes < 0 {
		ageMinutes = 0
	}
	if ageMinutes > c.MaxAge() {
		return 0
	}

	if !c.Interpolate {
		for _, p := range c.Points {
			if ageMinutes <= p.AgeMinutes {
				return p.Weight
			}
		}
		return 0
	}

	first := c.Points[0]
	if ageMinutes <= first.AgeMinutes {
		return first.Weight
	}
	for i := 1; i < len(c.Points); i++ {
		lo, hi := c.Points[i-1], c.Points[i]
		if ageMinutes <= hi.AgeMinutes {
			frac := (ageMinutes - lo.AgeMinutes) / (hi.AgeMinutes - lo.AgeMinutes)
			return lo.Weight + frac*(hi.Weight-lo.Weight)
		}
	}
	return 0
}
