package logic

import (
	"sort"
	"time"
)

// Contribution describes how one reading fed into an aggregate.
type Contribution struct {
	Sensor      string
	Temperature float64
	AgeMinutes  float64
	TimeWeight  float64
	BaseWeight  float64
	FinalWeight float64
	Dropped     bool
}

// Aggregate is the time-weighted average over a location's readings.
type Aggregate struct {
	// Average is only meaningful when ValidCount > 0.
	Average    float64
	ValidCount int
	// Retained holds only the readings that still carry weight.
	Retained map[string]Reading
	// Contributions lists every reading considered, sorted by sensor id.
	Contributions []Contribution
}

// AggregateReadings computes the weighted average of readings at now.
// Readings whose final weight is <= 0 are excluded and left out of Retained.
func AggregateReadings(readings map[string]Reading, now time.Time, curve DecayCurve) Aggregate {
	ids := make([]string, 0, len(readings))
	for id := range readings {
		ids = append(ids, id)
	}
	// Sorted so the floating-point sum is deterministic.
	sort.Strings(ids)

	agg := Aggregate{Retained: make(map[string]Reading, len(readings))}
	var sumTemp, sumWeight float64

	for _, id := range ids {
		r := readings[id]
		age := now.Sub(r.ObservedAt).Minutes()
		tw := curve.Weight(age)
		final := r.BaseWeight * tw

		c := Contribution{
			Sensor:      id,
			Temperature: r.Temperature,
			AgeMinutes:  age,
			TimeWeight:  tw,
			BaseWeight:  r.BaseWeight,
			FinalWeight: final,
		}
		if final <= 0 {
			c.Dropped = true
			agg.Contributions = append(agg.Contributions, c)
			continue
		}
		agg.Contributions = append(agg.Contributions, c)
		agg.Retained[id] = r
		sumTemp += r.Temperature * final
		sumWeight += final
		agg.ValidCount++
	}

	if sumWeight <= 0 {
		agg.ValidCount = 0
		return agg
	}
	agg.Average = sumTemp / sumWeight
	return agg
}
