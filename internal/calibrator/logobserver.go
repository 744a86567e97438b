package calibrator

import (
	"log"
)

// LogObserver writes actions and data-quality warnings to a logger.
// With Debug set it also traces classification, aggregation and decisions.
type LogObserver struct {
	Logger *log.Logger
	Debug  bool
}

// NewLogObserver creates a LogObserver; a nil logger uses the standard logger.
func NewLogObserver(l *log.Logger, debug bool) *LogObserver {
	if l == nil {
		l = log.Default()
	}
	return &LogObserver{Logger: l, Debug: debug}
}

func (o *LogObserver) Observe(res Result) {
	if res.Command != nil {
		var avg, thermo float64
		if res.Aggregate != nil {
			avg = res.Aggregate.Average
		}
		if res.State.Thermostat != nil {
			thermo = res.State.Thermostat.Temperature
		}
		prev := 0.0
		if res.Decision != nil {
			prev = res.Decision.Previous
		}
		o.Logger.Printf("action: %s calibrating %s -> %s (avg=%.2f thermo=%s)",
			res.Location, FormatFloat(prev), FormatFloat(res.Command.Calibration), avg, FormatFloat(thermo))
	}
	if !o.Debug {
		return
	}

	switch res.Outcome {
	case OutcomeCommandTopic:
		o.Logger.Printf("debug: ignoring command topic %s", res.Identifier)
		return
	case OutcomeUnclassified:
		o.Logger.Printf("debug: %s did not match any discovery rule", res.Identifier)
		return
	case OutcomeDuplicate:
		o.Logger.Printf("debug: duplicate message from %s", res.Identifier)
		return
	}

	o.Logger.Printf("debug: %s -> location=%s kind=%s outcome=%s", res.Identifier, res.Location, res.Kind, res.Outcome)
	if res.Aggregate != nil {
		for _, c := range res.Aggregate.Contributions {
			if c.Dropped {
				o.Logger.Printf("debug:  - dropping %s (age %.1fm)", c.Sensor, c.AgeMinutes)
				continue
			}
			o.Logger.Printf("debug:  + %s temp=%s age=%.1fm time=x%s base=x%s final=%.2f",
				c.Sensor, FormatFloat(c.Temperature), c.AgeMinutes, FormatFloat(c.TimeWeight), FormatFloat(c.BaseWeight), c.FinalWeight)
		}
	}
	if d := res.Decision; d != nil {
		o.Logger.Printf("debug:  raw=%.2f exact=%.2f rounded=%s previous=%s (%s)",
			d.RawTemperature, d.Exact, FormatFloat(d.Rounded), FormatFloat(d.Previous), d.Reason)
	}
}

func (o *LogObserver) DataQuality(identifier, location, problem string) {
	o.Logger.Printf("warning: sensor %s (%s): %s", identifier, location, problem)
}
