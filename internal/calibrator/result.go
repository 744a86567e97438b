package calibrator

import (
	"time"

	"github.com/sweeney/thermo-calibrator/internal/logic"
)

// Outcome says what happened to an event.
type Outcome string

const (
	// Dropped before touching state.
	OutcomeCommandTopic Outcome = "COMMAND_TOPIC"
	OutcomeUnclassified Outcome = "UNCLASSIFIED"
	OutcomeMalformed    Outcome = "MALFORMED"
	OutcomeDuplicate    Outcome = "DUPLICATE"

	// State updated, no calculation.
	OutcomeIngested Outcome = "INGESTED"
	OutcomeEcho     Outcome = "ECHO"

	// Calculation ran (or could not run), no command.
	OutcomeAwaitingThermostat Outcome = "AWAITING_THERMOSTAT"
	OutcomeNoReadings         Outcome = "NO_READINGS"
	OutcomeUnchanged          Outcome = "UNCHANGED"
	OutcomeDeadBand           Outcome = "DEAD_BAND"
	OutcomeCooldown           Outcome = "COOLDOWN"
	OutcomeRateLimited        Outcome = "RATE_LIMITED"

	OutcomeCommanded Outcome = "COMMANDED"
)

// Dropped reports whether the event was discarded without updating state.
func (o Outcome) Dropped() bool {
	switch o {
	case OutcomeCommandTopic, OutcomeUnclassified, OutcomeMalformed, OutcomeDuplicate:
		return true
	}
	return false
}

// Result describes the processing of one event.
type Result struct {
	Identifier string
	Location   string
	Kind       logic.DeviceKind
	Time       time.Time
	Outcome    Outcome

	// Set when a calculation ran.
	Aggregate *logic.Aggregate
	Decision  *logic.Decision

	// Command is non-nil only for OutcomeCommanded.
	Command *logic.Command

	// State is the persisted state after the event; zero for dropped events.
	State logic.LocationState
}

// Observer receives every processed event. Implementations must be safe for
// concurrent use when the engine is driven from several goroutines.
type Observer interface {
	Observe(res Result)
	// DataQuality reports a sensor payload that could not be used.
	DataQuality(identifier, location, problem string)
}

type nopObserver struct{}

func (nopObserver) Observe(Result)                     {}
func (nopObserver) DataQuality(string, string, string) {}

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) Observe(res Result) {
	for _, obs := range o {
		obs.Observe(res)
	}
}

func (o Observers) DataQuality(identifier, location, problem string) {
	for _, obs := range o {
		obs.DataQuality(identifier, location, problem)
	}
}
