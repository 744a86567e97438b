// Package calibrator turns device reports into thermostat calibration commands.
//
// The Engine owns event validation, per-location serialization and the
// read-modify-write cycle against a Store. All arithmetic lives in
// internal/logic.
package calibrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sweeney/thermo-calibrator/internal/logic"
)

// Store persists one LocationState per location id.
type Store interface {
	// Get returns the stored state, or an empty state if none exists.
	Get(ctx context.Context, location string) (logic.LocationState, error)
	// Put replaces the stored state.
	Put(ctx context.Context, location string, state logic.LocationState) error
}

// Trigger selects which device report starts a recalculation.
type Trigger string

const (
	// TriggerSensor recalculates on every accepted sensor reading.
	TriggerSensor Trigger = "sensor"
	// TriggerThermostat recalculates on thermostat reports, ignoring
	// reports inside the cooldown as echoes of our own command.
	TriggerThermostat Trigger = "thermostat"
)

// DefaultCommandSuffix addresses a command to a zigbee2mqtt device.
const DefaultCommandSuffix = "/set"

// Config holds the engine settings, fixed at startup.
type Config struct {
	Rules         []logic.Rule
	Policy        logic.CalibrationPolicy
	Curve         logic.DecayCurve
	Limiter       logic.Limiter
	CommandSuffix string
	Trigger       Trigger
}

// Engine processes device events one location at a time.
type Engine struct {
	cfg        Config
	classifier *logic.Classifier
	store      Store
	observer   Observer
	now        func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Engine. A nil observer discards results; a nil clock uses time.Now.
func New(cfg Config, store Store, observer Observer, now func() time.Time) *Engine {
	if cfg.CommandSuffix == "" {
		cfg.CommandSuffix = DefaultCommandSuffix
	}
	if cfg.Trigger == "" {
		cfg.Trigger = TriggerSensor
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		cfg:        cfg,
		classifier: logic.NewClassifier(cfg.Rules),
		store:      store,
		observer:   observer,
		now:        now,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Process handles one event to completion. A non-nil Result.Command must be
// sent to the thermostat. Errors are store failures only; invalid events are
// reported through Result.Outcome.
func (e *Engine) Process(ctx context.Context, ev Event) (Result, error) {
	res := Result{Identifier: ev.Identifier, Time: ev.Time}
	if res.Time.IsZero() {
		res.Time = e.now()
	}

	if strings.HasSuffix(ev.Identifier, e.cfg.CommandSuffix) {
		res.Outcome = OutcomeCommandTopic
		e.observer.Observe(res)
		return res, nil
	}

	class, ok := e.classifier.Classify(ev.Identifier)
	if !ok {
		res.Outcome = OutcomeUnclassified
		e.observer.Observe(res)
		return res, nil
	}
	res.Location = class.Location
	res.Kind = class.Kind

	unlock := e.lock(class.Location)
	defer unlock()

	stored, err := e.store.Get(ctx, class.Location)
	if err != nil {
		return res, fmt.Errorf("load %s: %w", class.Location, err)
	}
	state := stored.Clone()

	// A repeated marker only drops reports that carry nothing usable, such as
	// availability or link-quality updates republished with the old marker.
	if m := ev.Payload.LastSeen; m != "" && ev.DecodeErr == nil && state.Markers[ev.Identifier] == m &&
		!hasReading(class.Kind, ev.Payload) {
		res.Outcome = OutcomeDuplicate
		e.observer.Observe(res)
		return res, nil
	}

	trigger, problem := e.ingest(&state, class, ev, res.Time)
	if problem != "" {
		res.Outcome = OutcomeMalformed
		if class.Kind == logic.KindSensor {
			e.observer.DataQuality(ev.Identifier, class.Location, problem)
		}
		e.observer.Observe(res)
		return res, nil
	}

	switch {
	case !trigger:
		res.Outcome = OutcomeIngested
	case e.cfg.Trigger == TriggerThermostat && e.cfg.Limiter.InCooldown(state.LastActionAt, res.Time):
		res.Outcome = OutcomeEcho
	default:
		e.calculate(&state, &res)
	}

	if err := e.store.Put(ctx, class.Location, state); err != nil {
		return Result{Identifier: res.Identifier, Location: res.Location, Kind: res.Kind, Time: res.Time},
			fmt.Errorf("save %s: %w", class.Location, err)
	}
	res.State = state
	e.observer.Observe(res)
	return res, nil
}

// ingest applies the event to state. It returns whether the event should
// trigger a recalculation, or a non-empty problem if the payload is unusable.
func (e *Engine) ingest(state *logic.LocationState, class logic.Classification, ev Event, now time.Time) (bool, string) {
	if ev.DecodeErr != nil {
		return false, fmt.Sprintf("undecodable payload: %v", ev.DecodeErr)
	}
	p := ev.Payload

	switch class.Kind {
	case logic.KindSensor:
		if p.Temperature == nil {
			return false, missingOrInvalid(p, FieldTemperature)
		}
		if state.Sensors == nil {
			state.Sensors = make(map[string]logic.Reading)
		}
		state.Sensors[ev.Identifier] = logic.Reading{
			Temperature: *p.Temperature,
			ObservedAt:  now,
			BaseWeight:  class.BaseWeight,
		}

	case logic.KindThermostat:
		if p.LocalTemperature == nil {
			return false, missingOrInvalid(p, FieldLocalTemperature)
		}
		var cal float64
		if p.LocalCalibration != nil {
			cal = *p.LocalCalibration
		}
		state.Thermostat = &logic.Thermostat{
			Topic:       ev.Identifier,
			Temperature: *p.LocalTemperature,
			Calibration: cal,
			ObservedAt:  now,
		}
		// The device is authoritative once it reports.
		state.LastCalibration = &cal

	default:
		return false, fmt.Sprintf("unsupported device kind %q", class.Kind)
	}

	if p.LastSeen != "" {
		if state.Markers == nil {
			state.Markers = make(map[string]string)
		}
		state.Markers[ev.Identifier] = p.LastSeen
	}

	switch e.cfg.Trigger {
	case TriggerThermostat:
		return class.Kind == logic.KindThermostat, ""
	default:
		return class.Kind == logic.KindSensor, ""
	}
}

// hasReading reports whether p carries the value its device kind requires.
func hasReading(kind logic.DeviceKind, p Payload) bool {
	switch kind {
	case logic.KindSensor:
		return p.Temperature != nil
	case logic.KindThermostat:
		return p.LocalTemperature != nil
	}
	return false
}

func missingOrInvalid(p Payload, field string) string {
	for _, f := range p.Invalid {
		if f == field {
			return fmt.Sprintf("non-numeric %s", field)
		}
	}
	return fmt.Sprintf("missing %s", field)
}

// calculate aggregates readings, decides, and gates the action.
func (e *Engine) calculate(state *logic.LocationState, res *Result) {
	if state.Thermostat == nil {
		res.Outcome = OutcomeAwaitingThermostat
		return
	}

	agg := logic.AggregateReadings(state.Sensors, res.Time, e.cfg.Curve)
	state.Sensors = agg.Retained
	res.Aggregate = &agg
	if agg.ValidCount == 0 {
		res.Outcome = OutcomeNoReadings
		return
	}

	d := e.cfg.Policy.Decide(*state.Thermostat, agg.Average, state.PreviousCalibration())
	res.Decision = &d
	switch d.Reason {
	case logic.ReasonUnchanged:
		res.Outcome = OutcomeUnchanged
		return
	case logic.ReasonDeadBand:
		res.Outcome = OutcomeDeadBand
		return
	}

	verdict, actions := e.cfg.Limiter.Permit(state.LastActionAt, state.Actions, res.Time)
	state.Actions = actions
	switch verdict {
	case logic.VerdictCooldown:
		res.Outcome = OutcomeCooldown
		return
	case logic.VerdictRateLimited:
		res.Outcome = OutcomeRateLimited
		return
	}

	// Recorded before the thermostat acknowledges, so readings that arrive
	// ahead of its echo compare against the commanded value.
	cal := d.Rounded
	state.LastCalibration = &cal
	state.LastActionAt = res.Time
	res.Outcome = OutcomeCommanded
	res.Command = &logic.Command{
		Topic:       state.Thermostat.Topic + e.cfg.CommandSuffix,
		Calibration: cal,
	}
}

// lock serializes processing per location.
func (e *Engine) lock(location string) func() {
	e.mu.Lock()
	l, ok := e.locks[location]
	if !ok {
		l = &sync.Mutex{}
		e.locks[location] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Classifier exposes the engine's topic classifier.
func (e *Engine) Classifier() *logic.Classifier {
	return e.classifier
}
