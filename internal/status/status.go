// Package status provides a thread-safe view of the calibrator for the HTTP
// server and the MQTT heartbeat. The Tracker is fed as a calibrator.Observer.
package status

import (
	"sort"
	"sync"
	"time"

	"github.com/sweeney/thermo-calibrator/internal/calibrator"
	"github.com/sweeney/thermo-calibrator/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	HeartbeatMs  int64
	Broker       string
	HTTPAddr     string
	Trigger      string
	Step         float64
	Hysteresis   float64
	CooldownMs   int64
	RateLimit    int
	RateWindowMs int64
	Store        string
	Journal      bool
}

// Counts tallies processed events since startup.
type Counts struct {
	Events      int
	Dropped     int
	Commands    int
	DataQuality int
	Outcomes    map[calibrator.Outcome]int
}

// Location is the last known view of one location.
type Location struct {
	Name            string
	Phase           logic.Phase
	ThermostatTopic string
	// Thermostat values are nil until the thermostat has reported.
	ThermostatTemperature *float64
	Calibration           *float64
	Sensors               int
	// Average is the last weighted sensor average, nil if none was computed.
	Average      *float64
	LastOutcome  calibrator.Outcome
	LastEventAt  time.Time
	LastActionAt time.Time
	Commands     int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Locations     []Location // sorted by name
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Location returns the named location from the snapshot.
func (s Snapshot) Location(name string) (Location, bool) {
	i := sort.Search(len(s.Locations), func(i int) bool { return s.Locations[i].Name >= name })
	if i < len(s.Locations) && s.Locations[i].Name == name {
		return s.Locations[i], true
	}
	return Location{}, false
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu        sync.RWMutex
	snap      Snapshot
	locations map[string]*Location
	now       func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Counts:    Counts{Outcomes: make(map[calibrator.Outcome]int)},
		},
		locations: make(map[string]*Location),
		now:       time.Now,
	}
}

// Observe records the outcome of one processed event.
func (t *Tracker) Observe(res calibrator.Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := &t.snap.Counts
	c.Events++
	c.Outcomes[res.Outcome]++
	if res.Outcome.Dropped() {
		c.Dropped++
	}
	if res.Command != nil {
		c.Commands++
	}
	if res.Location == "" || res.Outcome.Dropped() {
		return
	}

	loc, ok := t.locations[res.Location]
	if !ok {
		loc = &Location{Name: res.Location}
		t.locations[res.Location] = loc
	}
	st := res.State
	loc.Phase = st.Phase()
	loc.Sensors = len(st.Sensors)
	loc.LastOutcome = res.Outcome
	loc.LastEventAt = res.Time
	loc.LastActionAt = st.LastActionAt
	if th := st.Thermostat; th != nil {
		loc.ThermostatTopic = th.Topic
		temp := th.Temperature
		loc.ThermostatTemperature = &temp
	}
	if st.LastCalibration != nil {
		cal := *st.LastCalibration
		loc.Calibration = &cal
	}
	if res.Aggregate != nil && res.Aggregate.ValidCount > 0 {
		avg := res.Aggregate.Average
		loc.Average = &avg
	}
	if res.Command != nil {
		loc.Commands++
	}
}

// DataQuality counts unusable sensor payloads.
func (t *Tracker) DataQuality(identifier, location, problem string) {
	t.mu.Lock()
	t.snap.Counts.DataQuality++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counts.Outcomes = make(map[calibrator.Outcome]int, len(t.snap.Counts.Outcomes))
	for k, v := range t.snap.Counts.Outcomes {
		s.Counts.Outcomes[k] = v
	}
	s.Locations = make([]Location, 0, len(t.locations))
	for _, loc := range t.locations {
		s.Locations = append(s.Locations, *loc)
	}
	t.mu.RUnlock()

	sort.Slice(s.Locations, func(i, j int) bool { return s.Locations[i].Name < s.Locations[j].Name })
	s.Now = t.now()
	return s
}
