// Package config loads the calibrator's startup configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/thermo-calibrator/internal/calibrator"
	"github.com/sweeney/thermo-calibrator/internal/logic"
	"github.com/sweeney/thermo-calibrator/internal/store"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendDynamo = "dynamodb"
)

var (
	ErrNoRules       = errors.New("no discovery rules configured")
	ErrBadStep       = errors.New("calibration step must be positive")
	ErrBadHysteresis = errors.New("hysteresis must be within [0,1]")
)

// DefaultRuleWeight applies to rules that do not set a weight.
const DefaultRuleWeight = 1.0

// Rule is one discovery rule as written in the file. A nil Weight means
// DefaultRuleWeight; an explicit 0 excludes the rule's sensors from averages.
type Rule struct {
	Pattern string   `yaml:"pattern"`
	Kind    string   `yaml:"kind"`
	Weight  *float64 `yaml:"weight"`
}

// DecayPoint is one control point of the decay curve.
type DecayPoint struct {
	AgeMinutes float64 `yaml:"age_minutes"`
	Weight     float64 `yaml:"weight"`
}

// Config is the full file layout.
type Config struct {
	Broker        string        `yaml:"broker"`
	ClientID      string        `yaml:"client_id"`
	Subscribe     []string      `yaml:"subscribe"`
	CommandSuffix string        `yaml:"command_suffix"`
	HTTP          string        `yaml:"http"`
	Heartbeat     time.Duration `yaml:"heartbeat"`

	Calibration struct {
		Step       float64 `yaml:"step"`
		Hysteresis float64 `yaml:"hysteresis"`
		Trigger    string  `yaml:"trigger"`
	} `yaml:"calibration"`

	Decay struct {
		Interpolate bool         `yaml:"interpolate"`
		Points      []DecayPoint `yaml:"points"`
	} `yaml:"decay"`

	Cooldown time.Duration `yaml:"cooldown"`

	RateLimit struct {
		Count  int           `yaml:"count"`
		Window time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`

	Discovery []Rule `yaml:"discovery"`

	Store struct {
		Backend   string `yaml:"backend"`
		Table     string `yaml:"table"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"store"`

	Journal struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"journal"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Broker = "tcp://192.168.1.200:1883"
	c.ClientID = "thermo-calibrator"
	c.Subscribe = []string{"zigbee2mqtt/+", "+"}
	c.CommandSuffix = calibrator.DefaultCommandSuffix
	c.HTTP = ":8080"
	c.Heartbeat = 15 * time.Minute

	c.Calibration.Step = 0.2
	c.Calibration.Hysteresis = 0.6
	c.Calibration.Trigger = string(calibrator.TriggerSensor)

	for _, p := range logic.DefaultDecayCurve().Points {
		c.Decay.Points = append(c.Decay.Points, DecayPoint{AgeMinutes: p.AgeMinutes, Weight: p.Weight})
	}

	c.Cooldown = 5 * time.Second
	c.RateLimit.Count = 6
	c.RateLimit.Window = time.Hour

	c.Discovery = []Rule{
		{Pattern: `^sensor\.temp_(.+)_2$`, Kind: string(logic.KindSensor), Weight: weight(0.5)},
		{Pattern: `^sensor\.temp_(.+)$`, Kind: string(logic.KindSensor)},
		{Pattern: `^zigbee2mqtt/thermostat_([^/]+)$`, Kind: string(logic.KindThermostat)},
		{Pattern: `^zigbee2mqtt/temp_([^/]+)$`, Kind: string(logic.KindSensor)},
	}

	c.Store.Backend = BackendMemory
	c.Store.KeyPrefix = store.DefaultKeyPrefix
	c.Journal.Topic = "thermo-calibrator.actions"
	return c
}

// Load reads path over the defaults. An empty path returns the defaults.
// Lists in the file replace the default lists entirely.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, c.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Parse decodes YAML into c and validates the result.
func Parse(data []byte, c *Config) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return c.Validate()
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if _, err := c.Rules(); err != nil {
		return err
	}
	if c.Calibration.Step <= 0 {
		return ErrBadStep
	}
	if c.Calibration.Hysteresis < 0 || c.Calibration.Hysteresis > 1 {
		return ErrBadHysteresis
	}
	switch calibrator.Trigger(c.Calibration.Trigger) {
	case calibrator.TriggerSensor, calibrator.TriggerThermostat:
	default:
		return fmt.Errorf("unknown trigger %q", c.Calibration.Trigger)
	}
	if err := c.Curve().Validate(); err != nil {
		return fmt.Errorf("decay: %w", err)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("negative cooldown %v", c.Cooldown)
	}
	if c.RateLimit.Count < 0 {
		return fmt.Errorf("negative rate limit count %d", c.RateLimit.Count)
	}
	if c.RateLimit.Count > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %v", c.RateLimit.Window)
	}
	if c.CommandSuffix == "" {
		return errors.New("command suffix must not be empty")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendDynamo:
		if c.Store.Table == "" {
			return errors.New("store.table is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if len(c.Journal.Brokers) > 0 && c.Journal.Topic == "" {
		return errors.New("journal.topic is required when journal brokers are set")
	}
	return nil
}

// Rules compiles the discovery rules in order.
func (c Config) Rules() ([]logic.Rule, error) {
	if len(c.Discovery) == 0 {
		return nil, ErrNoRules
	}
	rules := make([]logic.Rule, 0, len(c.Discovery))
	for i, r := range c.Discovery {
		w := DefaultRuleWeight
		if r.Weight != nil {
			w = *r.Weight
		}
		rule, err := logic.NewRule(r.Pattern, logic.DeviceKind(r.Kind), w)
		if err != nil {
			return nil, fmt.Errorf("discovery rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func weight(w float64) *float64 { return &w }

// Curve returns the configured decay curve.
func (c Config) Curve() logic.DecayCurve {
	curve := logic.DecayCurve{Interpolate: c.Decay.Interpolate}
	for _, p := range c.Decay.Points {
		curve.Points = append(curve.Points, logic.DecayPoint{AgeMinutes: p.AgeMinutes, Weight: p.Weight})
	}
	return curve
}

// Engine builds the calibration engine settings. Call Validate first.
func (c Config) Engine() (calibrator.Config, error) {
	rules, err := c.Rules()
	if err != nil {
		return calibrator.Config{}, err
	}
	return calibrator.Config{
		Rules: rules,
		Policy: logic.CalibrationPolicy{
			Step:       c.Calibration.Step,
			Hysteresis: c.Calibration.Hysteresis,
		},
		Curve: c.Curve(),
		Limiter: logic.Limiter{
			Cooldown: c.Cooldown,
			Limit:    c.RateLimit.Count,
			Window:   c.RateLimit.Window,
		},
		CommandSuffix: c.CommandSuffix,
		Trigger:       calibrator.Trigger(c.Calibration.Trigger),
	}, nil
}
