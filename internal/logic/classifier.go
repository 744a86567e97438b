package logic

import (
	"fmt"
	"regexp"
)

// Rule maps identifiers matching Pattern to a location and device kind.
// The pattern's single capture group is the location id.
type Rule struct {
	Pattern    *regexp.Regexp
	Kind       DeviceKind
	BaseWeight float64
}

// NewRule compiles pattern into a Rule. A zero weight is kept, so the
// rule's sensors never contribute to an average.
func NewRule(pattern string, kind DeviceKind, weight float64) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("compile %q: %w", pattern, err)
	}
	if re.NumSubexp() != 1 {
		return Rule{}, fmt.Errorf("pattern %q: want exactly one capture group, got %d", pattern, re.NumSubexp())
	}
	switch kind {
	case KindSensor, KindThermostat:
	default:
		return Rule{}, fmt.Errorf("pattern %q: unknown device kind %q", pattern, kind)
	}
	if weight < 0 {
		return Rule{}, fmt.Errorf("pattern %q: negative weight %v", pattern, weight)
	}
	return Rule{Pattern: re, Kind: kind, BaseWeight: weight}, nil
}

// Classification is the result of a successful match.
type Classification struct {
	Location   string
	Kind       DeviceKind
	BaseWeight float64
}

// Classifier evaluates rules in order; the first match wins.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier over an ordered rule list.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Classify returns the first rule's classification for identifier.
// ok is false when no rule matches or the captured location is empty.
func (c *Classifier) Classify(identifier string) (Classification, bool) {
	if identifier == "" {
		return Classification{}, false
	}
	for _, r := range c.rules {
		m := r.Pattern.FindStringSubmatch(identifier)
		if m == nil {
			continue
		}
		if m[1] == "" {
			return Classification{}, false
		}
		return Classification{Location: m[1], Kind: r.Kind, BaseWeight: r.BaseWeight}, true
	}
	return Classification{}, false
}

// Rules returns the configured rules in evaluation order.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}
