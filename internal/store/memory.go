// Package store provides LocationState persistence for the calibration engine.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sweeney/thermo-calibrator/internal/logic"
)

// DefaultKeyPrefix namespaces location records.
const DefaultKeyPrefix = "thermoCal_"

// Memory keeps location records in process memory.
// Records are copied on the way in and out, so callers never share maps.
type Memory struct {
	mu      sync.RWMutex
	prefix  string
	records map[string]logic.LocationState
}

// NewMemory creates an empty in-memory store.
func NewMemory(prefix string) *Memory {
	return &Memory{prefix: prefix, records: make(map[string]logic.LocationState)}
}

// Get returns the stored state or an empty one.
func (m *Memory) Get(_ context.Context, location string) (logic.LocationState, error) {
	m.mu.RLock()
	s, ok := m.records[m.prefix+location]
	m.mu.RUnlock()
	if !ok {
		return logic.LocationState{Sensors: map[string]logic.Reading{}}, nil
	}
	return s.Clone(), nil
}

// Put replaces the stored state.
func (m *Memory) Put(_ context.Context, location string, state logic.LocationState) error {
	cp := state.Clone()
	m.mu.Lock()
	m.records[m.prefix+location] = cp
	m.mu.Unlock()
	return nil
}

// Locations lists stored location ids, sorted.
func (m *Memory) Locations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.records))
	for k := range m.records {
		out = append(out, strings.TrimPrefix(k, m.prefix))
	}
	sort.Strings(out)
	return out
}
