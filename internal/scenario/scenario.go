package scenario

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Trigger event types.
const (
	EventStep      = "step"      // value is the 1-based step index
	EventDelivered = "delivered" // value is the cumulative delivered count
)

// ErrInvalid is returned for scenarios that cannot be run.
var ErrInvalid = errors.New("invalid scenario")

// Scenario defines a traffic scenario with ordered phases and an overall description.
type Scenario struct {
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Phases      []Phase `yaml:"phases"`
}

// Phase scales every node's traffic interval while it is active.
type Phase struct {
	Name          string    `yaml:"name"`
	Description   string    `yaml:"description,omitempty"`
	IntervalScale float64   `yaml:"interval_scale"`
	Triggers      []Trigger `yaml:"triggers,omitempty"`
}

// Trigger moves the scenario to another phase based on an event.
type Trigger struct {
	Event string `yaml:"event"`
	Value int    `yaml:"value"`
	Next  string `yaml:"next"`
}

// Event represents a runtime occurrence that may advance the scenario.
type Event struct {
	Type  string
	Value int
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate fills default scales and checks that every trigger points at a known phase.
func (s *Scenario) Validate() error {
	if len(s.Phases) == 0 {
		return fmt.Errorf("%w: no phases", ErrInvalid)
	}
	names := make(map[string]bool, len(s.Phases))
	for i := range s.Phases {
		p := &s.Phases[i]
		if p.Name == "" || names[p.Name] {
			return fmt.Errorf("%w: phase %d has an empty or duplicate name", ErrInvalid, i)
		}
		names[p.Name] = true
		if p.IntervalScale == 0 {
			p.IntervalScale = 1
		}
		if p.IntervalScale < 0 {
			return fmt.Errorf("%w: phase %s has negative interval_scale", ErrInvalid, p.Name)
		}
	}
	for _, p := range s.Phases {
		for _, tr := range p.Triggers {
			if tr.Event != EventStep && tr.Event != EventDelivered {
				return fmt.Errorf("%w: phase %s: unknown trigger event %q", ErrInvalid, p.Name, tr.Event)
			}
			if !names[tr.Next] {
				return fmt.Errorf("%w: phase %s: trigger targets unknown phase %q", ErrInvalid, p.Name, tr.Next)
			}
		}
	}
	return nil
}

// NextPhase returns the name of the next phase given the current phase and event.
// If no trigger matches, ok will be false.
func (s *Scenario) NextPhase(current string, ev Event) (next string, ok bool) {
	for _, p := range s.Phases {
		if p.Name != current {
			continue
		}
		for _, tr := range p.Triggers {
			if tr.Event == ev.Type && ev.Value >= tr.Value {
				return tr.Next, true
			}
		}
	}
	return "", false
}

// Phase looks a phase up by name.
func (s *Scenario) Phase(name string) (Phase, bool) {
	for _, p := range s.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}

// Tracker follows the active phase of a running scenario.
type Tracker struct {
	s       *Scenario
	current string
}

// NewTracker starts at the first phase.
func NewTracker(s *Scenario) *Tracker {
	return &Tracker{s: s, current: s.Phases[0].Name}
}

// Current returns the active phase.
func (t *Tracker) Current() Phase {
	p, _ := t.s.Phase(t.current)
	return p
}

// Observe feeds events and follows matching triggers. Chained transitions are
// followed at most once per phase so a trigger cycle cannot spin forever.
func (t *Tracker) Observe(events ...Event) (Phase, bool) {
	changed := false
	for range t.s.Phases {
		moved := false
		for _, ev := range events {
			if next, ok := t.s.NextPhase(t.current, ev); ok && next != t.current {
				t.current = next
				moved, changed = true, true
				break
			}
		}
		if !moved {
			break
		}
	}
	return t.Current(), changed
}
