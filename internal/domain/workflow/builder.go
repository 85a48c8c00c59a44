package workflow

import (
	"context"
	"fmt"
	"slices"
)

// GuardFunc is a function that evaluates whether a transition should be allowed
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder builds a configured state machine
type StateMachineBuilder interface {
	// Configure returns a state configuration for the given state
	Configure(state State) StateConfiguration

	// Build creates a new state machine instance with the given initial state
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to transition to the target state
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to transition to the target state if the guard condition passes
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

type edge struct {
	from    State
	trigger Trigger
}

type target struct {
	to    State
	guard GuardFunc
}

// table maps a (state, trigger) pair to its candidate targets, tried in order
type table map[edge][]target

func (t table) clone() table {
	out := make(table, len(t))
	for k, v := range t {
		out[k] = slices.Clone(v)
	}
	return out
}

type builder struct {
	states  StateSet
	rules   table
	configs map[State]*stateRules
}

type stateRules struct {
	b    *builder
	from State
}

type machine struct {
	current State
	rules   table
}

// NewBuilder creates a state machine builder restricted to the given states
func NewBuilder(states StateSet) StateMachineBuilder {
	return &builder{
		states:  states,
		rules:   make(table),
		configs: make(map[State]*stateRules),
	}
}

func (b *builder) mustContain(kind string, s State) {
	if !b.states.Contains(s) {
		panic(fmt.Sprintf("invalid %s: %s", kind, s))
	}
}

func (b *builder) Configure(state State) StateConfiguration {
	b.mustContain("state", state)
	if c, ok := b.configs[state]; ok {
		return c
	}
	c := &stateRules{b: b, from: state}
	b.configs[state] = c
	return c
}

// Build snapshots the rules; later Configure calls do not affect the machine.
func (b *builder) Build(initialState State) StateMachine {
	b.mustContain("initial state", initialState)
	return &machine{current: initialState, rules: b.rules.clone()}
}

func (c *stateRules) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateRules) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	c.b.mustContain("target state", toState)
	k := edge{from: c.from, trigger: trigger}
	c.b.rules[k] = append(c.b.rules[k], target{to: toState, guard: guard})
	return c
}

func (m *machine) State() State {
	return m.current
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	targets := m.rules[edge{from: m.current, trigger: trigger}]
	if len(targets) == 0 {
		return fmt.Errorf("%w: cannot fire trigger %s from state %s", ErrInvalidTransition, trigger, m.current)
	}
	for _, t := range targets {
		if t.guard == nil || t.guard(ctx) {
			m.current = t.to
			return nil
		}
	}
	return fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
}
