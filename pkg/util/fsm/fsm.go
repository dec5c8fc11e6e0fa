// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package fsm provides an interface for defining and working with finite
// state machines.
//
// The package is written with immutable state in mind, and so the State
// and Event values are expected to be comparable structs. Any mutable data
// lives in the ExtendedState that the Machine carries and hands to every
// transition Action.
package fsm

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// State is a node in a Machine's transition graph.
type State interface {
	State()
}

// ExtendedState is extra state in a Machine that does not contribute to
// state transition decisions, but that can be affected by a state transition.
type ExtendedState interface{}

// Event is something that happens to a Machine which may or may not trigger
// a state transition.
type Event interface {
	Event()
}

// EventPayload is extra payload on an Event that does not contribute to
// state transition decisions, but that can be affected by a state transition.
type EventPayload interface{}

// Args is a structure containing the arguments passed to Transition.Action.
type Args struct {
	Ctx context.Context

	Prev     State
	Extended ExtendedState
	Payload  EventPayload
}

// Transition is a Machine's response to an Event applied to a State. It may
// transition the machine to a new State and it may also perform an action on
// the Machine's ExtendedState.
type Transition struct {
	Next   State
	Action func(Args) error
	// Description, if set, is reflected in the DOT diagram.
	Description string
}

// TransitionNotFoundError is returned from Machine.Apply when the Event cannot
// be applied to the current State.
type TransitionNotFoundError struct {
	State State
	Event Event
}

func (e TransitionNotFoundError) Error() string {
	return fmt.Sprintf("event %T inappropriate in current state %T", e.Event, e.State)
}

// SafeFormatError implements errors.SafeFormatter.
func (e TransitionNotFoundError) SafeFormatError(p errors.Printer) (next error) {
	p.Printf("event %s inappropriate in current state %s",
		redact.SafeString(fmt.Sprintf("%T", e.Event)), redact.SafeString(fmt.Sprintf("%T", e.State)))
	return nil
}

// Transitions is a set of expanded state transitions generated from a
// Pattern, forming a State graph with Events acting as the directed edges
// between different States.
//
// A Transitions graph is immutable and is only useful when used to direct a
// Machine. Because of this, multiple Machines can be instantiated using the
// same Transitions graph.
type Transitions struct {
	expanded Pattern
}

// Compile creates a set of state Transitions from a Pattern. This is
// relatively expensive so it's expected that Compile is called once for each
// transition graph and assigned to a static variable. This variable can then
// be given to MakeMachine, which is cheap.
func Compile(p Pattern) Transitions {
	return Transitions{expanded: expandPattern(p)}
}

func (t Transitions) apply(a Args, e Event) (State, error) {
	sm, ok := t.expanded[a.Prev]
	if !ok {
		return a.Prev, TransitionNotFoundError{State: a.Prev, Event: e}
	}
	tr, ok := sm[e]
	if !ok {
		return a.Prev, TransitionNotFoundError{State: a.Prev, Event: e}
	}
	if tr.Action != nil {
		if err := tr.Action(a); err != nil {
			return a.Prev, err
		}
	}
	return tr.Next, nil
}

// Machine encapsulates a State with a set of State transitions. It reacts to
// Events, adjusting its internal State according to its Transition graph and
// performing actions on its ExtendedState accordingly.
type Machine struct {
	t   Transitions
	cur State
	es  ExtendedState
}

// MakeMachine returns a new Machine with an initial State.
func MakeMachine(t Transitions, start State, es ExtendedState) Machine {
	return Machine{t: t, cur: start, es: es}
}

// Apply applies the Event to the state Machine.
func (m *Machine) Apply(ctx context.Context, e Event) error {
	return m.ApplyWithPayload(ctx, e, nil)
}

// ApplyWithPayload applies the Event to the state Machine, passing along the
// EventPayload to the state transition's Action function. If the Action
// returns an error, the Machine stays in its current State.
func (m *Machine) ApplyWithPayload(ctx context.Context, e Event, b EventPayload) error {
	next, err := m.t.apply(Args{
		Ctx:      ctx,
		Prev:     m.cur,
		Extended: m.es,
		Payload:  b,
	}, e)
	m.cur = next
	return err
}

// CurState returns the current state.
func (m *Machine) CurState() State {
	return m.cur
}
