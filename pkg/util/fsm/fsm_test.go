// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package fsm

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type state1 struct{}
type state2 struct {
	Dirty Bool
}
type state3 struct{}

func (state1) State() {}
func (state2) State() {}
func (state3) State() {}

type event1 struct{}
type event2 struct{}
type event3 struct {
	Fail Bool
}

func (event1) Event() {}
func (event2) Event() {}
func (event3) Event() {}

type counter struct {
	actions []string
}

func record(name string) func(Args) error {
	return func(a Args) error {
		c := a.Extended.(*counter)
		c.actions = append(c.actions, name)
		return nil
	}
}

var testTransitions = Compile(Pattern{
	state1{}: {
		event1{}: {Next: state2{Dirty: False}, Action: record("1->2")},
	},
	state2{Dirty: Binding("dirty")}: {
		event1{}: {Next: state2{Dirty: True}, Action: record("dirty")},
		event2{}: {Next: state3{}, Action: record("2->3")},
		event3{Fail: Wildcard}: {
			Next: state2{Dirty: Binding("dirty")},
			Action: func(a Args) error {
				if a.Payload != nil {
					return a.Payload.(error)
				}
				return record("stay")(a)
			},
		},
	},
})

func TestMachine(t *testing.T) {
	ctx := context.Background()
	c := &counter{}
	m := MakeMachine(testTransitions, state1{}, c)

	require.NoError(t, m.Apply(ctx, event1{}))
	require.Equal(t, state2{Dirty: False}, m.CurState())

	require.NoError(t, m.Apply(ctx, event1{}))
	require.Equal(t, state2{Dirty: True}, m.CurState())

	// Bindings carry the matched value through to the next state.
	require.NoError(t, m.Apply(ctx, event3{Fail: True}))
	require.Equal(t, state2{Dirty: True}, m.CurState())

	// A failing action leaves the machine where it was.
	boom := errors.New("boom")
	err := m.ApplyWithPayload(ctx, event3{Fail: False}, boom)
	require.True(t, errors.Is(err, boom))
	require.Equal(t, state2{Dirty: True}, m.CurState())

	require.NoError(t, m.Apply(ctx, event2{}))
	require.Equal(t, state3{}, m.CurState())
	require.Equal(t, []string{"1->2", "dirty", "stay", "2->3"}, c.actions)

	err = m.Apply(ctx, event1{})
	var tnf TransitionNotFoundError
	require.True(t, errors.As(err, &tnf))
	require.Equal(t, state3{}, tnf.State)
	require.Contains(t, err.Error(), "inappropriate in current state fsm.state3")
}

func TestExpandPatternOverlapPanics(t *testing.T) {
	require.Panics(t, func() {
		Compile(Pattern{
			state2{Dirty: Wildcard}: {event1{}: {Next: state1{}}},
			state2{Dirty: True}:     {event1{}: {Next: state3{}}},
		})
	})
}

func TestBoolGet(t *testing.T) {
	require.True(t, FromBool(true).Get())
	require.False(t, False.Get())
	require.Panics(t, func() { Wildcard.Get() })
}
