// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package stmtctx

import (
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/util/fsm"
)

// Constants for the states of a Frame.

type stateFree struct{}

// stateInUse is the state of a frame on the owner's statement stack.
type stateInUse struct {
	// SavepointSet is set once the frame established its internal savepoint
	// in the current transaction.
	SavepointSet fsm.Bool
}

// stateCompleted is the state of a frame popped after the statement ended
// normally.
type stateCompleted struct{}

// stateRolledBack is the state of a frame whose statement failed and whose
// work was undone to the internal savepoint.
type stateRolledBack struct{}

// stateTornDown is the state of a frame popped by an error without a
// statement-level undo.
type stateTornDown struct{}

func (stateFree) State()       {}
func (stateInUse) State()      {}
func (stateCompleted) State()  {}
func (stateRolledBack) State() {}
func (stateTornDown) State()   {}

func (stateFree) String() string       { return "free" }
func (stateCompleted) String() string  { return "completed" }
func (stateRolledBack) String() string { return "rolled back" }
func (stateTornDown) String() string   { return "torn down" }
func (s stateInUse) String() string {
	if s.SavepointSet.Get() {
		return "in use (savepoint set)"
	}
	return "in use"
}

// Constants for the events of a Frame.

// eventPush is applied when the owner pushes the frame. Its payload is an
// Options.
type eventPush struct{}

// eventSetSavepoint establishes the internal savepoint if it is not set yet.
type eventSetSavepoint struct{}

// eventResetSavepoint re-establishes a set savepoint after the transaction
// it lived in ended.
type eventResetSavepoint struct{}

// eventClearSavepoint releases the internal savepoint.
type eventClearSavepoint struct{}

// eventFinish is applied when the owner pops the frame after the statement
// ended normally.
type eventFinish struct{}

// eventStatementError is applied on a statement-severity error.
type eventStatementError struct{}

// eventTxnError is applied on errors of transaction severity or worse, and
// when a statement-level undo failed.
type eventTxnError struct{}

func (eventPush) Event()           {}
func (eventSetSavepoint) Event()   {}
func (eventResetSavepoint) Event() {}
func (eventClearSavepoint) Event() {}
func (eventFinish) Event()         {}
func (eventStatementError) Event() {}
func (eventTxnError) Event()       {}

var pushTransition = fsm.Transition{
	Next: stateInUse{SavepointSet: fsm.False},
	Action: func(args fsm.Args) error {
		opts, ok := args.Payload.(Options)
		if !ok {
			return errors.AssertionFailedf("push without options: %T", args.Payload)
		}
		args.Extended.(*Frame).activate(opts)
		return nil
	},
	Description: "statement starts",
}

func resetAction(args fsm.Args) error {
	args.Extended.(*Frame).reset()
	return nil
}

// FrameTransitions describes the lifecycle of a Frame.
var FrameTransitions = fsm.Compile(fsm.Pattern{
	stateFree{}:       {eventPush{}: pushTransition},
	stateCompleted{}:  {eventPush{}: pushTransition},
	stateRolledBack{}: {eventPush{}: pushTransition},
	stateTornDown{}:   {eventPush{}: pushTransition},

	stateInUse{SavepointSet: fsm.False}: {
		eventSetSavepoint{}: {
			Next: stateInUse{SavepointSet: fsm.True},
			Action: func(args fsm.Args) error {
				f := args.Extended.(*Frame)
				return f.owner.SetStatementSavepoint(args.Ctx, f.SavepointName())
			},
		},
		eventResetSavepoint{}: {Next: stateInUse{SavepointSet: fsm.False}},
		eventClearSavepoint{}: {Next: stateInUse{SavepointSet: fsm.False}},
		eventFinish{}: {
			Next:        stateCompleted{},
			Action:      resetAction,
			Description: "statement ends",
		},
		eventStatementError{}: {
			Next:        stateTornDown{},
			Action:      resetAction,
			Description: "statement error, nothing to undo",
		},
		eventTxnError{}: {
			Next:   stateTornDown{},
			Action: resetAction,
		},
	},

	stateInUse{SavepointSet: fsm.True}: {
		eventSetSavepoint{}: {Next: stateInUse{SavepointSet: fsm.True}},
		eventResetSavepoint{}: {
			Next: stateInUse{SavepointSet: fsm.True},
			Action: func(args fsm.Args) error {
				f := args.Extended.(*Frame)
				return f.owner.SetStatementSavepoint(args.Ctx, f.SavepointName())
			},
			Description: "transaction ended under the statement",
		},
		eventClearSavepoint{}: {
			Next: stateInUse{SavepointSet: fsm.False},
			Action: func(args fsm.Args) error {
				f := args.Extended.(*Frame)
				return f.owner.ReleaseStatementSavepoint(args.Ctx, f.SavepointName())
			},
		},
		eventFinish{}: {
			Next: stateCompleted{},
			Action: func(args fsm.Args) error {
				f := args.Extended.(*Frame)
				if err := f.owner.ReleaseStatementSavepoint(args.Ctx, f.SavepointName()); err != nil {
					return err
				}
				f.reset()
				return nil
			},
			Description: "statement ends",
		},
		eventStatementError{}: {
			Next: stateRolledBack{},
			Action: func(args fsm.Args) error {
				f := args.Extended.(*Frame)
				if err := f.owner.RollbackToStatementSavepoint(args.Ctx, f.SavepointName()); err != nil {
					return err
				}
				f.reset()
				return nil
			},
			Description: "statement error, undo to savepoint",
		},
		// The savepoint went away with the transaction.
		eventTxnError{}: {
			Next:   stateTornDown{},
			Action: resetAction,
		},
	},
})
