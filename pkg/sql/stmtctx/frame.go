// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package stmtctx implements the per-statement execution frame pushed by a
// session for every statement it runs, including statements nested in
// routines and triggers.
//
// A frame owns a lazily established internal savepoint used to undo the
// statement's work on a statement-severity error, the dependencies recorded
// while the statement compiled, and the results to close when it fails.
// Frames are reused: an owner keeps its outermost frames and pushes them
// again for later statements.
package stmtctx

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/sessioncore/pkg/sql/catalog"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/sql/sessionauth"
	"github.com/cockroachdb/sessioncore/pkg/util/fsm"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
)

// Owner is the session a frame belongs to.
type Owner interface {
	// SetStatementSavepoint establishes an internal savepoint.
	SetStatementSavepoint(ctx context.Context, name string) error
	// ReleaseStatementSavepoint releases an internal savepoint.
	ReleaseStatementSavepoint(ctx context.Context, name string) error
	// RollbackToStatementSavepoint undoes the work done since the internal
	// savepoint was set, and releases it.
	RollbackToStatementSavepoint(ctx context.Context, name string) error
	// DependencyManager returns the manager dependencies are recorded with.
	DependencyManager() catalog.DependencyManager
	// PopStatementContext removes the frame from the owner's stack. Popping a
	// frame that is not on the stack is a no-op.
	PopStatementContext(ctx context.Context, f *Frame, cause error) error
}

// Result is an open result set that must be closed if its statement fails.
type Result interface {
	Cleanup(ctx context.Context) error
}

// Options describes the statement a frame is pushed for. The owner fills in
// the fields inherited from the parent frame.
type Options struct {
	// Atomic is set for statements whose effects must be all or nothing.
	// It is inherited by nested frames.
	Atomic bool
	// ForReadOnly is set for statements opened as read-only cursors.
	ForReadOnly bool
	// InTrigger is set when the statement runs inside a trigger.
	InTrigger bool
	// RollbackParent makes an error in this frame unwind the parent frame
	// too.
	RollbackParent bool
	// SQLAllowed is the SQL ceiling of the statement.
	SQLAllowed sessionauth.SQLAllowed
	// Statement is the statement text, for logging.
	Statement string
	// Depth is the number of frames below this one.
	Depth int
}

// Frame is the execution context of one statement. It is not safe for
// concurrent use.
type Frame struct {
	owner   Owner
	id      int64
	machine fsm.Machine

	opts         Options
	dependencies []catalog.Dependency
	topResult    Result
	// subqueries is indexed by subquery number; unused slots are nil.
	subqueries []Result
	// materialized holds subqueries evaluated before the top result existed.
	materialized map[int]Result
}

// NewFrame returns a free frame. id must be unique among the owner's frames;
// it names the frame's internal savepoint.
func NewFrame(owner Owner, id int64) *Frame {
	f := &Frame{owner: owner, id: id}
	f.machine = fsm.MakeMachine(FrameTransitions, stateFree{}, f)
	return f
}

// ID returns the frame's identifier.
func (f *Frame) ID() int64 { return f.id }

// Push marks the frame in use for a new statement. It is called by the owner.
func (f *Frame) Push(ctx context.Context, opts Options) error {
	return f.machine.ApplyWithPayload(ctx, eventPush{}, opts)
}

func (f *Frame) activate(opts Options) {
	f.opts = opts
}

// reset clears all per-statement state.
func (f *Frame) reset() {
	f.opts = Options{}
	f.dependencies = nil
	f.topResult = nil
	f.subqueries = nil
	f.materialized = nil
}

// InUse returns true while the frame is on its owner's stack.
func (f *Frame) InUse() bool {
	_, ok := f.machine.CurState().(stateInUse)
	return ok
}

// SavepointSet returns true if the internal savepoint is established.
func (f *Frame) SavepointSet() bool {
	s, ok := f.machine.CurState().(stateInUse)
	return ok && s.SavepointSet.Get()
}

// State returns a printable name of the frame's state.
func (f *Frame) State() string {
	return f.machine.CurState().(fmt.Stringer).String()
}

// SavepointName returns the name of the frame's internal savepoint.
func (f *Frame) SavepointName() string {
	return fmt.Sprintf("ISSP%d", f.id)
}

// IsAtomic returns true for atomic statements and everything nested in them.
func (f *Frame) IsAtomic() bool { return f.opts.Atomic }

// ForReadOnly returns true for read-only cursors.
func (f *Frame) ForReadOnly() bool { return f.opts.ForReadOnly }

// InTrigger returns true if the statement runs inside a trigger.
func (f *Frame) InTrigger() bool { return f.opts.InTrigger }

// RollbackParent returns true if errors unwind the parent frame too.
func (f *Frame) RollbackParent() bool { return f.opts.RollbackParent }

// SetParentRollback makes errors in this frame unwind the parent frame.
func (f *Frame) SetParentRollback() { f.opts.RollbackParent = true }

// Statement returns the statement text.
func (f *Frame) Statement() string { return f.opts.Statement }

// Depth returns the number of frames below this one.
func (f *Frame) Depth() int { return f.opts.Depth }

// SQLAllowed returns the statement's SQL ceiling.
func (f *Frame) SQLAllowed() sessionauth.SQLAllowed { return f.opts.SQLAllowed }

// SetSQLAllowed narrows the statement's SQL ceiling. With force the ceiling
// is replaced even if that widens it, which is how a routine call installs
// its declared ceiling.
func (f *Frame) SetSQLAllowed(allow sessionauth.SQLAllowed, force bool) {
	if force {
		f.opts.SQLAllowed = allow
		return
	}
	f.opts.SQLAllowed = sessionauth.Narrowest(f.opts.SQLAllowed, allow)
}

// SetSavepoint establishes the internal savepoint unless it is already set.
func (f *Frame) SetSavepoint(ctx context.Context) error {
	return f.machine.Apply(ctx, eventSetSavepoint{})
}

// ClearSavepoint releases the internal savepoint, if set.
func (f *Frame) ClearSavepoint(ctx context.Context) error {
	return f.machine.Apply(ctx, eventClearSavepoint{})
}

// ResetSavepoint re-establishes the internal savepoint in the owner's new
// transaction after a commit or rollback removed it. It is a no-op for
// frames that are not in use or never set one.
func (f *Frame) ResetSavepoint(ctx context.Context) error {
	if !f.InUse() {
		return nil
	}
	return f.machine.Apply(ctx, eventResetSavepoint{})
}

// AddDependency records d with the dependency manager and remembers it so
// that it can be forgotten if the statement fails.
func (f *Frame) AddDependency(ctx context.Context, d catalog.Dependency) {
	f.owner.DependencyManager().AddDependency(ctx, d)
	f.dependencies = append(f.dependencies, d)
}

// Dependencies returns the dependencies recorded by the statement.
func (f *Frame) Dependencies() []catalog.Dependency { return f.dependencies }

// TopResult returns the statement's top result, if any.
func (f *Frame) TopResult() Result { return f.topResult }

// Subqueries returns the tracked subquery results, indexed by subquery
// number.
func (f *Frame) Subqueries() []Result { return f.subqueries }

// AddMaterializedSubquery records a subquery evaluated before the top result
// was set.
func (f *Frame) AddMaterializedSubquery(number int, r Result) {
	if f.materialized == nil {
		f.materialized = make(map[int]Result)
	}
	f.materialized[number] = r
}

// SetSubqueryResult tracks the result of subquery number. The tracking array
// is sized for numSubqueries on first use.
func (f *Frame) SetSubqueryResult(number int, r Result, numSubqueries int) error {
	if f.subqueries == nil {
		f.subqueries = make([]Result, numSubqueries)
	}
	if number < 0 || number >= len(f.subqueries) {
		return errors.AssertionFailedf("subquery %d out of range [0,%d)", number, len(f.subqueries))
	}
	f.subqueries[number] = r
	return nil
}

// SetTopResult installs the statement's top result and its subquery tracking
// array. Subqueries materialized before this call are merged into the array,
// which is allocated with numSubqueries slots if tracking is nil.
func (f *Frame) SetTopResult(top Result, tracking []Result, numSubqueries int) error {
	f.topResult = top
	f.subqueries = tracking
	if len(f.materialized) == 0 {
		return nil
	}
	if f.subqueries == nil {
		f.subqueries = make([]Result, numSubqueries)
	} else if len(f.subqueries) != numSubqueries {
		return errors.AssertionFailedf("subquery tracking array has %d slots, expected %d",
			len(f.subqueries), numSubqueries)
	}
	for n, r := range f.materialized {
		if n < 0 || n >= len(f.subqueries) {
			return errors.AssertionFailedf("materialized subquery %d out of range [0,%d)",
				n, len(f.subqueries))
		}
		f.subqueries[n] = r
	}
	f.materialized = nil
	return nil
}

// Finish is called by the owner when it pops the frame after the statement
// ended normally. The internal savepoint is released.
func (f *Frame) Finish(ctx context.Context) error {
	if !f.InUse() {
		return nil
	}
	if err := f.machine.Apply(ctx, eventFinish{}); err != nil {
		// The savepoint could not be released; nothing else can use it.
		return errors.CombineErrors(err, f.machine.Apply(ctx, eventTxnError{}))
	}
	return nil
}

// cleanupSeverity returns the severity the frame unwinds for. Errors that
// carry no severity are treated as session severity.
func cleanupSeverity(err error) pgerror.Severity {
	if sev := pgerror.GetSeverity(err); sev != pgerror.SeverityUnclassified {
		return sev
	}
	return pgerror.SeveritySession
}

// CleanupOnError unwinds the frame after cause:
//
//  1. the top result and every tracked subquery are closed;
//  2. the recorded dependencies are forgotten;
//  3. on a statement-severity error the statement's work is undone to the
//     internal savepoint;
//  4. the frame pops itself from the owner's stack.
//
// On transaction severity and worse the savepoint is abandoned with the
// transaction. Cleanup continues past failures; the errors are combined.
func (f *Frame) CleanupOnError(ctx context.Context, cause error) error {
	if !f.InUse() {
		return nil
	}
	sev := cleanupSeverity(cause)
	log.VEventf(ctx, 2, "cleaning up statement frame %d after %s error: %v", f.id, sev, cause)

	var err error
	if f.topResult != nil {
		err = errors.CombineErrors(err, f.topResult.Cleanup(ctx))
	}
	for _, r := range f.subqueries {
		if r != nil {
			err = errors.CombineErrors(err, r.Cleanup(ctx))
		}
	}
	if len(f.dependencies) > 0 {
		dm := f.owner.DependencyManager()
		for _, d := range f.dependencies {
			dm.ClearInMemoryDependency(ctx, d)
		}
		f.dependencies = nil
	}

	if sev <= pgerror.SeverityStatement {
		if rbErr := f.machine.Apply(ctx, eventStatementError{}); rbErr != nil {
			err = errors.CombineErrors(err, rbErr)
			err = errors.CombineErrors(err, f.machine.Apply(ctx, eventTxnError{}))
		}
	} else {
		err = errors.CombineErrors(err, f.machine.Apply(ctx, eventTxnError{}))
	}
	return errors.CombineErrors(err, f.owner.PopStatementContext(ctx, f, cause))
}

// IsLastHandler returns true if the frame fully handles errors of the given
// severity, so that no enclosing frame nor the session needs to clean up.
func (f *Frame) IsLastHandler(sev pgerror.Severity) bool {
	return f.InUse() && !f.opts.RollbackParent &&
		(sev == pgerror.SeverityStatement || sev == pgerror.SeverityUnclassified)
}

// SafeFormat implements redact.SafeFormatter.
func (f *Frame) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("frame %d: %s", f.id, redact.SafeString(f.State()))
	if !f.InUse() {
		return
	}
	w.Printf(" depth=%d", f.opts.Depth)
	if f.opts.Atomic {
		w.SafeString(" atomic")
	}
	if f.opts.InTrigger {
		w.SafeString(" trigger")
	}
	w.Printf(" %s", f.opts.SQLAllowed)
	if f.opts.Statement != "" {
		w.Printf(": %s", f.opts.Statement)
	}
}

func (f *Frame) String() string { return redact.StringWithoutMarkers(f) }
