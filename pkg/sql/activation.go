// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/sql/catalog"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgcode"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
)

// ResultSet is the result of an executing statement.
type ResultSet interface {
	// ReturnsRows is false for statements that only report a row count.
	ReturnsRows() bool
	IsClosed() bool
	Close(ctx context.Context) error
	// ClearCurrentRow forgets the current row of a held cursor at commit.
	ClearCurrentRow()
}

// Holdability is the behavior of a cursor at commit.
type Holdability int

const (
	// CloseCursorsAtCommit closes the cursor when the transaction commits.
	CloseCursorsAtCommit Holdability = iota
	// HoldCursorsOverCommit keeps the cursor open across commits.
	HoldCursorsOverCommit
)

// An Activation is the execution state of a compiled plan, typically backing
// one open cursor. Activations reference their session by identity only; the
// session owns the activation set.
type Activation interface {
	// Reset discards the execution state so the activation can be reused.
	Reset(ctx context.Context) error
	// Close releases the activation. It removes the activation from its
	// session with Session.RemoveActivation.
	Close(ctx context.Context) error
	// IsInUse is false once the statement owning the activation no longer
	// needs it.
	IsInUse() bool
	// ResultSet returns the activation's result set, or nil.
	ResultSet() ResultSet
	Holdability() Holdability
	// CursorName returns the cursor name, or "" for unnamed results.
	CursorName() string
	// HasHoldCursorOn reports whether the activation holds a cursor open on
	// the named temporary table.
	HasHoldCursorOn(table string) bool
	// Plan returns the compiled plan the activation executes.
	Plan() catalog.Dependent
	// ClearHeapConglomerateController drops the activation's cached
	// storage controller at commit.
	ClearHeapConglomerateController()
}

// AddActivation adds a to the session's activation set.
func (s *Session) AddActivation(a Activation) {
	s.activations = append(s.activations, a)
}

// RemoveActivation removes a from the session's activation set. Removing an
// activation that is not in the set is a no-op.
func (s *Session) RemoveActivation(a Activation) {
	for i := range s.activations {
		if s.activations[i] == a {
			s.activations = append(s.activations[:i], s.activations[i+1:]...)
			return
		}
	}
}

// ActivationCount returns the number of open activations.
func (s *Session) ActivationCount() int { return len(s.activations) }

// NotifyUnusedActivation records that an activation became unused. The next
// CloseUnusedActivations sweeps it.
func (s *Session) NotifyUnusedActivation() { s.unusedActs = true }

// CloseUnusedActivations closes the activations that are no longer in use
// once the session holds more than the configured threshold.
func (s *Session) CloseUnusedActivations(ctx context.Context) error {
	threshold := int(unusedActivationThreshold.Get(s.server.cfg.Settings))
	if !s.unusedActs || len(s.activations) <= threshold {
		return nil
	}
	s.unusedActs = false
	var err error
	swept := 0
	// Close removes the activation from the set.
	for i := len(s.activations) - 1; i >= 0; i-- {
		if i >= len(s.activations) {
			continue
		}
		a := s.activations[i]
		if a.IsInUse() {
			continue
		}
		err = errors.CombineErrors(err, a.Close(ctx))
		swept++
	}
	s.server.Metrics.ActivationsSwept.Inc(int64(swept))
	if swept > 0 && s.sweepLog.ShouldLog() {
		log.Infof(s.AnnotateCtx(ctx), "closed %d unused activations, %d remain", swept, len(s.activations))
	}
	return err
}

// LookupCursorActivation returns the in-use activation with an open result
// set for the named cursor, or nil.
func (s *Session) LookupCursorActivation(name string) Activation {
	for _, a := range s.activations {
		if !a.IsInUse() || a.CursorName() != name {
			continue
		}
		if rs := a.ResultSet(); rs != nil && !rs.IsClosed() {
			return a
		}
	}
	return nil
}

// UniqueCursorName returns a cursor name unique within the session.
func (s *Session) UniqueCursorName() string {
	s.cursorCounter++
	return fmt.Sprintf("SQLCUR%d", s.cursorCounter)
}

// UniqueSavepointName returns a savepoint name unique within the session.
func (s *Session) UniqueSavepointName() string {
	s.savepointCounter++
	return fmt.Sprintf("SAVEPT%d", s.savepointCounter)
}

// heldCursorCount returns the number of open holdable result sets.
func (s *Session) heldCursorCount() int {
	n := 0
	for _, a := range s.activations {
		if !a.IsInUse() || a.Holdability() != HoldCursorsOverCommit {
			continue
		}
		if rs := a.ResultSet(); rs != nil && !rs.IsClosed() && rs.ReturnsRows() {
			n++
		}
	}
	return n
}

// verifyAllHeldResultSetsAreClosed returns an error if a holdable cursor is
// open.
func (s *Session) verifyAllHeldResultSetsAreClosed() error {
	if n := s.heldCursorCount(); n > 0 {
		return pgerror.Newf(pgcode.IsolationChangeWithHeldCursors,
			"cannot change the isolation level with %d held cursors open", n)
	}
	return nil
}

// anyActivationHasHoldCursor reports whether an open activation holds a
// cursor on the named table.
func (s *Session) anyActivationHasHoldCursor(table string) bool {
	for _, a := range s.activations {
		if a.HasHoldCursorOn(table) {
			return true
		}
	}
	return false
}

// endTransactionActivationHandling closes or resets the activations at the
// end of a transaction. On rollback the row-returning activations are
// reset, and their plans invalidated when the transaction wrote to the
// data dictionary. On commit the non-holdable result sets are closed.
func (s *Session) endTransactionActivationHandling(ctx context.Context, forRollback bool) error {
	var err error
	// Close may remove the activation, so the bounds are re-checked on every
	// step.
	for i := len(s.activations) - 1; i >= 0; i-- {
		if i >= len(s.activations) {
			continue
		}
		a := s.activations[i]
		if !a.IsInUse() {
			err = errors.CombineErrors(err, a.Close(ctx))
			continue
		}
		rs := a.ResultSet()
		returnsRows := rs != nil && rs.ReturnsRows()
		if forRollback {
			if returnsRows {
				err = errors.CombineErrors(err, a.Reset(ctx))
			}
			if s.ddWriteMode {
				if p := a.Plan(); p != nil {
					err = errors.CombineErrors(err, p.MakeInvalid(ctx, catalog.Rollback))
				}
			}
			continue
		}
		if returnsRows {
			if a.Holdability() == CloseCursorsAtCommit {
				err = errors.CombineErrors(err, rs.Close(ctx))
			} else {
				rs.ClearCurrentRow()
			}
		}
		a.ClearHeapConglomerateController()
	}
	return err
}

// resetActivations resets and closes every activation. It is used by
// session severity cleanup.
func (s *Session) resetActivations(ctx context.Context) error {
	var err error
	for i := len(s.activations) - 1; i >= 0; i-- {
		if i >= len(s.activations) {
			continue
		}
		a := s.activations[i]
		err = errors.CombineErrors(err, a.Reset(ctx))
		err = errors.CombineErrors(err, a.Close(ctx))
		s.RemoveActivation(a)
	}
	return err
}
