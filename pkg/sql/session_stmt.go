// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/sql/catalog"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/sql/sessionauth"
	"github.com/cockroachdb/sessioncore/pkg/sql/stmtcache"
	"github.com/cockroachdb/sessioncore/pkg/sql/stmtctx"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
)

// PushStatementContext pushes a frame for a new statement invocation. A
// nested frame inherits the trigger and atomic flags of its parent, and its
// SQL ceiling is never wider than the parent's.
func (s *Session) PushStatementContext(ctx context.Context, opts stmtctx.Options) (*stmtctx.Frame, error) {
	depth := len(s.stmts)
	var f *stmtctx.Frame
	if depth < len(s.cachedFrames) {
		f = s.cachedFrames[depth]
	} else {
		f = stmtctx.NewFrame(s, s.nextFrameID)
		s.nextFrameID++
	}

	if depth > 0 {
		parent := s.stmts[depth-1]
		opts.InTrigger = opts.InTrigger || parent.InTrigger() || s.outermostTrigger == depth
		opts.Atomic = opts.Atomic || parent.IsAtomic()
		opts.SQLAllowed = sessionauth.Narrowest(parent.SQLAllowed(), opts.SQLAllowed)
	} else {
		opts.InTrigger = opts.InTrigger || s.outermostTrigger == 0
	}
	opts.Depth = depth
	if err := f.Push(ctx, opts); err != nil {
		return nil, err
	}
	s.stmts = append(s.stmts, f)
	return f, nil
}

// PopStatementContext is part of the stmtctx.Owner interface. Popping a frame
// that is not on the stack is a no-op. A frame still in use is finished:
// its internal savepoint is released.
func (s *Session) PopStatementContext(ctx context.Context, f *stmtctx.Frame, cause error) error {
	i := s.frameIndex(f)
	if i < 0 {
		return nil
	}
	if i != len(s.stmts)-1 {
		return errors.AssertionFailedf("popping %s which is not the innermost statement of %d", f, len(s.stmts))
	}
	s.stmts = s.stmts[:i]
	if f.InUse() {
		return f.Finish(ctx)
	}
	return nil
}

func (s *Session) frameIndex(f *stmtctx.Frame) int {
	for i := len(s.stmts) - 1; i >= 0; i-- {
		if s.stmts[i] == f {
			return i
		}
	}
	return -1
}

// CurrentStatementContext returns the innermost statement frame, or nil.
func (s *Session) CurrentStatementContext() *stmtctx.Frame {
	if len(s.stmts) == 0 {
		return nil
	}
	return s.stmts[len(s.stmts)-1]
}

// StatementDepth returns the number of frames on the statement stack.
func (s *Session) StatementDepth() int { return len(s.stmts) }

// sessionSeverity returns the severity the session unwinds for. Errors
// that carry no severity are treated as session severity.
func sessionSeverity(err error) pgerror.Severity {
	if sev := pgerror.GetSeverity(err); sev != pgerror.SeverityUnclassified {
		return sev
	}
	return pgerror.SeveritySession
}

// CleanupOnError unwinds the session after cause. The statement frames are
// cleaned up innermost first until one of them fully handles the error.
// Transaction severity errors then roll back the transaction, and session
// severity errors close every activation and end the session. Calling
// CleanupOnError again after the session was cleaned up is a no-op.
func (s *Session) CleanupOnError(ctx context.Context, cause error) error {
	ctx = s.AnnotateCtx(ctx)
	sev := pgerror.GetSeverity(cause)
	s.server.Metrics.recordError(sev)
	if s.settingsLogStatementText() {
		log.Infof(ctx, "Cleaning up after %s error: %v: %s", sev, cause, s.statementText())
	}

	// A frame never claims an error that carries no severity: the session
	// unwinds for it as session severity.
	unwindSev := sessionSeverity(cause)
	var err error
	for len(s.stmts) > 0 {
		f := s.stmts[len(s.stmts)-1]
		last := f.IsLastHandler(unwindSev)
		err = errors.CombineErrors(err, f.CleanupOnError(ctx, cause))
		if len(s.stmts) > 0 && s.stmts[len(s.stmts)-1] == f {
			// The frame could not pop itself.
			s.stmts = s.stmts[:len(s.stmts)-1]
		}
		if last {
			return err
		}
	}

	switch {
	case unwindSev >= pgerror.SeveritySession:
		if s.closed {
			return err
		}
		err = errors.CombineErrors(err, s.resetActivations(ctx))
		if s.tempTables != nil {
			err = errors.CombineErrors(err, s.tempTables.DropAll(ctx, s.tempTableEnv()))
			s.tempTables = nil
		}
		if s.nested != nil {
			s.nested.Destroy(ctx)
			s.nested = nil
			s.queryNestingDepth = 0
		}
		if abortErr := s.txn.Abort(ctx); abortErr != nil {
			err = errors.CombineErrors(err, abortErr)
		}
		s.teardown(ctx, cause)
	case unwindSev >= pgerror.SeverityTransaction:
		err = errors.CombineErrors(err, s.InternalRollback(ctx))
	}
	return err
}

// PreparedStatement is a compiled statement checked out of the statement
// cache.
type PreparedStatement struct {
	plan   stmtcache.Plan
	handle *stmtcache.Handle
	cache  *stmtcache.Cache
}

// Plan returns the compiled plan.
func (ps *PreparedStatement) Plan() stmtcache.Plan { return ps.plan }

// Cached returns whether the plan is shared through the statement cache.
func (ps *PreparedStatement) Cached() bool { return ps.handle != nil }

// Close returns the statement to the cache.
func (ps *PreparedStatement) Close() {
	if ps.handle != nil {
		ps.cache.Release(ps.handle)
		ps.handle = nil
	}
}

// Prepare compiles sql in the session's current schema. The plan is shared
// through the statement cache unless the transaction writes to the data
// dictionary, in which case it is compiled for this session only.
func (s *Session) Prepare(ctx context.Context, sql string, forReadOnly bool) (*PreparedStatement, error) {
	ctx = s.AnnotateCtx(ctx)
	key := stmtcache.MakeKey(s.sessionData.CurrentSchema, sql, forReadOnly)
	if s.ddWriteMode {
		plan, err := s.server.cfg.Compiler.Compile(ctx, key)
		if err != nil {
			return nil, err
		}
		return &PreparedStatement{plan: plan}, nil
	}
	h, err := s.server.stmtCache.Find(ctx, key)
	if err != nil {
		return nil, err
	}
	return &PreparedStatement{plan: h.Plan(), handle: h, cache: s.server.stmtCache}, nil
}

// RemoveStatement removes the prepared statement's plan from the cache,
// typically after it was found invalid, and closes the statement.
func (s *Session) RemoveStatement(ps *PreparedStatement) {
	if ps.handle != nil {
		s.server.stmtCache.Remove(ps.handle)
	}
	ps.Close()
}

// AddStatementDependency records that the innermost statement depends on p.
func (s *Session) AddStatementDependency(ctx context.Context, d catalog.Dependent, p catalog.Provider) error {
	f := s.CurrentStatementContext()
	if f == nil {
		return errors.AssertionFailedf("dependency on %s outside of a statement", p.ProviderID())
	}
	f.AddDependency(ctx, catalog.Dependency{Dependent: d, Provider: p})
	return nil
}
