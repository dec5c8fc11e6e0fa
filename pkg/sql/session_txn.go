// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgcode"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/sql/sessionauth"
	"github.com/cockroachdb/sessioncore/pkg/sql/sessiondata"
	"github.com/cockroachdb/sessioncore/pkg/storage/txnctl"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
)

// commitMode selects how the store transaction commits.
type commitMode int

const (
	// commitSync is a regular commit.
	commitSync commitMode = iota
	// commitNoSync commits without waiting for the log to be durable.
	commitNoSync
	// commitXA is the commit of a global transaction.
	commitXA
)

type commitOptions struct {
	requestedByUser bool
	// commitStore is false when only the session state ends the
	// transaction and the store transaction is committed by its owner.
	commitStore bool
	mode        commitMode
	flag        txnctl.CommitFlag
	onePhase    bool
}

// UserCommit commits the transaction on behalf of a COMMIT statement or the
// client API.
func (s *Session) UserCommit(ctx context.Context) error {
	return s.doCommit(ctx, commitOptions{requestedByUser: true, commitStore: true})
}

// InternalCommit commits the transaction on behalf of the system. When
// commitStore is false only the session state is committed.
func (s *Session) InternalCommit(ctx context.Context, commitStore bool) error {
	return s.doCommit(ctx, commitOptions{commitStore: commitStore})
}

// InternalCommitNoSync commits the transaction without waiting for the store
// to make it durable. The data dictionary is not told that the
// transaction finished.
func (s *Session) InternalCommitNoSync(ctx context.Context, flag txnctl.CommitFlag) error {
	return s.doCommit(ctx, commitOptions{commitStore: true, mode: commitNoSync, flag: flag})
}

// XACommit commits a global transaction. The temporary tables are dropped
// after the commit.
func (s *Session) XACommit(ctx context.Context, onePhase bool) error {
	return s.doCommit(ctx, commitOptions{commitStore: true, mode: commitXA, onePhase: onePhase})
}

// checkAtomicTermination rejects a user-requested commit or rollback inside
// an atomic statement.
func (s *Session) checkAtomicTermination(op string) error {
	if f := s.CurrentStatementContext(); f != nil && f.InUse() && f.IsAtomic() {
		return pgerror.Newf(pgcode.InvalidTransactionTermination,
			"cannot issue %s in a nested connection when there is a pending operation in the parent connection", op)
	}
	return nil
}

func (s *Session) doCommit(ctx context.Context, opts commitOptions) error {
	if s.nested != nil {
		return errors.AssertionFailedf("commit with an open nested transaction (depth %d)", s.queryNestingDepth)
	}
	if opts.requestedByUser {
		if err := s.checkAtomicTermination("commit"); err != nil {
			return err
		}
	}
	ctx = s.AnnotateCtx(ctx)
	if s.settingsLogStatementText() {
		log.Infof(ctx, "Committing transaction %s: %s", s.txn.ID(), s.statementText())
	}

	if err := s.endTransactionActivationHandling(ctx, false /* forRollback */); err != nil {
		return err
	}
	if s.tempTables != nil {
		if err := s.tempTables.Commit(ctx, s.tempTableEnv(), opts.mode == commitXA); err != nil {
			return err
		}
	}
	s.savepointLevel = 0

	if opts.mode != commitNoSync {
		if err := s.finishDDTransaction(ctx); err != nil {
			return err
		}
	}
	if opts.commitStore {
		if fn := s.server.cfg.TestingKnobs.BeforeCommit; fn != nil {
			if err := fn(ctx, s.txn.ID()); err != nil {
				return err
			}
		}
		if err := s.commitStore(ctx, opts); err != nil {
			if !opts.requestedByUser {
				// The session cannot tell what the store kept.
				err = pgerror.WithSeverity(err, pgerror.SeveritySession)
			}
			return err
		}
		if opts.mode == commitXA && s.tempTables != nil {
			if err := s.tempTables.PostXACommit(ctx, s.tempTableEnv()); err != nil {
				return err
			}
			if err := s.txn.Commit(ctx); err != nil {
				return err
			}
		}
		// The store forgot every savepoint.
		if err := s.resetSavepoints(ctx); err != nil {
			return err
		}
	}
	s.server.Metrics.TxnCommits.Inc(1)
	return nil
}

func (s *Session) commitStore(ctx context.Context, opts commitOptions) error {
	switch opts.mode {
	case commitNoSync:
		return s.txn.CommitNoSync(ctx, opts.flag)
	case commitXA:
		xa, ok := s.txn.(txnctl.XAController)
		if !ok {
			return errors.AssertionFailedf("transaction %s does not support XA", s.txn.ID())
		}
		return xa.XACommit(ctx, opts.onePhase)
	default:
		return s.txn.Commit(ctx)
	}
}

// UserRollback rolls back the transaction on behalf of a ROLLBACK statement
// or the client API.
func (s *Session) UserRollback(ctx context.Context) error {
	return s.doRollback(ctx, false /* xa */, true /* requestedByUser */)
}

// InternalRollback rolls back the transaction on behalf of the system.
func (s *Session) InternalRollback(ctx context.Context) error {
	return s.doRollback(ctx, false /* xa */, false /* requestedByUser */)
}

// XARollback rolls back a global transaction.
func (s *Session) XARollback(ctx context.Context) error {
	return s.doRollback(ctx, true /* xa */, true /* requestedByUser */)
}

func (s *Session) doRollback(ctx context.Context, xa bool, requestedByUser bool) error {
	if requestedByUser {
		if err := s.checkAtomicTermination("rollback"); err != nil {
			return err
		}
	}
	ctx = s.AnnotateCtx(ctx)
	if s.settingsLogStatementText() {
		log.Infof(ctx, "Rolling back transaction %s: %s", s.txn.ID(), s.statementText())
	}

	if err := s.endTransactionActivationHandling(ctx, true /* forRollback */); err != nil {
		return err
	}
	s.savepointLevel = 0
	if s.tempTables != nil {
		if err := s.tempTables.Rollback(ctx, s.tempTableEnv(), 0); err != nil {
			return err
		}
	}

	wroteDictionary := s.ddWriteMode
	if err := s.finishDDTransaction(ctx); err != nil {
		return err
	}
	if s.nested != nil {
		s.nested.Destroy(ctx)
		s.nested = nil
		s.queryNestingDepth = 0
	}

	if fn := s.server.cfg.TestingKnobs.BeforeRollback; fn != nil {
		fn(ctx, s.txn.ID())
	}
	if xa {
		xaTxn, ok := s.txn.(txnctl.XAController)
		if !ok {
			return errors.AssertionFailedf("transaction %s does not support XA", s.txn.ID())
		}
		if err := xaTxn.XARollback(ctx); err != nil {
			return err
		}
	} else if err := s.txn.Abort(ctx); err != nil {
		return err
	}
	if err := s.resetSavepoints(ctx); err != nil {
		return err
	}

	// Plans compiled against the rolled back dictionary changes are stale.
	if wroteDictionary {
		s.server.stmtCache.AgeOut(ctx)
	}
	s.server.Metrics.TxnRollbacks.Inc(1)
	return nil
}

// resetSavepoints re-establishes the internal savepoints of the statements
// on the stack after the transaction they lived in ended, outermost first.
func (s *Session) resetSavepoints(ctx context.Context) error {
	for _, f := range s.stmts {
		if err := f.ResetSavepoint(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SetSavepoint sets a user savepoint. An empty name is replaced with a name
// unique within the session. The name of the savepoint is returned.
func (s *Session) SetSavepoint(
	ctx context.Context, name string, kind txnctl.SavepointKind,
) (string, error) {
	if !kind.IsUser() {
		return "", errors.AssertionFailedf("%s savepoint set through the user interface", kind)
	}
	if name == "" {
		name = s.UniqueSavepointName()
	}
	level, err := s.txn.SetSavepoint(ctx, name, kind)
	if err != nil {
		return "", err
	}
	s.savepointLevel = level
	return name, nil
}

// ReleaseSavepoint releases a user savepoint and every savepoint set after
// it.
func (s *Session) ReleaseSavepoint(ctx context.Context, name string, kind txnctl.SavepointKind) error {
	level, err := s.txn.ReleaseSavepoint(ctx, name, kind)
	if err != nil {
		return err
	}
	s.savepointLevel = level
	if s.tempTables != nil {
		s.tempTables.ReleaseSavepoint(level)
	}
	return nil
}

// RollbackToSavepoint undoes the work done since a user savepoint was set.
// The savepoint itself is kept.
func (s *Session) RollbackToSavepoint(
	ctx context.Context, name string, kind txnctl.SavepointKind,
) error {
	ctx = s.AnnotateCtx(ctx)
	if err := s.endTransactionActivationHandling(ctx, true /* forRollback */); err != nil {
		return err
	}
	level, err := s.txn.RollbackToSavepoint(ctx, name, kind)
	if err != nil {
		return err
	}
	s.savepointLevel = level
	if s.tempTables != nil {
		if err := s.tempTables.Rollback(ctx, s.tempTableEnv(), level); err != nil {
			return err
		}
	}
	s.server.Metrics.SavepointRollbacks.Inc(1)
	return nil
}

// SetStatementSavepoint is part of the stmtctx.Owner interface.
func (s *Session) SetStatementSavepoint(ctx context.Context, name string) error {
	level, err := s.txn.SetSavepoint(ctx, name, txnctl.InternalSavepoint)
	if err != nil {
		return err
	}
	s.savepointLevel = level
	return nil
}

// ReleaseStatementSavepoint is part of the stmtctx.Owner interface.
func (s *Session) ReleaseStatementSavepoint(ctx context.Context, name string) error {
	level, err := s.txn.ReleaseSavepoint(ctx, name, txnctl.InternalSavepoint)
	if err != nil {
		return err
	}
	s.savepointLevel = level
	if s.tempTables != nil {
		s.tempTables.ReleaseSavepoint(level)
	}
	return nil
}

// RollbackToStatementSavepoint is part of the stmtctx.Owner interface. It
// undoes the statement's work, including its temporary table changes, and
// releases the savepoint.
func (s *Session) RollbackToStatementSavepoint(ctx context.Context, name string) error {
	level, err := s.txn.RollbackToSavepoint(ctx, name, txnctl.InternalSavepoint)
	if err != nil {
		return err
	}
	s.savepointLevel = level
	if s.tempTables != nil {
		if err := s.tempTables.Rollback(ctx, s.tempTableEnv(), level); err != nil {
			return err
		}
	}
	s.server.Metrics.StatementRollbacks.Inc(1)
	return s.ReleaseStatementSavepoint(ctx, name)
}

// BeginNestedTransaction opens the nested transaction used for
// compile-time work. Calls nest: only the first one starts a store
// transaction.
func (s *Session) BeginNestedTransaction(ctx context.Context, readOnly bool) error {
	if s.nested == nil {
		nested, err := s.txn.StartNestedUserTransaction(ctx, readOnly)
		if err != nil {
			return err
		}
		s.nested = nested
	}
	s.queryNestingDepth++
	return nil
}

// CommitNestedTransaction ends one BeginNestedTransaction. The nested
// transaction is committed and destroyed by the call matching the first
// BeginNestedTransaction.
func (s *Session) CommitNestedTransaction(ctx context.Context) error {
	if s.queryNestingDepth == 0 || s.nested == nil {
		return pgerror.New(pgcode.NestedTransactionMismatch,
			"no nested transaction to commit")
	}
	s.queryNestingDepth--
	if s.queryNestingDepth > 0 {
		return nil
	}
	nested := s.nested
	s.nested = nil
	err := nested.Commit(ctx)
	nested.Destroy(ctx)
	return err
}

// QueryNestingDepth returns the number of open BeginNestedTransaction
// calls.
func (s *Session) QueryNestingDepth() int { return s.queryNestingDepth }

// CompileTxn returns the transaction compile-time work runs in: the nested
// transaction when one is open.
func (s *Session) CompileTxn() txnctl.Controller {
	if s.nested != nil {
		return s.nested
	}
	return s.txn
}

// ExecuteTxn returns the transaction statements execute in.
func (s *Session) ExecuteTxn() txnctl.Controller { return s.txn }

// SetDataDictionaryWriteMode records that the transaction writes to the data
// dictionary. The dictionary is told when the transaction finishes.
func (s *Session) SetDataDictionaryWriteMode() { s.ddWriteMode = true }

// DataDictionaryInWriteMode returns whether the transaction writes to the
// data dictionary.
func (s *Session) DataDictionaryInWriteMode() bool { return s.ddWriteMode }

func (s *Session) finishDDTransaction(ctx context.Context) error {
	if !s.ddWriteMode {
		return nil
	}
	s.ddWriteMode = false
	return s.server.cfg.DataDictionary.TransactionFinished(ctx)
}

// SetIsolationLevel changes the isolation level of new transactions. A
// transaction with outstanding work is committed first.
func (s *Session) SetIsolationLevel(ctx context.Context, level sessiondata.IsolationLevel) error {
	if f := s.CurrentStatementContext(); f != nil && f.InTrigger() {
		return pgerror.Newf(pgcode.IsolationChangeInTrigger,
			"cannot change the isolation level inside trigger %s", s.currentTriggerName())
	}
	if s.sessionData.Isolation != level {
		if err := s.verifyAllHeldResultSetsAreClosed(); err != nil {
			return err
		}
	}
	if !s.txn.IsIdle() {
		if s.txn.IsGlobal() {
			return pgerror.New(pgcode.InvalidTransactionState,
				"cannot change the isolation level of a global transaction")
		}
		if err := s.UserCommit(ctx); err != nil {
			return err
		}
	}
	s.sessionData.Isolation = level
	s.sessionData.IsolationExplicitlySet = true
	return nil
}

// IsolationLevel returns the isolation level of new transactions.
func (s *Session) IsolationLevel() sessiondata.IsolationLevel { return s.sessionData.Isolation }

// SetPrepareIsolationLevel sets the isolation level statements are prepared
// under until the client sets one explicitly.
func (s *Session) SetPrepareIsolationLevel(level sessiondata.IsolationLevel) {
	s.sessionData.PrepareIsolation = level
}

// PrepareIsolationLevel returns the isolation level statements are
// prepared under.
func (s *Session) PrepareIsolationLevel() sessiondata.IsolationLevel {
	return s.sessionData.PrepareIsolationLevel()
}

// SetReadOnly changes the session's read-only mode. The transaction must
// not have done any work yet.
func (s *Session) SetReadOnly(on bool) error {
	return s.auth.SetReadOnly(on, s.txn.IsPristine())
}

// ReadOnly returns whether the session is read-only.
func (s *Session) ReadOnly() bool { return s.auth.ReadOnly() }

// Authorize checks op against the session's read-only mode and the SQL
// ceiling of the running statement.
func (s *Session) Authorize(op sessionauth.Operation) error {
	ceiling := sessionauth.ModifiesSQLData
	if f := s.CurrentStatementContext(); f != nil {
		ceiling = f.SQLAllowed()
	}
	return s.auth.Authorize(op, ceiling)
}
