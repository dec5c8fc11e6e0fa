// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/sql/catalog"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgcode"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/sql/temptable"
)

func (s *Session) tempTableEnv() temptable.Env {
	return temptable.Env{
		Storage:       s.txn,
		Invalidator:   s.DependencyManager(),
		HasHeldCursor: s.anyActivationHasHoldCursor,
	}
}

// DeclareTempTable declares a temporary table in the SESSION schema at the
// current savepoint level.
func (s *Session) DeclareTempTable(
	ctx context.Context, desc *catalog.TableDescriptor,
) (*catalog.TableDescriptor, error) {
	if desc.Schema != catalog.SessionSchemaName {
		return nil, errors.AssertionFailedf("temporary table %s declared outside schema %s",
			desc.Name, catalog.SessionSchemaName)
	}
	if s.tempTables == nil {
		s.tempTables = &temptable.Registry{}
	}
	return s.tempTables.Declare(s.AnnotateCtx(ctx), s.tempTableEnv(), desc, s.savepointLevel)
}

// DropTempTable drops the named temporary table.
func (s *Session) DropTempTable(ctx context.Context, name string) error {
	if s.tempTables != nil {
		ok, err := s.tempTables.Drop(s.AnnotateCtx(ctx), s.tempTableEnv(), name, s.savepointLevel)
		if err != nil || ok {
			return err
		}
	}
	return pgerror.Newf(pgcode.UndefinedTable,
		"declared global temporary table %s does not exist", name)
}

// MarkTempTableModified records a data change to the named temporary table.
func (s *Session) MarkTempTableModified(name string) error {
	if s.tempTables == nil {
		return pgerror.Newf(pgcode.UndefinedTable,
			"declared global temporary table %s does not exist", name)
	}
	return s.tempTables.MarkModified(name, s.savepointLevel)
}

// LookupTempTable returns the descriptor of the named live temporary table,
// or nil.
func (s *Session) LookupTempTable(name string) *catalog.TableDescriptor {
	if s.tempTables == nil {
		return nil
	}
	return s.tempTables.Lookup(name)
}

// TempTables returns the session's temporary table entries.
func (s *Session) TempTables() []temptable.Info {
	if s.tempTables == nil {
		return nil
	}
	return s.tempTables.Entries()
}

// ResetFromPool prepares the session for reuse by another client of a
// connection pool. Every temporary table is dropped and the drop is
// committed, the default schema is made current again and the access
// level is recomputed from the current settings. All steps run; the errors
// are combined.
func (s *Session) ResetFromPool(ctx context.Context) error {
	ctx = s.AnnotateCtx(ctx)
	s.identity.set = false
	s.identity.value = 0

	var err error
	if s.tempTables != nil {
		err = errors.CombineErrors(err, s.tempTables.DropAll(ctx, s.tempTableEnv()))
		s.tempTables = nil
		err = errors.CombineErrors(err, s.InternalCommit(ctx, true /* commitStore */))
	}
	s.sessionData.ResetSchema()
	err = errors.CombineErrors(err, s.auth.Refresh(ctx))
	return err
}
