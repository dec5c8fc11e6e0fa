// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memstore

import (
	"context"
	"testing"

	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgcode"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/storage/txnctl"
	"github.com/cockroachdb/sessioncore/pkg/util/leaktest"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
	"github.com/stretchr/testify/require"
)

func openEngine(t *testing.T) *Engine {
	e, err := Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func requireValue(t *testing.T, txn *Txn, id txnctl.ConglomerateID, key, expected string) {
	t.Helper()
	v, ok, err := txn.Get(context.Background(), id, []byte(key))
	require.NoError(t, err)
	if expected == "" {
		require.False(t, ok, "unexpected value %q for %s", v, key)
		return
	}
	require.True(t, ok, "missing value for %s", key)
	require.Equal(t, expected, string(v))
}

func TestCommitAndAbort(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	e := openEngine(t)

	txn := e.Begin(TxnOptions{})
	require.True(t, txn.IsIdle())
	id, err := txn.CreateConglomerate(ctx, txnctl.ConglomerateSpec{Columns: []string{"a"}})
	require.NoError(t, err)
	require.NoError(t, txn.Put(ctx, id, []byte("k1"), []byte("v1")))
	require.False(t, txn.IsPristine())
	require.Empty(t, e.Conglomerates())

	require.NoError(t, txn.Commit(ctx))
	require.True(t, txn.IsIdle())
	require.Equal(t, []txnctl.ConglomerateID{id}, e.Conglomerates())
	requireValue(t, txn, id, "k1", "v1")
	require.False(t, txn.IsIdle())
	require.True(t, txn.IsPristine())

	require.NoError(t, txn.Put(ctx, id, []byte("k2"), []byte("v2")))
	require.NoError(t, txn.Delete(ctx, id, []byte("k1")))
	requireValue(t, txn, id, "k1", "")
	require.NoError(t, txn.Abort(ctx))
	requireValue(t, txn, id, "k1", "v1")
	requireValue(t, txn, id, "k2", "")
	require.Equal(t, 1, txn.Commits())
	require.Equal(t, 1, txn.Aborts())
}

func TestDropConglomerate(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	e := openEngine(t)

	txn := e.Begin(TxnOptions{})
	a, err := txn.CreateConglomerate(ctx, txnctl.ConglomerateSpec{})
	require.NoError(t, err)
	b, err := txn.CreateConglomerate(ctx, txnctl.ConglomerateSpec{})
	require.NoError(t, err)
	require.NoError(t, txn.Put(ctx, a, []byte("k"), []byte("a")))
	require.NoError(t, txn.Put(ctx, b, []byte("k"), []byte("b")))
	require.NoError(t, txn.Commit(ctx))

	require.NoError(t, txn.DropConglomerate(ctx, a))
	_, _, err = txn.Get(ctx, a, []byte("k"))
	require.Equal(t, pgcode.UndefinedTable, pgerror.GetPGCode(err))
	require.Equal(t, pgcode.UndefinedTable, pgerror.GetPGCode(txn.DropConglomerate(ctx, a)))
	require.NoError(t, txn.CommitNoSync(ctx, txnctl.ReleaseLocks))

	require.Equal(t, []txnctl.ConglomerateID{b}, e.Conglomerates())
	requireValue(t, txn, b, "k", "b")
	v, ok, err := e.get(a, []byte("k"))
	require.NoError(t, err)
	require.False(t, ok, "dropped row still present: %q", v)

	// Identifiers are never reused.
	c, err := txn.CreateConglomerate(ctx, txnctl.ConglomerateSpec{})
	require.NoError(t, err)
	require.Greater(t, int64(c), int64(b))
}

func TestSavepoints(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	e := openEngine(t)

	txn := e.Begin(TxnOptions{})
	id, err := txn.CreateConglomerate(ctx, txnctl.ConglomerateSpec{})
	require.NoError(t, err)
	require.NoError(t, txn.Commit(ctx))

	level, err := txn.SetSavepoint(ctx, "s1", txnctl.SQLSavepoint)
	require.NoError(t, err)
	require.Equal(t, 1, level)
	require.NoError(t, txn.Put(ctx, id, []byte("k"), []byte("1")))

	// SQL savepoints do not nest inside user savepoints.
	_, err = txn.SetSavepoint(ctx, "s2", txnctl.SQLSavepoint)
	require.Equal(t, pgcode.SavepointNestingNotAllowed, pgerror.GetPGCode(err))
	_, err = txn.SetSavepoint(ctx, "s1", txnctl.APISavepoint)
	require.Equal(t, pgcode.DuplicateSavepoint, pgerror.GetPGCode(err))

	level, err = txn.SetSavepoint(ctx, "api", txnctl.APISavepoint)
	require.NoError(t, err)
	require.Equal(t, 2, level)
	level, err = txn.SetSavepoint(ctx, "ISSP1", txnctl.InternalSavepoint)
	require.NoError(t, err)
	require.Equal(t, 3, level)
	require.NoError(t, txn.Put(ctx, id, []byte("k"), []byte("2")))

	// Internal names are not visible to user lookups.
	_, err = txn.ReleaseSavepoint(ctx, "ISSP1", txnctl.SQLSavepoint)
	require.Equal(t, pgcode.InvalidSavepointSpecification, pgerror.GetPGCode(err))

	level, err = txn.RollbackToSavepoint(ctx, "api", txnctl.APISavepoint)
	require.NoError(t, err)
	require.Equal(t, 2, level)
	require.Equal(t, []string{"s1", "api"}, txn.SavepointNames())
	requireValue(t, txn, id, "k", "1")

	level, err = txn.RollbackToSavepoint(ctx, "s1", txnctl.SQLSavepoint)
	require.NoError(t, err)
	require.Equal(t, 1, level)
	requireValue(t, txn, id, "k", "")

	level, err = txn.ReleaseSavepoint(ctx, "s1", txnctl.SQLSavepoint)
	require.NoError(t, err)
	require.Equal(t, 0, level)
	_, err = txn.RollbackToSavepoint(ctx, "s1", txnctl.SQLSavepoint)
	require.Equal(t, pgcode.InvalidSavepointSpecification, pgerror.GetPGCode(err))

	require.NoError(t, txn.Abort(ctx))
	require.Empty(t, txn.SavepointNames())
}

func TestNestedTransaction(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	e := openEngine(t)

	parent := e.Begin(TxnOptions{})
	id, err := parent.CreateConglomerate(ctx, txnctl.ConglomerateSpec{})
	require.NoError(t, err)
	require.NoError(t, parent.Commit(ctx))
	require.NoError(t, parent.Put(ctx, id, []byte("p"), []byte("parent")))

	c, err := parent.StartNestedUserTransaction(ctx, true /* readOnly */)
	require.NoError(t, err)
	child := c.(*Txn)
	// The child does not see the parent's uncommitted work.
	requireValue(t, child, id, "p", "")
	err = child.Put(ctx, id, []byte("c"), []byte("child"))
	require.Equal(t, pgcode.ReadOnlySQLTransaction, pgerror.GetPGCode(err))
	require.NoError(t, child.Commit(ctx))
	child.Destroy(ctx)
	require.True(t, child.Destroyed())
	require.Error(t, child.Commit(ctx))

	c, err = parent.StartNestedUserTransaction(ctx, false /* readOnly */)
	require.NoError(t, err)
	require.NoError(t, c.(*Txn).Put(ctx, id, []byte("c"), []byte("child")))
	require.NoError(t, c.Commit(ctx))
	c.Destroy(ctx)
	requireValue(t, parent, id, "c", "child")
	requireValue(t, parent, id, "p", "parent")
}

func TestReadOnlyTemporary(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	e := openEngine(t)

	txn := e.Begin(TxnOptions{ReadOnly: true})
	_, err := txn.CreateConglomerate(ctx, txnctl.ConglomerateSpec{})
	require.Equal(t, pgcode.ReadOnlySQLTransaction, pgerror.GetPGCode(err))
	id, err := txn.CreateConglomerate(ctx, txnctl.ConglomerateSpec{Temporary: true})
	require.NoError(t, err)
	require.NoError(t, txn.Commit(ctx))
	spec, ok := e.Spec(id)
	require.True(t, ok)
	require.True(t, spec.Temporary)
}

func TestXA(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	e := openEngine(t)

	local := e.Begin(TxnOptions{})
	require.Error(t, local.XACommit(ctx, true))
	require.Error(t, local.XARollback(ctx))

	global := e.Begin(TxnOptions{Global: true})
	require.True(t, global.IsGlobal())
	require.Contains(t, global.ID(), "xa-")
	id, err := global.CreateConglomerate(ctx, txnctl.ConglomerateSpec{})
	require.NoError(t, err)
	require.NoError(t, global.XARollback(ctx))
	require.Empty(t, e.Conglomerates())

	id, err = global.CreateConglomerate(ctx, txnctl.ConglomerateSpec{})
	require.NoError(t, err)
	require.NoError(t, global.XACommit(ctx, false))
	require.Equal(t, []txnctl.ConglomerateID{id}, e.Conglomerates())
}

func TestCommitNoSyncReadOnlyInit(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	e := openEngine(t)

	txn := e.Begin(TxnOptions{})
	require.NoError(t, txn.CommitNoSync(ctx, txnctl.ReadOnlyInit))
	require.Equal(t, txnctl.ReadOnlyInit, txn.LastCommitFlag())
	_, err := txn.CreateConglomerate(ctx, txnctl.ConglomerateSpec{})
	require.Equal(t, pgcode.ReadOnlySQLTransaction, pgerror.GetPGCode(err))
}

func TestTemporaryConglomeratesAreNotLogged(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()
	e := openEngine(t)

	txn := e.Begin(TxnOptions{})
	id, err := txn.CreateConglomerate(ctx, txnctl.ConglomerateSpec{Temporary: true})
	require.NoError(t, err)
	_, err = txn.SetSavepoint(ctx, "s", txnctl.SQLSavepoint)
	require.NoError(t, err)
	require.NoError(t, txn.Put(ctx, id, []byte("k"), []byte("v")))
	require.True(t, txn.IsPristine())

	_, err = txn.RollbackToSavepoint(ctx, "s", txnctl.SQLSavepoint)
	require.NoError(t, err)
	require.NoError(t, txn.Abort(ctx))
	requireValue(t, txn, id, "k", "v")

	require.NoError(t, txn.DropConglomerate(ctx, id))
	require.NoError(t, txn.Abort(ctx))
	require.Empty(t, e.Conglomerates())
}
