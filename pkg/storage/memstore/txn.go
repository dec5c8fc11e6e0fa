// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package memstore

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgcode"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/storage/txnctl"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
)

type opKind int

const (
	opCreate opKind = iota
	opDrop
	opPut
	opDelete
)

// op is one entry of a transaction's operation log.
type op struct {
	kind  opKind
	id    txnctl.ConglomerateID
	spec  txnctl.ConglomerateSpec
	key   []byte
	value []byte
}

type savepoint struct {
	name string
	kind txnctl.SavepointKind
	// opIdx is the length of the operation log when the savepoint was set.
	opIdx int
}

// Txn is a transaction handle. It is reused across units of work: Commit and
// Abort leave it ready for the next transaction. A Txn is not safe for
// concurrent use.
type Txn struct {
	e        *Engine
	id       uint64
	parent   *Txn
	readOnly bool
	global   bool

	ops        []op
	savepoints []savepoint
	// read is set once the current unit of work has read committed data.
	read      bool
	destroyed bool

	// Counters for tests.
	commits, aborts int
	lastFlag        txnctl.CommitFlag
}

var _ txnctl.XAController = (*Txn)(nil)

// ID implements txnctl.Controller.
func (t *Txn) ID() string {
	if t.global {
		return fmt.Sprintf("xa-%d", t.id)
	}
	return fmt.Sprintf("%d", t.id)
}

// IsGlobal implements txnctl.Controller.
func (t *Txn) IsGlobal() bool { return t.global }

// IsPristine implements txnctl.Controller.
func (t *Txn) IsPristine() bool { return len(t.ops) == 0 }

// IsIdle implements txnctl.Controller.
func (t *Txn) IsIdle() bool { return len(t.ops) == 0 && !t.read && len(t.savepoints) == 0 }

// Commits returns the number of units of work committed through t.
func (t *Txn) Commits() int { return t.commits }

// Aborts returns the number of units of work aborted through t.
func (t *Txn) Aborts() int { return t.aborts }

// LastCommitFlag returns the flag passed to the most recent CommitNoSync.
func (t *Txn) LastCommitFlag() txnctl.CommitFlag { return t.lastFlag }

// Destroyed returns true once Destroy has been called.
func (t *Txn) Destroyed() bool { return t.destroyed }

// SavepointNames returns the names on the savepoint stack, bottom first.
func (t *Txn) SavepointNames() []string {
	names := make([]string, len(t.savepoints))
	for i := range t.savepoints {
		names[i] = t.savepoints[i].name
	}
	return names
}

func (t *Txn) checkUsable() error {
	if t.destroyed {
		return errors.AssertionFailedf("transaction %s used after Destroy", t.ID())
	}
	return nil
}

func (t *Txn) checkWritable() error {
	if err := t.checkUsable(); err != nil {
		return err
	}
	if t.readOnly {
		return pgerror.New(pgcode.ReadOnlySQLTransaction,
			"cannot execute a write in a read-only transaction")
	}
	return nil
}

// checkRowWrite allows writes to temporary conglomerates from read-only
// transactions.
func (t *Txn) checkRowWrite(id txnctl.ConglomerateID) error {
	if t.e.isTemporary(id) {
		return t.checkUsable()
	}
	return t.checkWritable()
}

func (t *Txn) reset() {
	t.ops = t.ops[:0]
	t.savepoints = t.savepoints[:0]
	t.read = false
}

func (t *Txn) commit(ctx context.Context, opts *pebble.WriteOptions) error {
	if err := t.checkUsable(); err != nil {
		return err
	}
	if len(t.ops) > 0 {
		if err := t.e.apply(ctx, t.ops, opts); err != nil {
			return err
		}
	}
	log.VEventf(ctx, 2, "txn %s committed %d operations", t.ID(), len(t.ops))
	t.commits++
	t.reset()
	return nil
}

// Commit implements txnctl.Controller.
func (t *Txn) Commit(ctx context.Context) error {
	return t.commit(ctx, pebble.Sync)
}

// CommitNoSync implements txnctl.Controller.
func (t *Txn) CommitNoSync(ctx context.Context, flag txnctl.CommitFlag) error {
	if err := t.commit(ctx, pebble.NoSync); err != nil {
		return err
	}
	t.lastFlag = flag
	if flag == txnctl.ReadOnlyInit {
		t.readOnly = true
	}
	return nil
}

// Abort implements txnctl.Controller.
func (t *Txn) Abort(ctx context.Context) error {
	if err := t.checkUsable(); err != nil {
		return err
	}
	log.VEventf(ctx, 2, "txn %s aborted %d operations", t.ID(), len(t.ops))
	t.aborts++
	t.reset()
	return nil
}

// XACommit implements txnctl.XAController.
func (t *Txn) XACommit(ctx context.Context, onePhase bool) error {
	if !t.global {
		return errors.AssertionFailedf("XA commit of local transaction %s", t.ID())
	}
	log.VEventf(ctx, 2, "xa commit %s (one phase: %t)", t.ID(), onePhase)
	return t.commit(ctx, pebble.Sync)
}

// XARollback implements txnctl.XAController.
func (t *Txn) XARollback(ctx context.Context) error {
	if !t.global {
		return errors.AssertionFailedf("XA rollback of local transaction %s", t.ID())
	}
	return t.Abort(ctx)
}

// findSavepoint returns the stack position of the named savepoint. Internal
// and user savepoints live in separate namespaces.
func (t *Txn) findSavepoint(name string, kind txnctl.SavepointKind) int {
	for i := len(t.savepoints) - 1; i >= 0; i-- {
		sp := &t.savepoints[i]
		if sp.name == name && sp.kind.IsUser() == kind.IsUser() {
			return i
		}
	}
	return -1
}

func savepointNotFound(name string) error {
	return pgerror.Newf(pgcode.InvalidSavepointSpecification,
		"savepoint %s does not exist or is not active in the current transaction", name)
}

// SetSavepoint implements txnctl.Controller.
func (t *Txn) SetSavepoint(
	ctx context.Context, name string, kind txnctl.SavepointKind,
) (int, error) {
	if err := t.checkUsable(); err != nil {
		return 0, err
	}
	if t.findSavepoint(name, kind) >= 0 {
		return 0, pgerror.Newf(pgcode.DuplicateSavepoint,
			"a savepoint named %s already exists in the current transaction", name)
	}
	if kind == txnctl.SQLSavepoint {
		for i := range t.savepoints {
			if t.savepoints[i].kind.IsUser() {
				return 0, pgerror.Newf(pgcode.SavepointNestingNotAllowed,
					"savepoint %s cannot be nested inside savepoint %s", name, t.savepoints[i].name)
			}
		}
	}
	t.savepoints = append(t.savepoints, savepoint{name: name, kind: kind, opIdx: len(t.ops)})
	return len(t.savepoints), nil
}

// ReleaseSavepoint implements txnctl.Controller.
func (t *Txn) ReleaseSavepoint(
	ctx context.Context, name string, kind txnctl.SavepointKind,
) (int, error) {
	if err := t.checkUsable(); err != nil {
		return 0, err
	}
	i := t.findSavepoint(name, kind)
	if i < 0 {
		return 0, savepointNotFound(name)
	}
	t.savepoints = t.savepoints[:i]
	return i, nil
}

// RollbackToSavepoint implements txnctl.Controller.
func (t *Txn) RollbackToSavepoint(
	ctx context.Context, name string, kind txnctl.SavepointKind,
) (int, error) {
	if err := t.checkUsable(); err != nil {
		return 0, err
	}
	i := t.findSavepoint(name, kind)
	if i < 0 {
		return 0, savepointNotFound(name)
	}
	log.VEventf(ctx, 2, "txn %s rolling back %d operations to %s",
		t.ID(), len(t.ops)-t.savepoints[i].opIdx, name)
	t.ops = t.ops[:t.savepoints[i].opIdx]
	t.savepoints = t.savepoints[:i+1]
	return i + 1, nil
}

// StartNestedUserTransaction implements txnctl.Controller.
func (t *Txn) StartNestedUserTransaction(
	ctx context.Context, readOnly bool,
) (txnctl.Controller, error) {
	if err := t.checkUsable(); err != nil {
		return nil, err
	}
	return &Txn{
		e:        t.e,
		id:       t.e.nextTxnID.Add(1),
		parent:   t,
		readOnly: readOnly,
	}, nil
}

// Destroy implements txnctl.Controller.
func (t *Txn) Destroy(ctx context.Context) {
	if t.destroyed {
		return
	}
	if len(t.ops) > 0 {
		log.VEventf(ctx, 2, "txn %s destroyed with %d pending operations", t.ID(), len(t.ops))
	}
	t.reset()
	t.destroyed = true
}

// visible reports whether the conglomerate exists from t's point of view.
func (t *Txn) visible(id txnctl.ConglomerateID) bool {
	for i := len(t.ops) - 1; i >= 0; i-- {
		o := &t.ops[i]
		if o.id != id {
			continue
		}
		switch o.kind {
		case opCreate:
			return true
		case opDrop:
			return false
		}
	}
	return t.e.exists(id)
}

func undefined(id txnctl.ConglomerateID) error {
	return pgerror.Newf(pgcode.UndefinedTable, "conglomerate %d does not exist", id)
}

// CreateConglomerate implements txnctl.Controller. Temporary conglomerates
// are not logged: they are created immediately and survive Abort.
func (t *Txn) CreateConglomerate(
	ctx context.Context, spec txnctl.ConglomerateSpec,
) (txnctl.ConglomerateID, error) {
	// Temporary conglomerates may be created from read-only transactions.
	if !spec.Temporary {
		if err := t.checkWritable(); err != nil {
			return 0, err
		}
	} else if err := t.checkUsable(); err != nil {
		return 0, err
	}
	id := txnctl.ConglomerateID(t.e.nextID.Add(1))
	o := op{kind: opCreate, id: id, spec: spec}
	if spec.Temporary {
		return id, t.e.apply(ctx, []op{o}, pebble.NoSync)
	}
	t.ops = append(t.ops, o)
	return id, nil
}

// DropConglomerate implements txnctl.Controller. Dropping a temporary
// conglomerate takes effect immediately.
func (t *Txn) DropConglomerate(ctx context.Context, id txnctl.ConglomerateID) error {
	if err := t.checkUsable(); err != nil {
		return err
	}
	if !t.visible(id) {
		return undefined(id)
	}
	return t.log(ctx, op{kind: opDrop, id: id})
}

// log appends o to the operation log, or applies it right away if it
// targets a temporary conglomerate.
func (t *Txn) log(ctx context.Context, o op) error {
	if t.e.isTemporary(o.id) {
		return t.e.apply(ctx, []op{o}, pebble.NoSync)
	}
	t.ops = append(t.ops, o)
	return nil
}

// Put writes a row.
func (t *Txn) Put(ctx context.Context, id txnctl.ConglomerateID, key, value []byte) error {
	if err := t.checkRowWrite(id); err != nil {
		return err
	}
	if !t.visible(id) {
		return undefined(id)
	}
	return t.log(ctx, op{
		kind:  opPut,
		id:    id,
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

// Delete removes a row.
func (t *Txn) Delete(ctx context.Context, id txnctl.ConglomerateID, key []byte) error {
	if err := t.checkRowWrite(id); err != nil {
		return err
	}
	if !t.visible(id) {
		return undefined(id)
	}
	return t.log(ctx, op{kind: opDelete, id: id, key: append([]byte(nil), key...)})
}

// Get reads a row, observing t's own uncommitted writes.
func (t *Txn) Get(
	ctx context.Context, id txnctl.ConglomerateID, key []byte,
) ([]byte, bool, error) {
	if err := t.checkUsable(); err != nil {
		return nil, false, err
	}
	if !t.visible(id) {
		return nil, false, undefined(id)
	}
	t.read = true
	for i := len(t.ops) - 1; i >= 0; i-- {
		o := &t.ops[i]
		if o.id != id {
			continue
		}
		switch o.kind {
		case opPut:
			if string(o.key) == string(key) {
				return append([]byte(nil), o.value...), true, nil
			}
		case opDelete:
			if string(o.key) == string(key) {
				return nil, false, nil
			}
		case opCreate:
			// Created in this transaction; nothing committed below.
			return nil, false, nil
		}
	}
	return t.e.get(id, key)
}
