// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package memstore is an in-memory storage engine implementing the
// txnctl.Controller contract. Committed rows live in a pebble instance on an
// in-memory filesystem; uncommitted work is kept in per-transaction
// operation logs so that savepoints can discard a suffix of it. Temporary
// conglomerates are not logged: changes to them are applied immediately and
// are not undone by Abort or RollbackToSavepoint.
package memstore

import (
	"context"
	"encoding/binary"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/cockroachdb/sessioncore/pkg/storage/txnctl"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
	"github.com/google/btree"
)

// conglomerateItem is a committed, live conglomerate in the engine catalog.
type conglomerateItem struct {
	id   txnctl.ConglomerateID
	spec txnctl.ConglomerateSpec
}

var _ btree.Item = (*conglomerateItem)(nil)

// Less implements btree.Item.
func (c *conglomerateItem) Less(than btree.Item) bool {
	return c.id < than.(*conglomerateItem).id
}

// Engine owns the committed state shared by all transactions.
type Engine struct {
	db        *pebble.DB
	nextID    atomic.Int64
	nextTxnID atomic.Uint64

	mu struct {
		syncutil.RWMutex
		// catalog holds the committed, live conglomerates ordered by id.
		catalog *btree.BTree
	}
}

// Open creates an empty engine.
func Open(ctx context.Context) (*Engine, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, errors.Wrap(err, "opening pebble")
	}
	e := &Engine{db: db}
	e.mu.catalog = btree.New(8)
	log.VEventf(ctx, 2, "opened in-memory engine")
	return e, nil
}

// Close releases the engine's resources. Open transactions must not be used
// afterwards.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Begin starts a new top-level transaction.
func (e *Engine) Begin(opts TxnOptions) *Txn {
	return &Txn{
		e:        e,
		id:       e.nextTxnID.Add(1),
		readOnly: opts.ReadOnly,
		global:   opts.Global,
	}
}

// TxnOptions configure a transaction started with Begin.
type TxnOptions struct {
	// ReadOnly rejects every write.
	ReadOnly bool
	// Global marks a distributed (XA) transaction.
	Global bool
}

// Conglomerates returns the ids of all committed, live conglomerates in
// ascending order.
func (e *Engine) Conglomerates() []txnctl.ConglomerateID {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]txnctl.ConglomerateID, 0, e.mu.catalog.Len())
	e.mu.catalog.Ascend(func(i btree.Item) bool {
		ids = append(ids, i.(*conglomerateItem).id)
		return true
	})
	return ids
}

// Spec returns the committed spec of a conglomerate.
func (e *Engine) Spec(id txnctl.ConglomerateID) (txnctl.ConglomerateSpec, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	i := e.mu.catalog.Get(&conglomerateItem{id: id})
	if i == nil {
		return txnctl.ConglomerateSpec{}, false
	}
	return i.(*conglomerateItem).spec, true
}

func (e *Engine) exists(id txnctl.ConglomerateID) bool {
	_, ok := e.Spec(id)
	return ok
}

func (e *Engine) isTemporary(id txnctl.ConglomerateID) bool {
	spec, ok := e.Spec(id)
	return ok && spec.Temporary
}

// get reads a committed row.
func (e *Engine) get(id txnctl.ConglomerateID, key []byte) ([]byte, bool, error) {
	val, closer, err := e.db.Get(dataKey(id, key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), true, nil
}

// apply writes the operation log of a committing transaction.
func (e *Engine) apply(ctx context.Context, ops []op, opts *pebble.WriteOptions) error {
	b := e.db.NewBatch()
	defer b.Close()
	for _, o := range ops {
		switch o.kind {
		case opPut:
			if err := b.Set(dataKey(o.id, o.key), o.value, nil); err != nil {
				return err
			}
		case opDelete:
			if err := b.Delete(dataKey(o.id, o.key), nil); err != nil {
				return err
			}
		case opDrop:
			if err := b.DeleteRange(dataPrefix(o.id), dataPrefix(o.id+1), nil); err != nil {
				return err
			}
		}
	}
	if err := b.Commit(opts); err != nil {
		return errors.Wrap(err, "committing batch")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range ops {
		switch o.kind {
		case opCreate:
			e.mu.catalog.ReplaceOrInsert(&conglomerateItem{id: o.id, spec: o.spec})
		case opDrop:
			e.mu.catalog.Delete(&conglomerateItem{id: o.id})
		}
	}
	return nil
}

// dataPrefix returns the key prefix of all rows of a conglomerate.
func dataPrefix(id txnctl.ConglomerateID) []byte {
	k := make([]byte, 9)
	k[0] = 'c'
	binary.BigEndian.PutUint64(k[1:], uint64(id))
	return k
}

func dataKey(id txnctl.ConglomerateID, key []byte) []byte {
	return append(dataPrefix(id), key...)
}
