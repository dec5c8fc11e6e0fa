// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package temptable tracks a session's declared temporary tables across
// transaction and savepoint boundaries.
//
// Every entry carries three savepoint-level markers: the level at which the
// table was declared, dropped, and last modified. A marker of -1 means "not
// in the current unit of work". Commit, rollback and savepoint release
// reinterpret the markers against the session's savepoint level:
//
//   - Release to level L clamps every marker above L down to L.
//   - Rollback to level L undoes every marker at or above L.
//   - Commit forgets dropped tables and resets the surviving markers to -1.
//
// A table dropped and declared again in the same transaction is represented
// by two entries: the soft-dropped one, restorable on rollback, and the live
// one. At most one entry per name is live.
package temptable

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/sessioncore/pkg/sql/catalog"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgcode"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/storage/txnctl"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
)

// NotSet is the marker value for "not in the current unit of work".
const NotSet = -1

// Storage creates and destroys the conglomerates backing temporary tables.
// txnctl.Controller implements it.
type Storage interface {
	CreateConglomerate(ctx context.Context, spec txnctl.ConglomerateSpec) (txnctl.ConglomerateID, error)
	DropConglomerate(ctx context.Context, id txnctl.ConglomerateID) error
}

// Invalidator invalidates the compiled plans depending on a table.
// catalog.DependencyManager implements it.
type Invalidator interface {
	InvalidateFor(ctx context.Context, p catalog.Provider, action catalog.InvalidationAction) error
}

// Env bundles the collaborators used by registry transitions.
type Env struct {
	Storage     Storage
	Invalidator Invalidator
	// HasHeldCursor reports whether a holdable cursor is open on the named
	// table. Nil means no cursor is ever held.
	HasHeldCursor func(table string) bool
}

func (e Env) hasHeldCursor(table string) bool {
	return e.HasHeldCursor != nil && e.HasHeldCursor(table)
}

func (e Env) invalidate(
	ctx context.Context, d *catalog.TableDescriptor, action catalog.InvalidationAction,
) error {
	if e.Invalidator == nil {
		return nil
	}
	return e.Invalidator.InvalidateFor(ctx, d, action)
}

// Info is the registry entry of one temporary table.
type Info struct {
	Desc *catalog.TableDescriptor
	// DeclaredAt is the savepoint level of the declaration, or NotSet once
	// a commit made the table pre-existing.
	DeclaredAt int
	// DroppedAt is the savepoint level of a drop in the current unit of
	// work.
	DroppedAt int
	// ModifiedAt is the savepoint level of the last data change in the
	// current unit of work.
	ModifiedAt int
}

func (i *Info) matches(name string) bool {
	return i.DroppedAt == NotSet && i.Desc.Name == name
}

// SafeFormat implements redact.SafeFormatter.
func (i *Info) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%v: declared=%d dropped=%d modified=%d",
		i.Desc, i.DeclaredAt, i.DroppedAt, i.ModifiedAt)
}

func (i *Info) String() string { return redact.StringWithoutMarkers(i) }

// Registry holds the temporary tables of one session. The zero value is an
// empty registry. A Registry is not safe for concurrent use.
type Registry struct {
	entries []*Info
}

func (r *Registry) find(name string) (int, *Info) {
	for i, e := range r.entries {
		if e.matches(name) {
			return i, e
		}
	}
	return -1, nil
}

func (r *Registry) remove(i int) {
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
}

// Len returns the number of entries, including soft-dropped ones.
func (r *Registry) Len() int { return len(r.entries) }

// Entries returns a copy of the registry's entries in declaration order.
func (r *Registry) Entries() []Info {
	res := make([]Info, len(r.entries))
	for i, e := range r.entries {
		res[i] = *e
	}
	return res
}

// Lookup returns the descriptor of the live table with the given name, or
// nil.
func (r *Registry) Lookup(name string) *catalog.TableDescriptor {
	if _, e := r.find(name); e != nil {
		return e.Desc
	}
	return nil
}

// Declare creates the storage for a new temporary table and registers it at
// the given savepoint level.
func (r *Registry) Declare(
	ctx context.Context, env Env, desc *catalog.TableDescriptor, level int,
) (*catalog.TableDescriptor, error) {
	if _, e := r.find(desc.Name); e != nil {
		return nil, pgerror.Newf(pgcode.DuplicateRelation,
			"declared global temporary table %s already exists in schema %s",
			desc.Name, catalog.SessionSchemaName)
	}
	id, err := env.Storage.CreateConglomerate(ctx, desc.ConglomerateSpec())
	if err != nil {
		return nil, pgerror.Wrapf(err, pgcode.System, "creating storage for %s", desc.Name)
	}
	desc = desc.WithHeapConglomerate(id)
	r.entries = append(r.entries, &Info{
		Desc:       desc,
		DeclaredAt: level,
		DroppedAt:  NotSet,
		ModifiedAt: NotSet,
	})
	log.VEventf(ctx, 2, "declared temporary table %v at level %d", desc, level)
	return desc, nil
}

// Drop drops the live table with the given name. It returns false if there
// is no such table. A table declared at the current level is forgotten and
// its storage destroyed; a table declared earlier is only marked dropped so
// that a rollback can restore it.
func (r *Registry) Drop(ctx context.Context, env Env, name string, level int) (bool, error) {
	i, e := r.find(name)
	if e == nil {
		return false, nil
	}
	if e.DeclaredAt > level {
		return false, errors.AssertionFailedf(
			"table %s declared at level %d above current level %d", name, e.DeclaredAt, level)
	}
	if err := env.invalidate(ctx, e.Desc, catalog.DropTable); err != nil {
		return false, err
	}
	if e.DeclaredAt == level {
		if err := env.Storage.DropConglomerate(ctx, e.Desc.HeapConglomerate); err != nil {
			return false, err
		}
		r.remove(i)
		return true, nil
	}
	e.DroppedAt = level
	return true, nil
}

// MarkModified records a data change to the named table at the given level.
func (r *Registry) MarkModified(name string, level int) error {
	_, e := r.find(name)
	if e == nil {
		return pgerror.Newf(pgcode.UndefinedTable,
			"declared global temporary table %s does not exist", name)
	}
	e.ModifiedAt = level
	return nil
}

// ReleaseSavepoint re-synchronizes the markers after the savepoint stack was
// popped down to level. Markers at level are already correct.
func (r *Registry) ReleaseSavepoint(level int) {
	for _, e := range r.entries {
		if e.DroppedAt > level {
			e.DroppedAt = level
		}
		if e.DeclaredAt > level {
			e.DeclaredAt = level
		}
		if e.ModifiedAt > level {
			e.ModifiedAt = level
		}
	}
}

// replaceStorage swaps the table's conglomerate for a new, empty one.
func (r *Registry) replaceStorage(ctx context.Context, env Env, e *Info) error {
	id, err := env.Storage.CreateConglomerate(ctx, e.Desc.ConglomerateSpec())
	if err != nil {
		return pgerror.Wrapf(err, pgcode.System, "recreating storage for %s", e.Desc.Name)
	}
	if err := env.Storage.DropConglomerate(ctx, e.Desc.HeapConglomerate); err != nil {
		return err
	}
	e.Desc = e.Desc.WithHeapConglomerate(id)
	return nil
}

// Commit applies the end of a unit of work: dropped tables are forgotten and
// the others become pre-existing. ON COMMIT DELETE ROWS tables without a held
// cursor are then emptied, except in XA transactions where the store cannot
// be changed before the commit; see PostXACommit.
func (r *Registry) Commit(ctx context.Context, env Env, xa bool) error {
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.DroppedAt != NotSet {
			if err := env.Storage.DropConglomerate(ctx, e.Desc.HeapConglomerate); err != nil {
				return err
			}
			r.remove(i)
			continue
		}
		e.DeclaredAt = NotSet
		e.ModifiedAt = NotSet
	}

	for _, e := range r.entries {
		if !e.Desc.OnCommitDeleteRows || env.hasHeldCursor(e.Desc.Name) {
			continue
		}
		if err := env.invalidate(ctx, e.Desc, catalog.DropTable); err != nil {
			return err
		}
		if xa {
			continue
		}
		if err := r.replaceStorage(ctx, env, e); err != nil {
			return err
		}
	}
	return nil
}

// PostXACommit drops every temporary table after an XA commit. Global
// transactions cannot carry temporary tables from one commit to the next.
func (r *Registry) PostXACommit(ctx context.Context, env Env) error {
	for len(r.entries) > 0 {
		e := r.entries[0]
		if err := env.Storage.DropConglomerate(ctx, e.Desc.HeapConglomerate); err != nil {
			return err
		}
		r.remove(0)
	}
	return nil
}

// Rollback undoes every marker at or above level:
//
//   - a table declared in the undone scope is forgotten, and its storage is
//     destroyed unless it was dropped there too;
//   - a table declared earlier but dropped in the undone scope is restored
//     with empty storage;
//   - a table declared earlier and modified in the undone scope is emptied.
func (r *Registry) Rollback(ctx context.Context, env Env, level int) error {
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		switch {
		case e.DeclaredAt >= level:
			if e.DroppedAt == NotSet {
				if err := env.invalidate(ctx, e.Desc, catalog.DropTable); err != nil {
					return err
				}
				if err := env.Storage.DropConglomerate(ctx, e.Desc.HeapConglomerate); err != nil {
					return err
				}
				r.remove(i)
			} else if e.DroppedAt >= level {
				if err := env.Storage.DropConglomerate(ctx, e.Desc.HeapConglomerate); err != nil {
					return err
				}
				r.remove(i)
			}

		case e.DroppedAt >= level:
			if err := r.replaceStorage(ctx, env, e); err != nil {
				return err
			}
			e.DroppedAt = NotSet
			e.ModifiedAt = NotSet

		case e.ModifiedAt >= level:
			e.ModifiedAt = NotSet
			if err := env.invalidate(ctx, e.Desc, catalog.TruncateTable); err != nil {
				return err
			}
			if err := r.replaceStorage(ctx, env, e); err != nil {
				return err
			}
		}
	}
	return nil
}

// DropAll destroys every temporary table. All tables are attempted; the
// errors are combined.
func (r *Registry) DropAll(ctx context.Context, env Env) error {
	var err error
	for _, e := range r.entries {
		if e.DroppedAt == NotSet {
			err = errors.CombineErrors(err, env.invalidate(ctx, e.Desc, catalog.DropTable))
		}
		err = errors.CombineErrors(err, env.Storage.DropConglomerate(ctx, e.Desc.HeapConglomerate))
	}
	r.entries = nil
	return err
}

// SafeFormat implements redact.SafeFormatter.
func (r *Registry) SafeFormat(w redact.SafePrinter, _ rune) {
	for i, e := range r.entries {
		if i > 0 {
			w.SafeRune('\n')
		}
		w.Print(e)
	}
}

func (r *Registry) String() string { return redact.StringWithoutMarkers(r) }
