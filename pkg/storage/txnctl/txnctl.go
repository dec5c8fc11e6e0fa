// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package txnctl defines the contract between the session core and the
// low-level transaction handle of the storage engine.
package txnctl

import (
	"context"
	"fmt"
)

// ConglomerateID identifies a physical storage structure (a heap or an
// index). IDs are never reused.
type ConglomerateID int64

// InvalidConglomerateID is the zero ConglomerateID.
const InvalidConglomerateID ConglomerateID = 0

// SafeValue implements redact.SafeValue.
func (ConglomerateID) SafeValue() {}

// ConglomerateSpec describes the physical layout of a conglomerate to
// create. It is the template used to recreate a temporary table's storage.
type ConglomerateSpec struct {
	// Columns lists the column names stored in each row.
	Columns []string
	// Temporary marks conglomerates backing session-private tables.
	Temporary bool
}

// SavepointKind distinguishes who established a savepoint.
type SavepointKind int

const (
	// InternalSavepoint is established by a statement context for
	// statement-level undo.
	InternalSavepoint SavepointKind = iota
	// SQLSavepoint is established by a SAVEPOINT statement. SQL savepoints
	// cannot be nested inside other user savepoints.
	SQLSavepoint
	// APISavepoint is established through the client API.
	APISavepoint
)

func (k SavepointKind) String() string {
	switch k {
	case InternalSavepoint:
		return "internal"
	case SQLSavepoint:
		return "sql"
	case APISavepoint:
		return "api"
	default:
		return fmt.Sprintf("SavepointKind(%d)", int(k))
	}
}

// IsUser returns true for savepoints named by the client.
func (k SavepointKind) IsUser() bool {
	return k != InternalSavepoint
}

// CommitFlag modifies CommitNoSync.
type CommitFlag int

const (
	// ReleaseLocks releases all locks at commit. It is the default.
	ReleaseLocks CommitFlag = iota
	// KeepLocks retains locks past the commit.
	KeepLocks
	// ReadOnlyInit marks the transaction read-only once it restarts.
	ReadOnlyInit
)

// Controller is the transaction handle consumed by the session. A Controller
// outlives individual transactions: after Commit or Abort it is ready for the
// next unit of work.
//
// Savepoint operations return the resulting savepoint level, i.e. the number
// of savepoints remaining on the transaction's savepoint stack.
type Controller interface {
	// Commit durably commits the current transaction.
	Commit(ctx context.Context) error
	// CommitNoSync commits without waiting for the commit to be durable.
	CommitNoSync(ctx context.Context, flag CommitFlag) error
	// Abort rolls back the current transaction.
	Abort(ctx context.Context) error

	// SetSavepoint pushes a named savepoint. Duplicate names are an error.
	SetSavepoint(ctx context.Context, name string, kind SavepointKind) (int, error)
	// ReleaseSavepoint pops the named savepoint and every savepoint above it.
	ReleaseSavepoint(ctx context.Context, name string, kind SavepointKind) (int, error)
	// RollbackToSavepoint undoes all work done since the named savepoint was
	// set. The named savepoint stays on the stack.
	RollbackToSavepoint(ctx context.Context, name string, kind SavepointKind) (int, error)

	// StartNestedUserTransaction starts a transaction that does not see the
	// parent's uncommitted work.
	StartNestedUserTransaction(ctx context.Context, readOnly bool) (Controller, error)
	// Destroy releases the handle. Uncommitted work is discarded.
	Destroy(ctx context.Context)

	// CreateConglomerate creates a new, empty conglomerate.
	CreateConglomerate(ctx context.Context, spec ConglomerateSpec) (ConglomerateID, error)
	// DropConglomerate destroys a conglomerate and its contents.
	DropConglomerate(ctx context.Context, id ConglomerateID) error

	// IsPristine returns true if the transaction has performed no updates.
	IsPristine() bool
	// IsIdle returns true if the transaction holds no work and no
	// savepoints.
	IsIdle() bool
	// IsGlobal returns true for distributed (XA) transactions.
	IsGlobal() bool
	// ID returns a printable identifier for the transaction.
	ID() string
}

// XAController is implemented by Controllers that can participate in a
// distributed transaction.
type XAController interface {
	Controller
	// XACommit commits a prepared global transaction, or the transaction
	// itself when onePhase is set.
	XACommit(ctx context.Context, onePhase bool) error
	// XARollback rolls back a global transaction.
	XARollback(ctx context.Context) error
}
