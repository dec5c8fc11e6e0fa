// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package catalog defines the data dictionary contracts consumed by the
// session: table descriptors, the dependency manager used to invalidate
// compiled plans, and the dictionary itself.
package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// SessionSchemaName is the schema holding session-private temporary tables.
const SessionSchemaName = "SESSION"

// InvalidationAction is the reason a provider invalidates its dependents.
type InvalidationAction int

const (
	// DropTable is sent when a table is dropped.
	DropTable InvalidationAction = iota
	// TruncateTable is sent when a table's storage is replaced.
	TruncateTable
	// Rollback is sent to plans executed in a transaction that modified the
	// data dictionary and then rolled back.
	Rollback
	// InternalRecompileRequest forces dependents to recompile.
	InternalRecompileRequest
)

func (a InvalidationAction) String() string {
	switch a {
	case DropTable:
		return "drop table"
	case TruncateTable:
		return "truncate table"
	case Rollback:
		return "rollback"
	case InternalRecompileRequest:
		return "internal recompile request"
	default:
		return fmt.Sprintf("InvalidationAction(%d)", int(a))
	}
}

// SafeValue implements redact.SafeValue.
func (InvalidationAction) SafeValue() {}

// Provider is a catalog object other objects depend on.
type Provider interface {
	ProviderID() uuid.UUID
}

// Dependent is an object, typically a compiled plan, that must be told when
// one of its providers changes.
type Dependent interface {
	DependentID() uuid.UUID
	// MakeInvalid marks the dependent unusable.
	MakeInvalid(ctx context.Context, action InvalidationAction) error
}

// Dependency is an edge from a dependent to a provider.
type Dependency struct {
	Dependent Dependent
	Provider  Provider
}

// DependencyManager tracks dependency edges and propagates invalidations.
type DependencyManager interface {
	// AddDependency records an edge.
	AddDependency(ctx context.Context, d Dependency)
	// InvalidateFor invalidates every dependent of p.
	InvalidateFor(ctx context.Context, p Provider, action InvalidationAction) error
	// ClearInMemoryDependency forgets an edge that was never persisted.
	ClearInMemoryDependency(ctx context.Context, d Dependency)
}

// DataDictionary is the session's view of the catalog.
type DataDictionary interface {
	// TransactionFinished is called at commit or rollback when the session
	// had the dictionary in write mode.
	TransactionFinished(ctx context.Context) error
	DependencyManager() DependencyManager
}
