// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package catalog

import (
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/sessioncore/pkg/storage/txnctl"
	"github.com/google/uuid"
)

// TableDescriptor describes a table and the conglomerate holding its rows.
// Descriptors are treated as immutable; use WithHeapConglomerate to derive a
// descriptor pointing at new storage.
type TableDescriptor struct {
	ID      uuid.UUID
	Schema  string
	Name    string
	Columns []string
	// HeapConglomerate holds the table's rows.
	HeapConglomerate txnctl.ConglomerateID
	// OnCommitDeleteRows empties a temporary table at every commit.
	OnCommitDeleteRows bool
}

var _ Provider = (*TableDescriptor)(nil)

// NewTableDescriptor returns a descriptor with a fresh ID.
func NewTableDescriptor(schema, name string, columns ...string) *TableDescriptor {
	return &TableDescriptor{
		ID:      uuid.New(),
		Schema:  schema,
		Name:    name,
		Columns: columns,
	}
}

// ProviderID implements Provider.
func (d *TableDescriptor) ProviderID() uuid.UUID { return d.ID }

// WithHeapConglomerate returns a copy of d backed by the given conglomerate.
func (d *TableDescriptor) WithHeapConglomerate(id txnctl.ConglomerateID) *TableDescriptor {
	c := *d
	c.HeapConglomerate = id
	return &c
}

// ConglomerateSpec returns the spec used to (re)create d's storage.
func (d *TableDescriptor) ConglomerateSpec() txnctl.ConglomerateSpec {
	return txnctl.ConglomerateSpec{
		Columns:   append([]string(nil), d.Columns...),
		Temporary: d.Schema == SessionSchemaName,
	}
}

// SafeFormat implements redact.SafeFormatter.
func (d *TableDescriptor) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s.%s (heap %d)", d.Schema, d.Name, d.HeapConglomerate)
}

func (d *TableDescriptor) String() string {
	return redact.StringWithoutMarkers(d)
}
