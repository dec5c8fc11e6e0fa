// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package catalog

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/sessioncore/pkg/util/leaktest"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type testDependent struct {
	id      uuid.UUID
	actions []InvalidationAction
	err     error
}

func (d *testDependent) DependentID() uuid.UUID { return d.id }

func (d *testDependent) MakeInvalid(_ context.Context, action InvalidationAction) error {
	d.actions = append(d.actions, action)
	return d.err
}

func TestDependencyManager(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)
	ctx := context.Background()

	m := NewMemDependencyManager()
	tab := NewTableDescriptor(SessionSchemaName, "t", "a", "b")
	d1 := &testDependent{id: uuid.New()}
	d2 := &testDependent{id: uuid.New()}
	m.AddDependency(ctx, Dependency{Dependent: d1, Provider: tab})
	m.AddDependency(ctx, Dependency{Dependent: d2, Provider: tab})
	m.AddDependency(ctx, Dependency{Dependent: d2, Provider: tab})
	require.Equal(t, 2, m.NumDependents(tab))

	m.ClearInMemoryDependency(ctx, Dependency{Dependent: d1, Provider: tab})
	require.Equal(t, 1, m.NumDependents(tab))

	require.NoError(t, m.InvalidateFor(ctx, tab, TruncateTable))
	require.Empty(t, d1.actions)
	require.Equal(t, []InvalidationAction{TruncateTable}, d2.actions)
	require.Equal(t, 1, m.NumDependents(tab))

	d2.err = errors.New("boom")
	require.EqualError(t, m.InvalidateFor(ctx, tab, DropTable), "boom")
	require.Equal(t, 0, m.NumDependents(tab))
	require.Equal(t, []InvalidationAction{TruncateTable, DropTable}, m.Invalidations(tab))
}

func TestTableDescriptor(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	d := NewTableDescriptor(SessionSchemaName, "t", "a")
	d2 := d.WithHeapConglomerate(7)
	require.Equal(t, d.ID, d2.ID)
	require.Zero(t, d.HeapConglomerate)
	require.EqualValues(t, 7, d2.HeapConglomerate)
	require.True(t, d2.ConglomerateSpec().Temporary)
	require.Equal(t, []string{"a"}, d2.ConglomerateSpec().Columns)
	require.False(t, NewTableDescriptor("APP", "u").ConglomerateSpec().Temporary)

	require.Equal(t, "SESSION.t (heap 7)", d2.String())
	require.Equal(t, "‹×›.‹×› (heap 7)", string(redact.Sprint(d2).Redact()))
}

func TestMemDataDictionary(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	dd := NewMemDataDictionary()
	require.NoError(t, dd.TransactionFinished(context.Background()))
	require.Equal(t, 1, dd.FinishedTransactions())
	require.Same(t, dd.MemDependencyManager(), dd.DependencyManager())
}
