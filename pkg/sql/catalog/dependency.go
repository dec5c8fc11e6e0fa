// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
	"github.com/google/uuid"
)

// MemDependencyManager is an in-memory DependencyManager. It is safe for
// concurrent use.
type MemDependencyManager struct {
	mu struct {
		syncutil.Mutex
		// edges maps a provider to its dependents.
		edges map[uuid.UUID]map[uuid.UUID]Dependent
		// invalidations counts InvalidateFor calls per provider.
		invalidations map[uuid.UUID][]InvalidationAction
	}
}

var _ DependencyManager = (*MemDependencyManager)(nil)

// NewMemDependencyManager returns an empty manager.
func NewMemDependencyManager() *MemDependencyManager {
	m := &MemDependencyManager{}
	m.mu.edges = make(map[uuid.UUID]map[uuid.UUID]Dependent)
	m.mu.invalidations = make(map[uuid.UUID][]InvalidationAction)
	return m
}

// AddDependency implements DependencyManager.
func (m *MemDependencyManager) AddDependency(ctx context.Context, d Dependency) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid := d.Provider.ProviderID()
	deps, ok := m.mu.edges[pid]
	if !ok {
		deps = make(map[uuid.UUID]Dependent)
		m.mu.edges[pid] = deps
	}
	deps[d.Dependent.DependentID()] = d.Dependent
}

// InvalidateFor implements DependencyManager. Dropping a provider forgets all
// of its edges.
func (m *MemDependencyManager) InvalidateFor(
	ctx context.Context, p Provider, action InvalidationAction,
) error {
	pid := p.ProviderID()
	m.mu.Lock()
	m.mu.invalidations[pid] = append(m.mu.invalidations[pid], action)
	deps := make([]Dependent, 0, len(m.mu.edges[pid]))
	for _, d := range m.mu.edges[pid] {
		deps = append(deps, d)
	}
	if action == DropTable {
		delete(m.mu.edges, pid)
	}
	m.mu.Unlock()

	log.VEventf(ctx, 2, "invalidating %d dependents of %s: %s", len(deps), pid, action)
	var err error
	for _, d := range deps {
		err = errors.CombineErrors(err, d.MakeInvalid(ctx, action))
	}
	return err
}

// ClearInMemoryDependency implements DependencyManager.
func (m *MemDependencyManager) ClearInMemoryDependency(ctx context.Context, d Dependency) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pid := d.Provider.ProviderID()
	deps := m.mu.edges[pid]
	delete(deps, d.Dependent.DependentID())
	if len(deps) == 0 {
		delete(m.mu.edges, pid)
	}
}

// NumDependents returns the number of dependents recorded for p.
func (m *MemDependencyManager) NumDependents(p Provider) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mu.edges[p.ProviderID()])
}

// Invalidations returns the actions sent to p's dependents, oldest first.
func (m *MemDependencyManager) Invalidations(p Provider) []InvalidationAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]InvalidationAction(nil), m.mu.invalidations[p.ProviderID()]...)
}

// MemDataDictionary is a DataDictionary backed by a MemDependencyManager.
type MemDataDictionary struct {
	dm *MemDependencyManager

	mu struct {
		syncutil.Mutex
		finished int
	}
}

var _ DataDictionary = (*MemDataDictionary)(nil)

// NewMemDataDictionary returns a dictionary with an empty dependency manager.
func NewMemDataDictionary() *MemDataDictionary {
	return &MemDataDictionary{dm: NewMemDependencyManager()}
}

// TransactionFinished implements DataDictionary.
func (d *MemDataDictionary) TransactionFinished(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mu.finished++
	return nil
}

// FinishedTransactions returns the number of TransactionFinished calls.
func (d *MemDataDictionary) FinishedTransactions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mu.finished
}

// DependencyManager implements DataDictionary.
func (d *MemDataDictionary) DependencyManager() DependencyManager { return d.dm }

// MemDependencyManager returns the concrete dependency manager.
func (d *MemDataDictionary) MemDependencyManager() *MemDependencyManager { return d.dm }
