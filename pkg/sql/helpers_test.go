// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/sessioncore/pkg/settings"
	"github.com/cockroachdb/sessioncore/pkg/sql/catalog"
	"github.com/cockroachdb/sessioncore/pkg/sql/stmtcache"
	"github.com/cockroachdb/sessioncore/pkg/storage/memstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// testPlan is a compiled plan that can be invalidated.
type testPlan struct {
	id           uuid.UUID
	key          stmtcache.Key
	stale        atomic.Bool
	sessionLocal bool
	invalidated  []catalog.InvalidationAction
}

var _ stmtcache.Plan = (*testPlan)(nil)
var _ catalog.Dependent = (*testPlan)(nil)

func (p *testPlan) UpToDate() bool          { return !p.stale.Load() }
func (p *testPlan) Epoch() int64            { return 0 }
func (p *testPlan) UsesSessionSchema() bool { return p.sessionLocal }
func (p *testPlan) DependentID() uuid.UUID  { return p.id }

func (p *testPlan) MakeInvalid(_ context.Context, action catalog.InvalidationAction) error {
	p.stale.Store(true)
	p.invalidated = append(p.invalidated, action)
	return nil
}

type testCompiler struct {
	compiles atomic.Int64
}

func (c *testCompiler) Compile(_ context.Context, key stmtcache.Key) (stmtcache.Plan, error) {
	c.compiles.Add(1)
	return &testPlan{
		id:           uuid.New(),
		key:          key,
		sessionLocal: key.Schema == catalog.SessionSchemaName,
	}, nil
}

type testResultSet struct {
	returnsRows bool
	closed      bool
	rowCleared  bool
}

func (r *testResultSet) ReturnsRows() bool { return r.returnsRows }
func (r *testResultSet) IsClosed() bool    { return r.closed }
func (r *testResultSet) ClearCurrentRow()  { r.rowCleared = true }

func (r *testResultSet) Close(context.Context) error {
	r.closed = true
	return nil
}

// testActivation is an activation that records what the session did to
// it.
type testActivation struct {
	s           *Session
	cursor      string
	inUse       bool
	rs          *testResultSet
	holdability Holdability
	// holdOn is the temporary table a held cursor is open on.
	holdOn string
	plan   *testPlan

	resets, closes int
	heapCleared    bool
}

var _ Activation = (*testActivation)(nil)

func newTestActivation(s *Session, cursor string, returnsRows bool) *testActivation {
	a := &testActivation{
		s:      s,
		cursor: cursor,
		inUse:  true,
		rs:     &testResultSet{returnsRows: returnsRows},
		plan:   &testPlan{id: uuid.New()},
	}
	s.AddActivation(a)
	return a
}

func (a *testActivation) Reset(context.Context) error {
	a.resets++
	return nil
}

func (a *testActivation) Close(context.Context) error {
	a.closes++
	a.rs.closed = true
	a.s.RemoveActivation(a)
	return nil
}

func (a *testActivation) IsInUse() bool            { return a.inUse }
func (a *testActivation) ResultSet() ResultSet     { return a.rs }
func (a *testActivation) Holdability() Holdability { return a.holdability }
func (a *testActivation) CursorName() string       { return a.cursor }
func (a *testActivation) Plan() catalog.Dependent  { return a.plan }
func (a *testActivation) ClearHeapConglomerateController() {
	a.heapCleared = true
}

func (a *testActivation) HasHoldCursorOn(table string) bool {
	return a.holdOn == table && a.holdability == HoldCursorsOverCommit && !a.rs.closed
}

// testServer bundles a Server with in-memory collaborators.
type testServer struct {
	sv       *settings.Values
	engine   *memstore.Engine
	dd       *catalog.MemDataDictionary
	compiler *testCompiler
	server   *Server
	flushed  map[string]map[AutoincrementKey]int64
}

func (ts *testServer) FlushAutoincrement(
	_ context.Context, tableID string, values map[AutoincrementKey]int64,
) error {
	ts.flushed[tableID] = values
	return nil
}

func newTestServer(t *testing.T) *testServer {
	ctx := context.Background()
	e, err := memstore.Open(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })

	ts := &testServer{
		sv:       settings.MakeTestingValues(),
		engine:   e,
		dd:       catalog.NewMemDataDictionary(),
		compiler: &testCompiler{},
		flushed:  make(map[string]map[AutoincrementKey]int64),
	}
	ts.server = NewServer(&ExecutorConfig{
		Settings:             ts.sv,
		DataDictionary:       ts.dd,
		Compiler:             ts.compiler,
		AutoincrementFlusher: ts,
		SessionRegistry:      NewSessionRegistry(),
		ClosedSessionCache:   NewClosedSessionCache(ts.sv),
	})
	return ts
}

func (ts *testServer) newSession(t *testing.T, user string, opts memstore.TxnOptions) (*Session, *memstore.Txn) {
	txn := ts.engine.Begin(opts)
	s, err := ts.server.NewSession(context.Background(), user, txn)
	require.NoError(t, err)
	return s, txn
}
