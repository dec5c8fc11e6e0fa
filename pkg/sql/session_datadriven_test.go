// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/sql/catalog"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/sql/sessionauth"
	"github.com/cockroachdb/sessioncore/pkg/sql/stmtctx"
	"github.com/cockroachdb/sessioncore/pkg/storage/memstore"
	"github.com/cockroachdb/sessioncore/pkg/storage/txnctl"
	"github.com/cockroachdb/sessioncore/pkg/util/leaktest"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
	"github.com/stretchr/testify/require"
)

// sessionScript is the state of one datadriven session test file.
type sessionScript struct {
	ts   *testServer
	s    *Session
	txn  *memstore.Txn
	kv   txnctl.ConglomerateID
	keys map[string]struct{}
}

var severities = map[string]pgerror.Severity{
	"statement":   pgerror.SeverityStatement,
	"transaction": pgerror.SeverityTransaction,
	"session":     pgerror.SeveritySession,
}

var savepointKinds = map[string]txnctl.SavepointKind{
	"sql": txnctl.SQLSavepoint,
	"api": txnctl.APISavepoint,
}

var sqlAllowed = map[string]sessionauth.SQLAllowed{
	"modifies": sessionauth.ModifiesSQLData,
	"reads":    sessionauth.ReadsSQLData,
	"contains": sessionauth.ContainsSQL,
	"none":     sessionauth.NoSQL,
}

func (ss *sessionScript) state(t *testing.T) string {
	var buf strings.Builder
	if ss.s.Closed() {
		buf.WriteString("closed\n")
	}
	fmt.Fprintf(&buf, "level: %d\n", ss.s.SavepointLevel())
	fmt.Fprintf(&buf, "savepoints: %v\n", ss.txn.SavepointNames())
	for _, f := range ss.s.stmts {
		fmt.Fprintf(&buf, "%s\n", f)
	}
	for _, e := range ss.s.TempTables() {
		fmt.Fprintf(&buf, "temp %s\n", &e)
	}
	keys := make([]string, 0, len(ss.keys))
	for k := range ss.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var rows []string
	for _, k := range keys {
		_, ok, err := ss.txn.Get(context.Background(), ss.kv, []byte(k))
		require.NoError(t, err)
		if ok {
			rows = append(rows, k)
		}
	}
	fmt.Fprintf(&buf, "rows: %v", rows)
	return buf.String()
}

func scanSavepoint(t *testing.T, d *datadriven.TestData) (string, txnctl.SavepointKind) {
	var name, kind string
	d.ScanArgs(t, "name", &name)
	d.ScanArgs(t, "kind", &kind)
	k, ok := savepointKinds[kind]
	if !ok {
		t.Fatalf("unknown savepoint kind %q", kind)
	}
	return name, k
}

func result(err error) string {
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return "ok"
}

func (ss *sessionScript) level(err error) string {
	if err != nil {
		return result(err)
	}
	return fmt.Sprintf("level %d", ss.s.SavepointLevel())
}

// TestSessionDataDriven drives a session through scripted statements,
// savepoints and errors.
//
// Commands:
//
//	new-session user=<name>
//	put key=<key>
//	push stmt=<text> [atomic] [rollback-parent] [sql=<allowed>]
//	set-savepoint
//	pop
//	declare name=<table>
//	drop name=<table>
//	modify name=<table>
//	savepoint name=<name> kind=(sql|api)
//	release name=<name> kind=(sql|api)
//	rollback-to name=<name> kind=(sql|api)
//	commit
//	rollback
//	error severity=(statement|transaction|session)
//	state
func TestSessionDataDriven(t *testing.T) {
	defer leaktest.AfterTest(t)()
	defer log.Scope(t).Close(t)

	datadriven.Walk(t, filepath.Join("testdata", "session"), func(t *testing.T, path string) {
		ctx := context.Background()
		var ss *sessionScript

		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			if d.Cmd != "new-session" && ss == nil {
				t.Fatalf("%s: no session", d.Pos)
			}
			switch d.Cmd {
			case "new-session":
				var user string
				d.ScanArgs(t, "user", &user)
				ts := newTestServer(t)
				s, txn := ts.newSession(t, user, memstore.TxnOptions{})
				kv, err := txn.CreateConglomerate(ctx, txnctl.ConglomerateSpec{Columns: []string{"k", "v"}})
				require.NoError(t, err)
				require.NoError(t, s.UserCommit(ctx))
				ss = &sessionScript{ts: ts, s: s, txn: txn, kv: kv, keys: make(map[string]struct{})}
				return ss.state(t)

			case "put":
				var key string
				d.ScanArgs(t, "key", &key)
				ss.keys[key] = struct{}{}
				return result(ss.txn.Put(ctx, ss.kv, []byte(key), []byte(key)))

			case "push":
				opts := stmtctx.Options{
					Atomic:         d.HasArg("atomic"),
					RollbackParent: d.HasArg("rollback-parent"),
				}
				d.ScanArgs(t, "stmt", &opts.Statement)
				if d.HasArg("sql") {
					var allowed string
					d.ScanArgs(t, "sql", &allowed)
					opts.SQLAllowed = sqlAllowed[allowed]
				}
				f, err := ss.s.PushStatementContext(ctx, opts)
				if err != nil {
					return result(err)
				}
				return f.String()

			case "set-savepoint":
				f := ss.s.CurrentStatementContext()
				if err := f.SetSavepoint(ctx); err != nil {
					return result(err)
				}
				return f.String()

			case "pop":
				f := ss.s.CurrentStatementContext()
				if err := ss.s.PopStatementContext(ctx, f, nil); err != nil {
					return result(err)
				}
				return f.String()

			case "declare":
				var name string
				d.ScanArgs(t, "name", &name)
				desc, err := ss.s.DeclareTempTable(ctx, catalog.NewTableDescriptor(catalog.SessionSchemaName, name, "x"))
				if err != nil {
					return result(err)
				}
				return desc.String()

			case "drop":
				var name string
				d.ScanArgs(t, "name", &name)
				return result(ss.s.DropTempTable(ctx, name))

			case "modify":
				var name string
				d.ScanArgs(t, "name", &name)
				return result(ss.s.MarkTempTableModified(name))

			case "savepoint":
				name, kind := scanSavepoint(t, d)
				_, err := ss.s.SetSavepoint(ctx, name, kind)
				return ss.level(err)

			case "release":
				name, kind := scanSavepoint(t, d)
				return ss.level(ss.s.ReleaseSavepoint(ctx, name, kind))

			case "rollback-to":
				name, kind := scanSavepoint(t, d)
				return ss.level(ss.s.RollbackToSavepoint(ctx, name, kind))

			case "commit":
				return result(ss.s.UserCommit(ctx))

			case "rollback":
				return result(ss.s.UserRollback(ctx))

			case "error":
				var sevName string
				d.ScanArgs(t, "severity", &sevName)
				sev, ok := severities[sevName]
				if !ok {
					t.Fatalf("unknown severity %q", sevName)
				}
				cause := pgerror.WithSeverity(errors.Newf("injected %s error", sevName), sev)
				return result(ss.s.CleanupOnError(ctx, cause))

			case "state":
				return ss.state(t)

			default:
				t.Fatalf("unknown command %q", d.Cmd)
				return ""
			}
		})
	})
}
