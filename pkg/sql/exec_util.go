// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"context"

	"github.com/cockroachdb/sessioncore/pkg/settings"
	"github.com/cockroachdb/sessioncore/pkg/sql/catalog"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/sql/stmtcache"
	"github.com/cockroachdb/sessioncore/pkg/util/metric"
	"github.com/cockroachdb/sessioncore/pkg/util/metric/aggmetric"
)

// logStatementText controls whether commits, rollbacks and error cleanup
// are logged with the text of the running statement.
var logStatementText = settings.RegisterBoolSetting(
	"sql.log.statement_text.enabled",
	"if set, transaction boundaries and statement errors are logged with the statement text",
	false,
)

// unusedActivationThreshold is the number of activations a session holds
// before the unused ones are swept.
var unusedActivationThreshold = settings.RegisterIntSetting(
	"sql.session.unused_activation_threshold",
	"number of activations a session may hold before closing the unused ones",
	20,
	settings.PositiveInt,
)

// maxTriggerDepth is the deepest nesting of trigger execution contexts.
const maxTriggerDepth = 16

// AutoincrementFlusher persists the cached autoincrement values of a table.
type AutoincrementFlusher interface {
	FlushAutoincrement(ctx context.Context, tableID string, values map[AutoincrementKey]int64) error
}

// ExecutorTestingKnobs is part of the context used to control parts of the
// system during testing.
type ExecutorTestingKnobs struct {
	// BeforeCommit is called before the store transaction of a session
	// commits. An error aborts the commit.
	BeforeCommit func(ctx context.Context, txnID string) error
	// BeforeRollback is called before the store transaction of a session
	// rolls back.
	BeforeRollback func(ctx context.Context, txnID string)
}

// ExecutorConfig encompasses the auxiliary objects and configuration
// required to create sessions.
// All fields holding a pointer or an interface are required to create
// a Server; the rest will have sane defaults set if omitted.
type ExecutorConfig struct {
	Settings       *settings.Values
	DataDictionary catalog.DataDictionary
	// Compiler compiles statements for the statement cache.
	Compiler stmtcache.Compiler
	// Epoch returns the current catalog epoch. Cached plans compiled
	// under an older epoch are recompiled.
	Epoch func() int64

	AutoincrementFlusher AutoincrementFlusher
	SessionRegistry      *SessionRegistry
	ClosedSessionCache   *ClosedSessionCache

	TestingKnobs ExecutorTestingKnobs
}

var (
	MetaSessionsOpen = metric.Metadata{
		Name:        "sql.sessions.open",
		Help:        "Number of open sessions",
		Measurement: "Sessions",
		Unit:        metric.Unit_COUNT,
	}
	MetaTxnCommit = metric.Metadata{
		Name:        "sql.txn.commit.count",
		Help:        "Number of transactions committed by sessions",
		Measurement: "Transactions",
		Unit:        metric.Unit_COUNT,
	}
	MetaTxnRollback = metric.Metadata{
		Name:        "sql.txn.rollback.count",
		Help:        "Number of transactions rolled back by sessions",
		Measurement: "Transactions",
		Unit:        metric.Unit_COUNT,
	}
	MetaSavepointRollback = metric.Metadata{
		Name:        "sql.savepoint.rollback.count",
		Help:        "Number of rollbacks to a user savepoint",
		Measurement: "Savepoints",
		Unit:        metric.Unit_COUNT,
	}
	MetaStatementRollback = metric.Metadata{
		Name:        "sql.statement.rollback.count",
		Help:        "Number of statements undone to their internal savepoint",
		Measurement: "Statements",
		Unit:        metric.Unit_COUNT,
	}
	MetaErrors = metric.Metadata{
		Name:        "sql.session.errors",
		Help:        "Number of errors cleaned up by sessions, by severity",
		Measurement: "Errors",
		Unit:        metric.Unit_COUNT,
	}
	MetaActivationsSwept = metric.Metadata{
		Name:        "sql.session.activations.swept",
		Help:        "Number of unused activations closed by sessions",
		Measurement: "Activations",
		Unit:        metric.Unit_COUNT,
	}
)

// Metrics are the session metrics of a Server.
type Metrics struct {
	SessionsOpen       *metric.Gauge
	TxnCommits         *metric.Counter
	TxnRollbacks       *metric.Counter
	SavepointRollbacks *metric.Counter
	StatementRollbacks *metric.Counter
	ActivationsSwept   *metric.Counter
	Errors             *aggmetric.AggCounter

	errorsBySeverity [pgerror.SeverityFatal + 1]*aggmetric.Counter
}

// MetricStruct is part of the metric.Struct interface.
func (Metrics) MetricStruct() {}

var _ metric.Struct = Metrics{}

func makeMetrics() Metrics {
	m := Metrics{
		SessionsOpen:       metric.NewGauge(MetaSessionsOpen),
		TxnCommits:         metric.NewCounter(MetaTxnCommit),
		TxnRollbacks:       metric.NewCounter(MetaTxnRollback),
		SavepointRollbacks: metric.NewCounter(MetaSavepointRollback),
		StatementRollbacks: metric.NewCounter(MetaStatementRollback),
		ActivationsSwept:   metric.NewCounter(MetaActivationsSwept),
		Errors:             aggmetric.NewCounter(MetaErrors, "severity"),
	}
	for sev := range m.errorsBySeverity {
		m.errorsBySeverity[sev] = m.Errors.MustAddChild(pgerror.Severity(sev).String())
	}
	return m
}

func (m *Metrics) recordError(sev pgerror.Severity) {
	if sev < 0 || int(sev) >= len(m.errorsBySeverity) {
		sev = pgerror.SeverityUnclassified
	}
	m.errorsBySeverity[sev].Inc(1)
}
