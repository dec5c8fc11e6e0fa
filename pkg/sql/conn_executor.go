// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/sessioncore/pkg/sql/catalog"
	"github.com/cockroachdb/sessioncore/pkg/sql/sessionauth"
	"github.com/cockroachdb/sessioncore/pkg/sql/sessiondata"
	"github.com/cockroachdb/sessioncore/pkg/sql/stmtcache"
	"github.com/cockroachdb/sessioncore/pkg/sql/stmtctx"
	"github.com/cockroachdb/sessioncore/pkg/sql/temptable"
	"github.com/cockroachdb/sessioncore/pkg/storage/txnctl"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
	"github.com/google/uuid"
)

// A Session is the connection context of one client connection. It owns
// the store transaction, the savepoint level, the statement stack, the
// temporary tables, the open activations and the authorization state, and
// orchestrates commit, rollback, savepoint rollback and error cleanup
// across all of them.
//
// The statement stack is a stack of stmtctx.Frames, one per statement
// invocation including nested and trigger invocations. The two outermost
// frames are cached and reused. Errors unwind the stack according to
// their pgerror.Severity:
//
//   - statement severity errors are undone by the innermost frame that
//     owns an internal savepoint, and the session is otherwise untouched.
//   - transaction severity errors roll back the whole transaction.
//   - session severity errors close every activation, abort the
//     transaction and deregister the session.
//
// A Session is used by one goroutine at a time and does no locking.

// Server is the top level singleton for handling SQL sessions. It owns the
// statement cache shared by all of its sessions.
type Server struct {
	cfg *ExecutorConfig

	// Metrics is exported as required by the metric.Struct magic we use
	// for metrics registration.
	Metrics Metrics

	stmtCache *stmtcache.Cache

	// nextInstance numbers the sessions of this server for logging.
	nextInstance atomic.Int64
}

// NewServer creates a new Server.
func NewServer(cfg *ExecutorConfig) *Server {
	epoch := cfg.Epoch
	if epoch == nil {
		epoch = func() int64 { return 0 }
	}
	if cfg.SessionRegistry == nil {
		cfg.SessionRegistry = NewSessionRegistry()
	}
	return &Server{
		cfg:       cfg,
		Metrics:   makeMetrics(),
		stmtCache: stmtcache.New(cfg.Settings, cfg.Compiler, epoch),
	}
}

// StatementCache returns the statement cache shared by the server's
// sessions.
func (s *Server) StatementCache() *stmtcache.Cache { return s.stmtCache }

// NewSession opens a session for user on top of the store transaction txn.
// The session takes ownership of txn.
func (s *Server) NewSession(ctx context.Context, user string, txn txnctl.Controller) (*Session, error) {
	auth, err := sessionauth.NewAuthorizer(ctx, s.cfg.Settings, user)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		server:           s,
		id:               uuid.New(),
		instance:         s.nextInstance.Add(1),
		sessionData:      sessiondata.New(s.cfg.Settings, user),
		auth:             auth,
		txn:              txn,
		outermostTrigger: -1,
		sweepLog:         log.Every(10 * time.Second),
	}
	sess.logTags = logtags.SingleTagBuffer("session", sess.id).Add("conn", sess.instance)
	sess.cachedFrames[0] = stmtctx.NewFrame(sess, 1)
	sess.cachedFrames[1] = stmtctx.NewFrame(sess, 2)
	sess.nextFrameID = 3
	sess.autoinc.values = make(map[AutoincrementKey]int64)

	s.cfg.SessionRegistry.register(sess)
	s.Metrics.SessionsOpen.Inc(1)
	log.VEventf(sess.AnnotateCtx(ctx), 2, "session opened for user %s", user)
	return sess, nil
}

// Session is the connection context of one client connection.
type Session struct {
	server *Server

	id       uuid.UUID
	instance int64
	logTags  *logtags.Buffer

	sessionData *sessiondata.SessionData
	auth        *sessionauth.Authorizer

	// txn is the store transaction of the session.
	txn txnctl.Controller
	// nested is the read-only nested transaction used for compile-time
	// work. It is opened by the first BeginNestedTransaction and committed
	// when queryNestingDepth drops back to zero.
	nested            txnctl.Controller
	queryNestingDepth int

	// savepointLevel is the number of savepoints defined in the open
	// transaction. It is reset to 0 by every commit and full rollback.
	savepointLevel int

	// stmts is the statement stack. stmts[0] is the outermost statement.
	stmts        []*stmtctx.Frame
	cachedFrames [2]*stmtctx.Frame
	nextFrameID  int64

	// tempTables is nil until the first temporary table is declared.
	tempTables *temptable.Registry

	activations []Activation
	// unusedActs is set when an activation became unused since the last
	// sweep.
	unusedActs bool
	sweepLog   log.EveryN

	// ddWriteMode is set while the transaction writes to the data
	// dictionary.
	ddWriteMode bool

	triggers []*TriggerExecutionContext
	// outermostTrigger is the statement depth of the outermost trigger, or
	// -1 when no trigger is executing.
	outermostTrigger int

	autoinc struct {
		// cache holds the counters of the tables being inserted into.
		cache map[AutoincrementKey]*autoincrementCounter
		// values holds the last values generated by the session.
		values map[AutoincrementKey]int64
		// update is set while an autoincrement column is being updated
		// rather than generated.
		update bool
	}
	identity struct {
		value int64
		set   bool
	}

	cursorCounter    int64
	savepointCounter int64

	closed bool
}

var _ stmtctx.Owner = (*Session)(nil)

// ID returns the session's unique id.
func (s *Session) ID() uuid.UUID { return s.id }

// Instance returns the per-server instance number of the session.
func (s *Session) Instance() int64 { return s.instance }

// User returns the session user.
func (s *Session) User() string { return s.sessionData.User }

// SessionData returns the session variables.
func (s *Session) SessionData() *sessiondata.SessionData { return s.sessionData }

// Authorizer returns the authorization state of the session.
func (s *Session) Authorizer() *sessionauth.Authorizer { return s.auth }

// Txn returns the store transaction.
func (s *Session) Txn() txnctl.Controller { return s.txn }

// SavepointLevel returns the number of savepoints in the open transaction.
func (s *Session) SavepointLevel() int { return s.savepointLevel }

// Closed returns whether the session was closed by Close or by a session
// severity error.
func (s *Session) Closed() bool { return s.closed }

// AnnotateCtx adds the session's log tags to ctx.
func (s *Session) AnnotateCtx(ctx context.Context) context.Context {
	return logtags.AddTags(ctx, s.logTags)
}

// DependencyManager is part of the stmtctx.Owner interface.
func (s *Session) DependencyManager() catalog.DependencyManager {
	return s.server.cfg.DataDictionary.DependencyManager()
}

func (s *Session) settingsLogStatementText() bool {
	return logStatementText.Get(s.server.cfg.Settings)
}

// statementText returns the text of the innermost statement for logging.
func (s *Session) statementText() redact.RedactableString {
	if f := s.CurrentStatementContext(); f != nil {
		return redact.Sprint(f.Statement())
	}
	return ""
}

// Close ends the session. The open transaction is rolled back, temporary
// tables are dropped and the session is deregistered. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	ctx = s.AnnotateCtx(ctx)
	var err error
	for i := len(s.activations) - 1; i >= 0; i-- {
		if i >= len(s.activations) {
			continue
		}
		err = errors.CombineErrors(err, s.activations[i].Close(ctx))
	}
	if s.tempTables != nil {
		err = errors.CombineErrors(err, s.tempTables.DropAll(ctx, s.tempTableEnv()))
		s.tempTables = nil
	}
	err = errors.CombineErrors(err, s.InternalRollback(ctx))
	s.teardown(ctx, nil)
	return err
}

// teardown releases the session's store resources and removes it from the
// registry. cause is the error that killed the session, if any.
func (s *Session) teardown(ctx context.Context, cause error) {
	if s.closed {
		return
	}
	s.closed = true
	if s.nested != nil {
		s.nested.Destroy(ctx)
		s.nested = nil
		s.queryNestingDepth = 0
	}
	s.stmts = s.stmts[:0]
	s.server.cfg.SessionRegistry.deregister(s)
	if c := s.server.cfg.ClosedSessionCache; c != nil {
		c.add(s, cause)
	}
	s.server.Metrics.SessionsOpen.Dec(1)
	log.VEventf(ctx, 2, "session closed")
}
