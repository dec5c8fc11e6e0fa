// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sessiondata

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/sessioncore/pkg/settings"
)

// SessionData contains session parameters. They are all user-configurable
// and survive transaction boundaries.
type SessionData struct {
	// User is the name of the user logged into the session.
	User string
	// ApplicationName is the name of the application running the
	// current session. This can be used for logging.
	ApplicationName string
	// DefaultSchema is the schema the session starts with and returns to on
	// a pool reset.
	DefaultSchema string
	// CurrentSchema is the compilation schema of new statements.
	CurrentSchema string
	// Isolation is the isolation level of new transactions.
	Isolation IsolationLevel
	// IsolationExplicitlySet is set once the client changed the isolation
	// level, which overrides any PrepareIsolation.
	IsolationExplicitlySet bool
	// PrepareIsolation is the isolation level requested for the statement
	// being prepared.
	PrepareIsolation IsolationLevel
}

// PrepareIsolationLevel returns the isolation level statements should be
// prepared under, or UnspecifiedIsolation once the client set one explicitly.
func (sd *SessionData) PrepareIsolationLevel() IsolationLevel {
	if sd.IsolationExplicitlySet {
		return UnspecifiedIsolation
	}
	return sd.PrepareIsolation
}

// New returns the session data of a new session for user.
func New(sv *settings.Values, user string) *SessionData {
	schema := strings.ToUpper(user)
	return &SessionData{
		User:          user,
		DefaultSchema: schema,
		CurrentSchema: schema,
		Isolation:     IsolationLevel(DefaultIsolation.Get(sv)),
	}
}

// ResetSchema makes the default schema current again.
func (sd *SessionData) ResetSchema() {
	sd.CurrentSchema = sd.DefaultSchema
}

// IsolationLevel is a transaction isolation level.
type IsolationLevel int64

const (
	// UnspecifiedIsolation means the level has not been set.
	UnspecifiedIsolation IsolationLevel = iota
	// ReadUncommitted allows dirty reads.
	ReadUncommitted
	// ReadCommitted only reads committed data.
	ReadCommitted
	// RepeatableRead holds read locks until the end of the transaction.
	RepeatableRead
	// Serializable prevents phantoms.
	Serializable
)

func (l IsolationLevel) String() string {
	switch l {
	case UnspecifiedIsolation:
		return "unspecified"
	case ReadUncommitted:
		return "read_uncommitted"
	case ReadCommitted:
		return "read_committed"
	case RepeatableRead:
		return "repeatable_read"
	case Serializable:
		return "serializable"
	default:
		return fmt.Sprintf("invalid (%d)", l)
	}
}

// SafeValue implements redact.SafeValue.
func (IsolationLevel) SafeValue() {}

// IsolationLevelFromString converts a string into an IsolationLevel. False is
// returned if the conversion was unsuccessful.
func IsolationLevelFromString(val string) (_ IsolationLevel, ok bool) {
	switch strings.ToUpper(strings.ReplaceAll(val, " ", "_")) {
	case "READ_UNCOMMITTED":
		return ReadUncommitted, true
	case "READ_COMMITTED":
		return ReadCommitted, true
	case "REPEATABLE_READ":
		return RepeatableRead, true
	case "SERIALIZABLE":
		return Serializable, true
	default:
		return 0, false
	}
}

// DefaultIsolation is the isolation level of new sessions.
var DefaultIsolation = settings.RegisterEnumSetting(
	"sql.txn.default_isolation",
	"default transaction isolation level of new sessions",
	ReadCommitted.String(),
	map[int64]string{
		int64(ReadUncommitted): ReadUncommitted.String(),
		int64(ReadCommitted):   ReadCommitted.String(),
		int64(RepeatableRead):  RepeatableRead.String(),
		int64(Serializable):    Serializable.String(),
	},
)
