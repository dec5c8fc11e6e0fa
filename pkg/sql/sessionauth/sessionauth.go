// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package sessionauth implements connection-level authorization: the access
// level a user connects with, the session's read-only mode, and the SQL
// ceiling imposed by routines.
package sessionauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/settings"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgcode"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
)

// AccessLevel is the access a user is granted at connection time.
type AccessLevel int64

const (
	// NoAccess refuses the connection.
	NoAccess AccessLevel = iota
	// ReadAccess forces the session to be read-only.
	ReadAccess
	// FullAccess allows reads and writes.
	FullAccess
)

func (l AccessLevel) String() string {
	switch l {
	case NoAccess:
		return "noAccess"
	case ReadAccess:
		return "readOnlyAccess"
	case FullAccess:
		return "fullAccess"
	default:
		return fmt.Sprintf("AccessLevel(%d)", int64(l))
	}
}

// SafeValue implements redact.SafeValue.
func (AccessLevel) SafeValue() {}

var (
	// DefaultConnectionMode is the access level of users not named in either
	// access list.
	DefaultConnectionMode = settings.RegisterEnumSetting(
		"sql.auth.default_connection_mode",
		"access level of users not listed in sql.auth.full_access_users or sql.auth.read_only_access_users",
		FullAccess.String(),
		map[int64]string{
			int64(NoAccess):   NoAccess.String(),
			int64(ReadAccess): ReadAccess.String(),
			int64(FullAccess): FullAccess.String(),
		},
	)

	// FullAccessUsers lists the users granted full access.
	FullAccessUsers = settings.RegisterStringSetting(
		"sql.auth.full_access_users",
		"comma-separated list of users granted full access",
		"",
	)

	// ReadOnlyAccessUsers lists the users granted read-only access.
	ReadOnlyAccessUsers = settings.RegisterStringSetting(
		"sql.auth.read_only_access_users",
		"comma-separated list of users granted read-only access",
		"",
	)

	// DatabaseReadOnly makes every session read-only.
	DatabaseReadOnly = settings.RegisterBoolSetting(
		"sql.auth.database_read_only.enabled",
		"if set, the database is read-only and every session is read-only",
		false,
	)
)

// listContains reports whether user appears in a comma-separated list. User
// names are compared case-insensitively.
func listContains(list, user string) bool {
	for _, u := range strings.Split(list, ",") {
		if u = strings.TrimSpace(u); u != "" && strings.EqualFold(u, user) {
			return true
		}
	}
	return false
}

// UserAccessLevel computes the access level of user from the settings. The
// full access list takes precedence over the read-only list, which takes
// precedence over the default connection mode.
func UserAccessLevel(sv *settings.Values, user string) AccessLevel {
	if listContains(FullAccessUsers.Get(sv), user) {
		return FullAccess
	}
	if listContains(ReadOnlyAccessUsers.Get(sv), user) {
		return ReadAccess
	}
	return AccessLevel(DefaultConnectionMode.Get(sv))
}

// SQLAllowed is the SQL a routine is declared to run. Values are ordered
// from least to most restrictive.
type SQLAllowed int

const (
	// ModifiesSQLData allows reads and writes.
	ModifiesSQLData SQLAllowed = iota
	// ReadsSQLData allows reads only.
	ReadsSQLData
	// ContainsSQL allows SQL that neither reads nor writes data.
	ContainsSQL
	// NoSQL allows no SQL at all.
	NoSQL
)

func (s SQLAllowed) String() string {
	switch s {
	case ModifiesSQLData:
		return "MODIFIES SQL DATA"
	case ReadsSQLData:
		return "READS SQL DATA"
	case ContainsSQL:
		return "CONTAINS SQL"
	case NoSQL:
		return "NO SQL"
	default:
		return fmt.Sprintf("SQLAllowed(%d)", int(s))
	}
}

// SafeValue implements redact.SafeValue.
func (SQLAllowed) SafeValue() {}

// Narrowest returns the more restrictive of a and b. Restrictions only
// narrow as statements nest.
func Narrowest(a, b SQLAllowed) SQLAllowed {
	if a > b {
		return a
	}
	return b
}

// Operation classifies what a statement does for authorization purposes.
type Operation int

const (
	// SelectOp reads data.
	SelectOp Operation = iota
	// WriteOp modifies data.
	WriteOp
	// DDLOp changes the schema.
	DDLOp
	// PropertyWriteOp changes a database property.
	PropertyWriteOp
	// JarWriteOp installs or replaces routine code.
	JarWriteOp
	// CallOp invokes a routine.
	CallOp
	// ArbitraryOp is any other SQL statement.
	ArbitraryOp
)

var operationNames = [...]string{
	SelectOp:        "select",
	WriteOp:         "write",
	DDLOp:           "ddl",
	PropertyWriteOp: "property write",
	JarWriteOp:      "jar write",
	CallOp:          "call",
	ArbitraryOp:     "arbitrary",
}

func (o Operation) String() string {
	if o < 0 || int(o) >= len(operationNames) {
		return fmt.Sprintf("Operation(%d)", int(o))
	}
	return operationNames[o]
}

// SafeValue implements redact.SafeValue.
func (Operation) SafeValue() {}

// Authorizer holds the authorization state of one session. It is not safe
// for concurrent use.
type Authorizer struct {
	user        string
	sv          *settings.Values
	accessLevel AccessLevel
	readOnly    bool
}

// NewAuthorizer computes the access level of user. A user without access is
// refused.
func NewAuthorizer(ctx context.Context, sv *settings.Values, user string) (*Authorizer, error) {
	a := &Authorizer{user: user, sv: sv}
	if err := a.Refresh(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Refresh recomputes the access level and resets the read-only mode to the
// floor it implies.
func (a *Authorizer) Refresh(ctx context.Context) error {
	a.accessLevel = UserAccessLevel(a.sv, a.user)
	if a.accessLevel == NoAccess {
		return pgerror.Newf(pgcode.InvalidAuthorizationSpecification,
			"connection refused because the database has no access for user %s", a.user)
	}
	a.readOnly = a.mustRemainReadOnly()
	log.VEventf(ctx, 2, "user %s connected with %s (read-only: %t)", a.user, a.accessLevel, a.readOnly)
	return nil
}

func (a *Authorizer) mustRemainReadOnly() bool {
	return a.accessLevel == ReadAccess || DatabaseReadOnly.Get(a.sv)
}

// AccessLevel returns the user's access level.
func (a *Authorizer) AccessLevel() AccessLevel { return a.accessLevel }

// User returns the session user.
func (a *Authorizer) User() string { return a.user }

// ReadOnly returns whether the session is read-only.
func (a *Authorizer) ReadOnly() bool { return a.readOnly }

// SetReadOnly changes the session's read-only mode. Only a pristine
// transaction may change it, and a session whose access level or database
// forces read-only mode cannot be made read-write.
func (a *Authorizer) SetReadOnly(on bool, pristine bool) error {
	if !pristine {
		return pgerror.New(pgcode.ActiveSQLTransaction,
			"cannot set the connection read-only while the transaction has outstanding work")
	}
	if !on && a.mustRemainReadOnly() {
		return pgerror.Newf(pgcode.CannotSetReadWriteConnection,
			"cannot set connection for user %s to read-write", a.user)
	}
	a.readOnly = on
	return nil
}

// Authorize checks op against the session's read-only mode and the SQL
// ceiling of the running statement.
func (a *Authorizer) Authorize(op Operation, ceiling SQLAllowed) error {
	switch op {
	case ArbitraryOp, CallOp:
		if ceiling == NoSQL {
			return routineError(op, ceiling)
		}

	case SelectOp:
		if ceiling > ReadsSQLData {
			return routineError(op, ceiling)
		}

	case WriteOp, PropertyWriteOp:
		if a.readOnly {
			return pgerror.New(pgcode.ReadOnlySQLTransaction,
				"cannot write data on a read-only connection")
		}
		if ceiling > ModifiesSQLData {
			return routineError(op, ceiling)
		}

	case DDLOp, JarWriteOp:
		if a.readOnly {
			return pgerror.New(pgcode.ReadOnlySQLTransaction,
				"cannot change the schema on a read-only connection")
		}
		if ceiling > ModifiesSQLData {
			return routineError(op, ceiling)
		}

	default:
		return errors.AssertionFailedf("unexpected operation %s", op)
	}
	return nil
}

// routineError returns the error for op violating the routine ceiling.
func routineError(op Operation, ceiling SQLAllowed) error {
	switch {
	case ceiling == ReadsSQLData:
		return pgerror.Newf(pgcode.ModifyingSQLDataNotPermitted,
			"%s statement not allowed in a routine declared %s", op, ceiling)
	case ceiling == ContainsSQL && op == SelectOp:
		return pgerror.Newf(pgcode.ReadingSQLDataNotPermitted,
			"%s statement not allowed in a routine declared %s", op, ceiling)
	case ceiling == ContainsSQL:
		return pgerror.Newf(pgcode.ModifyingSQLDataNotPermitted,
			"%s statement not allowed in a routine declared %s", op, ceiling)
	default:
		return pgerror.Newf(pgcode.ContainingSQLNotPermitted,
			"%s statement not allowed in a routine declared %s", op, ceiling)
	}
}
