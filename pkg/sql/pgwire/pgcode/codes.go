// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package pgcode defines the PostgreSQL-style SQLSTATE codes attached to
// errors raised by the session core.
package pgcode

// Code is a wrapper around a string to ensure that pgcodes don't get
// interchanged with other strings. Code must be used only for codes
// defined in this file.
type Code struct {
	code string
}

// MakeCode converts a string into a Code.
func MakeCode(s string) Code {
	return Code{code: s}
}

// String returns the underlying pgcode string.
func (c Code) String() string {
	return c.code
}

// Class returns the two-character class of the code.
func (c Code) Class() string {
	if len(c.code) < 2 {
		return c.code
	}
	return c.code[:2]
}

// SafeValue implements redact.SafeValue.
func (c Code) SafeValue() {}

// PG error codes from: http://www.postgresql.org/docs/current/static/errcodes-appendix.html.
// Codes in the "X" classes are specific to this engine.
var (
	// Section: Class 00 - Successful Completion
	SuccessfulCompletion = MakeCode("00000")
	// Section: Class 08 - Connection Exception
	ConnectionException    = MakeCode("08000")
	ConnectionDoesNotExist = MakeCode("08003")
	// Section: Class 0A - Feature Not Supported
	FeatureNotSupported = MakeCode("0A000")
	// Section: Class 25 - Invalid Transaction State
	InvalidTransactionState      = MakeCode("25000")
	ActiveSQLTransaction         = MakeCode("25001")
	ReadOnlySQLTransaction       = MakeCode("25006")
	NoActiveSQLTransaction       = MakeCode("25P01")
	CannotSetReadWriteConnection = MakeCode("25505")
	// Section: Class 28 - Invalid Authorization Specification
	InvalidAuthorizationSpecification = MakeCode("28000")
	// Section: Class 2D - Invalid Transaction Termination
	InvalidTransactionTermination = MakeCode("2D000")
	// Section: Class 38 - External Routine Exception
	ExternalRoutineException        = MakeCode("38000")
	ContainingSQLNotPermitted       = MakeCode("38001")
	ModifyingSQLDataNotPermitted    = MakeCode("38002")
	ProhibitedSQLStatementAttempted = MakeCode("38003")
	ReadingSQLDataNotPermitted      = MakeCode("38004")
	// Section: Class 3B - Savepoint Exception
	SavepointException            = MakeCode("3B000")
	InvalidSavepointSpecification = MakeCode("3B001")
	SavepointNestingNotAllowed    = MakeCode("3B002")
	DuplicateSavepoint            = MakeCode("3B501")
	// Section: Class 40 - Transaction Rollback
	TransactionRollback  = MakeCode("40000")
	SerializationFailure = MakeCode("40001")
	// Section: Class 42 - Syntax Error or Access Rule Violation
	InsufficientPrivilege = MakeCode("42501")
	UndefinedTable        = MakeCode("42P01")
	DuplicateRelation     = MakeCode("42P07")
	// Section: Class 54 - Program Limit Exceeded
	ProgramLimitExceeded = MakeCode("54000")
	// Section: Class 55 - Object Not In Prerequisite State
	ObjectNotInPrerequisiteState = MakeCode("55000")
	// Section: Class 57 - Operator Intervention
	AdminShutdown = MakeCode("57P01")
	// Section: Class 58 - System Error
	System = MakeCode("58000")
	// Section: Class XX - Internal Error
	Internal = MakeCode("XX000")

	// Class XC - Session core specific errors.

	// IsolationChangeWithHeldCursors signals an attempt to change the
	// isolation level while holdable cursors remain open.
	IsolationChangeWithHeldCursors = MakeCode("XCX03")
	// IsolationChangeInTrigger signals an attempt to change the isolation
	// level from inside a trigger.
	IsolationChangeInTrigger = MakeCode("XCY70")
	// NestedTransactionMismatch signals a nested-transaction commit without a
	// matching begin.
	NestedTransactionMismatch = MakeCode("XCY71")

	// Uncategorized is used for errors that flow out to a client
	// when there's no code known yet.
	Uncategorized = MakeCode("XXUUU")
)
