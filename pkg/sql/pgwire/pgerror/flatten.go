// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package pgerror

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
)

// Error is the flattened, client-facing form of an error.
type Error struct {
	Code     string
	Severity Severity
	Message  string
	Detail   string
	Hint     string
}

func (e *Error) Error() string { return e.Message }

// Flatten turns any error into an Error with fields populated.
// Returns a nil ptr if err was nil to start with.
func Flatten(err error) *Error {
	if err == nil {
		return nil
	}
	resErr := &Error{
		Code:     GetPGCode(err).String(),
		Severity: GetSeverity(err),
		Message:  err.Error(),
		Detail:   errors.FlattenDetails(err),
		Hint:     errors.FlattenHints(err),
	}
	if errors.IsAssertionFailure(err) && !strings.HasPrefix(resErr.Message, InternalErrorPrefix) {
		resErr.Message = InternalErrorPrefix + resErr.Message
	}
	return resErr
}

// InternalErrorPrefix is prepended to internal errors.
const InternalErrorPrefix = "internal error: "

// FullError can be used when the hint and/or detail are to be tested.
func FullError(err error) string {
	var errString string
	if pqErr := Flatten(err); pqErr != nil {
		errString = formatMsgHintDetail("pg", pqErr.Message, pqErr.Hint, pqErr.Detail)
	}
	return errString
}

// Redacted returns the message of err with unsafe values redacted, suitable
// for reporting.
func Redacted(err error) string {
	return string(redact.Sprint(err).Redact())
}

func formatMsgHintDetail(prefix, msg, hint, detail string) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(": ")
	b.WriteString(msg)
	if hint != "" {
		b.WriteString("\nHINT: ")
		b.WriteString(hint)
	}
	if detail != "" {
		b.WriteString("\nDETAIL: ")
		b.WriteString(detail)
	}
	return b.String()
}
