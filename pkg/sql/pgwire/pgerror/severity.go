// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package pgerror

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/gogo/protobuf/proto"
)

// Severity classifies how far an error unwinds session state. The values are
// ordered: a higher severity implies all the cleanup of the lower ones.
type Severity int

const (
	// SeverityUnclassified is reported for errors that carry neither a
	// severity nor a pg code.
	SeverityUnclassified Severity = iota
	// SeverityStatement errors are recovered by rolling the failing statement
	// back to its internal savepoint.
	SeverityStatement
	// SeverityTransaction errors roll back the whole transaction.
	SeverityTransaction
	// SeveritySession errors close every activation and end the session.
	SeveritySession
	// SeverityFatal errors are worse than session severity; the owner of the
	// connection must tear it down completely.
	SeverityFatal
)

var severityNames = [...]string{
	SeverityUnclassified: "unclassified",
	SeverityStatement:    "statement",
	SeverityTransaction:  "transaction",
	SeveritySession:      "session",
	SeverityFatal:        "fatal",
}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// SafeValue implements redact.SafeValue.
func (Severity) SafeValue() {}

// WithSeverity decorates the error with a severity. The outermost severity
// annotation wins.
func WithSeverity(err error, severity Severity) error {
	if err == nil {
		return nil
	}
	return &withSeverity{cause: err, severity: severity}
}

// GetSeverity returns the severity of the error. Explicit annotations take
// precedence; otherwise the severity is derived from the error's pg code
// class. Errors with neither report SeverityUnclassified.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityUnclassified
	}
	if v, ok := errors.If(err, func(err error) (interface{}, bool) {
		if w, ok := err.(*withSeverity); ok {
			return w.severity, true
		}
		return nil, false
	}); ok {
		return v.(Severity)
	}
	if !HasCandidateCode(err) {
		return SeverityUnclassified
	}
	switch code := GetPGCode(err); code.Class() {
	case "40":
		return SeverityTransaction
	case "08", "28":
		return SeveritySession
	case "57", "58":
		return SeverityFatal
	case "XX":
		if code.String() == "XX000" {
			return SeveritySession
		}
		return SeverityUnclassified
	default:
		return SeverityStatement
	}
}

// withSeverity decorates an error with a given severity.
type withSeverity struct {
	cause    error
	severity Severity
}

var _ error = (*withSeverity)(nil)
var _ errors.SafeDetailer = (*withSeverity)(nil)
var _ fmt.Formatter = (*withSeverity)(nil)
var _ errors.SafeFormatter = (*withSeverity)(nil)

func (w *withSeverity) Error() string { return w.cause.Error() }
func (w *withSeverity) Cause() error  { return w.cause }
func (w *withSeverity) Unwrap() error { return w.cause }
func (w *withSeverity) SafeDetails() []string {
	return []string{strconv.Itoa(int(w.severity))}
}

func (w *withSeverity) Format(s fmt.State, verb rune) { errors.FormatError(w, s, verb) }

func (w *withSeverity) SafeFormatError(p errors.Printer) (next error) {
	if p.Detail() {
		p.Printf("severity: %s", redact.Safe(w.severity))
	}
	return w.cause
}

func decodeWithSeverity(
	_ context.Context, cause error, _ string, details []string, _ proto.Message,
) error {
	severity := SeverityUnclassified
	if len(details) > 0 {
		if n, err := strconv.Atoi(details[0]); err == nil {
			severity = Severity(n)
		}
	}
	return &withSeverity{cause: cause, severity: severity}
}
