// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log implements context-aware, redactable logging. Messages carry
// the logtags attached to the context they are logged with, and arguments
// are marked as unsafe for reporting unless wrapped with redact.Safe.
package log

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
)

// Severity identifies the sort of log: info, warning etc.
type Severity int32

// Severity levels, in increasing order.
const (
	Severity_INFO Severity = iota + 1
	Severity_WARNING
	Severity_ERROR
	Severity_FATAL
)

func (s Severity) prefix() byte {
	switch s {
	case Severity_INFO:
		return 'I'
	case Severity_WARNING:
		return 'W'
	case Severity_ERROR:
		return 'E'
	case Severity_FATAL:
		return 'F'
	default:
		return '?'
	}
}

// Level specifies a level of verbosity for V logs.
type Level int32

type loggerT struct {
	verbosity      atomic.Int32
	redactableLogs atomic.Bool
	entryCounter   atomic.Uint64

	mu struct {
		syncutil.Mutex
		out          io.Writer
		exitOverride func(int)
	}
}

var mainLog = func() *loggerT {
	l := &loggerT{}
	l.mu.out = os.Stderr
	l.redactableLogs.Store(true)
	return l
}()

// SetVerbosity sets the global verbosity level used by V and VEventf. It
// returns the previous level.
func SetVerbosity(level Level) Level {
	return Level(mainLog.verbosity.Swap(int32(level)))
}

// SetRedactable configures whether log messages retain redaction markers
// around unsafe values.
func SetRedactable(redactable bool) {
	mainLog.redactableLogs.Store(redactable)
}

// SetExitFunc allows setting a function that will be called to exit the
// process when a Fatal message is generated. Call with a nil function to
// undo.
func SetExitFunc(f func(int)) {
	mainLog.mu.Lock()
	defer mainLog.mu.Unlock()
	mainLog.mu.exitOverride = f
}

// V returns true if the logging verbosity is set to the specified level or
// higher.
func V(level Level) bool {
	return Level(mainLog.verbosity.Load()) >= level
}

// Infof logs to the INFO log.
func Infof(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, Severity_INFO, 1, format, args)
}

// Info logs a message to the INFO log.
func Info(ctx context.Context, msg string) {
	addStructured(ctx, Severity_INFO, 1, "%s", []interface{}{msg})
}

// Warningf logs to the WARNING and INFO logs.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, Severity_WARNING, 1, format, args)
}

// Errorf logs to the ERROR, WARNING, and INFO logs.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, Severity_ERROR, 1, format, args)
}

// Fatalf logs to the FATAL log and then terminates the process, unless an
// exit function was installed with SetExitFunc.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	addStructured(ctx, Severity_FATAL, 1, format, args)
	mainLog.mu.Lock()
	exit := mainLog.mu.exitOverride
	mainLog.mu.Unlock()
	if exit == nil {
		exit = os.Exit
	}
	exit(255)
}

// VEventf logs to the INFO log if the verbosity is at least level.
func VEventf(ctx context.Context, level Level, format string, args ...interface{}) {
	if V(level) {
		addStructured(ctx, Severity_INFO, 1, format, args)
	}
}
