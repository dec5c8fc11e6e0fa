// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"bytes"
	"io"
	"strings"

	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
)

type tShim interface {
	Failed() bool
	Helper()
	Log(args ...interface{})
	Logf(format string, args ...interface{})
}

// TestLogScope represents the lifetime of a logging output redirection for
// a test. Use Scope() to create one and its Close() method to restore the
// previous output.
type TestLogScope struct {
	prevOut       io.Writer
	prevVerbosity Level

	mu struct {
		syncutil.Mutex
		buf bytes.Buffer
	}
}

// Scope redirects all log output to an in-memory buffer for the duration
// of a test. The captured output is replayed through t.Log if the test
// fails.
//
// Use with:
//
//	defer log.Scope(t).Close(t)
func Scope(t tShim) *TestLogScope {
	t.Helper()
	s := &TestLogScope{}
	mainLog.mu.Lock()
	defer mainLog.mu.Unlock()
	s.prevOut = mainLog.mu.out
	s.prevVerbosity = Level(mainLog.verbosity.Load())
	mainLog.mu.out = scopeWriter{s}
	return s
}

type scopeWriter struct {
	s *TestLogScope
}

func (w scopeWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return w.s.mu.buf.Write(p)
}

// Contents returns the log output captured so far.
func (s *TestLogScope) Contents() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.buf.String()
}

// Close restores the log output that was active when the scope was created.
func (s *TestLogScope) Close(t tShim) {
	t.Helper()
	mainLog.mu.Lock()
	mainLog.mu.out = s.prevOut
	mainLog.mu.Unlock()
	mainLog.verbosity.Store(int32(s.prevVerbosity))
	if t.Failed() {
		if c := strings.TrimSpace(s.Contents()); c != "" {
			t.Logf("captured log output:\n%s", c)
		}
	}
}
