// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/petermattis/goid"
)

// FormatWithContextTags formats the string and prepends the context
// tags.
//
// Redaction markers are *not* inserted. The resulting
// string is generally unsafe for reporting.
func FormatWithContextTags(ctx context.Context, format string, args ...interface{}) string {
	var buf strings.Builder
	if formatTags(ctx, &buf) {
		buf.WriteByte(' ')
	}
	buf.WriteString(redact.Sprintf(format, args...).StripMarkers())
	return buf.String()
}

// formatTags writes the context tags of ctx, surrounded by brackets, into
// buf. Nothing is written when the context carries no tags.
func formatTags(ctx context.Context, buf *strings.Builder) bool {
	tags := logtags.FromContext(ctx)
	if tags == nil || len(tags.Get()) == 0 {
		return false
	}
	buf.WriteByte('[')
	buf.WriteString(tags.String())
	buf.WriteByte(']')
	return true
}

// addStructured creates a structured log entry and writes it to the
// configured output.
func addStructured(
	ctx context.Context, sev Severity, depth int, format string, args []interface{},
) {
	msg := redact.Sprintf(format, args...)
	if !mainLog.redactableLogs.Load() {
		msg = redact.RedactableString(msg.StripMarkers())
	}

	file, line := "???", 0
	if _, f, l, ok := runtime.Caller(depth + 1); ok {
		file, line = filepath.Base(f), l
	}

	var buf strings.Builder
	now := time.Now().UTC()
	buf.WriteByte(sev.prefix())
	buf.WriteString(now.Format("060102 15:04:05.000000"))
	fmt.Fprintf(&buf, " %d %s:%d ", goid.Get(), file, line)
	if !formatTags(ctx, &buf) {
		buf.WriteString("[-]")
	}
	fmt.Fprintf(&buf, " %d  ", mainLog.entryCounter.Add(1))
	buf.WriteString(string(msg))
	if !strings.HasSuffix(buf.String(), "\n") {
		buf.WriteByte('\n')
	}

	mainLog.mu.Lock()
	defer mainLog.mu.Unlock()
	_, _ = mainLog.mu.out.Write([]byte(buf.String()))
}
