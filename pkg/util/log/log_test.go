// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
	"github.com/stretchr/testify/require"
)

func TestLogTagsAndRedaction(t *testing.T) {
	sc := Scope(t)
	defer sc.Close(t)

	ctx := logtags.AddTag(context.Background(), "session", 7)
	Infof(ctx, "dropping %s at level %d", "secret", redact.Safe(3))

	out := sc.Contents()
	require.Contains(t, out, "[session=7]")
	require.Contains(t, out, "dropping ‹secret› at level 3")
	require.Equal(t, byte('I'), out[0])
}

func TestLogNotRedactable(t *testing.T) {
	sc := Scope(t)
	defer sc.Close(t)
	SetRedactable(false)
	defer SetRedactable(true)

	Warningf(context.Background(), "table %s", "t")
	out := sc.Contents()
	require.Contains(t, out, "[-]")
	require.Contains(t, out, "table t\n")
	require.Equal(t, byte('W'), out[0])
}

func TestVEventf(t *testing.T) {
	sc := Scope(t)
	defer sc.Close(t)

	VEventf(context.Background(), 2, "hidden")
	require.Empty(t, sc.Contents())

	SetVerbosity(2)
	VEventf(context.Background(), 2, "shown")
	require.Contains(t, sc.Contents(), "shown")
}

func TestFormatWithContextTags(t *testing.T) {
	ctx := logtags.AddTag(context.Background(), "conn", 3)
	require.Equal(t, "[conn=3] hello world", FormatWithContextTags(ctx, "hello %s", "world"))
	require.Equal(t, "hi", FormatWithContextTags(context.Background(), "hi"))
}

func TestEveryN(t *testing.T) {
	start := time.Now()
	e := Every(time.Minute)
	require.True(t, e.shouldLog(start))
	require.False(t, e.shouldLog(start.Add(time.Second)))
	require.True(t, e.shouldLog(start.Add(2*time.Minute)))
}

func TestFatalfUsesExitFunc(t *testing.T) {
	sc := Scope(t)
	defer sc.Close(t)
	var code int
	SetExitFunc(func(c int) { code = c })
	defer SetExitFunc(nil)

	Fatalf(context.Background(), "boom")
	require.Equal(t, 255, code)
	require.Equal(t, byte('F'), sc.Contents()[0])
}
