// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

var boolTA = RegisterBoolSetting("bool.t", "", true)
var boolFA = RegisterBoolSetting("bool.f", "", false)
var strFooA = RegisterStringSetting("str.foo", "", "")
var strBarA = RegisterStringSetting("str.bar", "", "bar")
var i1A = RegisterIntSetting("i.1", "", 0)
var i2A = RegisterIntSetting("i.2", "", 5, PositiveInt)
var eA = RegisterEnumSetting("e", "", "foo", map[int64]string{1: "foo", 2: "BAR", 3: "Baz"})

func TestCache(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults", func(t *testing.T) {
		sv := MakeTestingValues()
		require.True(t, boolTA.Get(sv))
		require.False(t, boolFA.Get(sv))
		require.Equal(t, "", strFooA.Get(sv))
		require.Equal(t, "bar", strBarA.Get(sv))
		require.Equal(t, int64(0), i1A.Get(sv))
		require.Equal(t, int64(5), i2A.Get(sv))
		require.Equal(t, int64(1), eA.Get(sv))
		require.Equal(t, "foo", eA.String(sv))
	})

	t.Run("lookup", func(t *testing.T) {
		s, _, ok := Lookup("i.1")
		require.True(t, ok)
		require.Equal(t, Setting(i1A), s)
		_, _, ok = Lookup("dne")
		require.False(t, ok)
		require.Contains(t, Keys(), "str.bar")
	})

	t.Run("read and write each type", func(t *testing.T) {
		sv := MakeTestingValues()
		u := NewUpdater(sv)
		require.NoError(t, u.Set(ctx, "bool.t", EncodeBool(false), "b"))
		require.NoError(t, u.Set(ctx, "str.foo", "baz", "s"))
		require.NoError(t, u.Set(ctx, "i.2", EncodeInt(3), "i"))
		require.NoError(t, u.Set(ctx, "e", "bar", "e"))
		u.ResetRemaining(ctx)

		require.False(t, boolTA.Get(sv))
		require.Equal(t, "baz", strFooA.Get(sv))
		require.Equal(t, int64(3), i2A.Get(sv))
		require.Equal(t, "bar", eA.String(sv))
		// We didn't change this one, so should still see the default.
		require.Equal(t, "bar", strBarA.Get(sv))
	})

	t.Run("any setting not included in an Updater reverts to default", func(t *testing.T) {
		sv := MakeTestingValues()
		i1A.Override(ctx, sv, 7)
		boolFA.Override(ctx, sv, true)
		u := NewUpdater(sv)
		require.NoError(t, u.Set(ctx, "i.1", EncodeInt(1), "i"))
		u.ResetRemaining(ctx)
		require.Equal(t, int64(1), i1A.Get(sv))
		require.False(t, boolFA.Get(sv))
	})

	t.Run("an invalid update to a given setting preserves its previously set value", func(t *testing.T) {
		sv := MakeTestingValues()
		u := NewUpdater(sv)
		require.NoError(t, u.Set(ctx, "i.2", EncodeInt(9), "i"))
		require.ErrorContains(t, u.Set(ctx, "i.2", EncodeBool(false), "b"),
			"setting 'i.2' defined as type i, not b")
		require.ErrorContains(t, u.Set(ctx, "i.2", EncodeBool(false), "i"), "invalid syntax")
		require.ErrorContains(t, u.Set(ctx, "i.2", EncodeInt(-1), "i"), "non-positive")
		require.ErrorContains(t, u.Set(ctx, "e", "qux", "e"), "available values: foo, bar, baz")
		require.Equal(t, int64(9), i2A.Get(sv))
		require.Equal(t, "foo", eA.String(sv))
	})

	t.Run("values are independent", func(t *testing.T) {
		a, b := MakeTestingValues(), MakeTestingValues()
		strFooA.Override(ctx, a, "a")
		require.Equal(t, "a", strFooA.Get(a))
		require.Equal(t, "", strFooA.Get(b))
	})
}

func TestNotifier(t *testing.T) {
	ctx := context.Background()
	sv := MakeTestingValues()
	n := sv.NewNotifier(i1A)
	defer n.Close()

	i1A.Override(ctx, sv, 42)
	select {
	case <-n.Ch():
	default:
		t.Fatal("expected a notification")
	}

	// Unrelated settings and no-op writes do not notify.
	i2A.Override(ctx, sv, 10)
	i1A.Override(ctx, sv, 42)
	select {
	case <-n.Ch():
		t.Fatal("unexpected notification")
	default:
	}
}

func TestApplyYAML(t *testing.T) {
	ctx := context.Background()
	sv := MakeTestingValues()
	err := ApplyYAML(ctx, sv, []byte(`
bool.f: true
i.1: 12
str.foo: hello
e: Baz
`))
	require.NoError(t, err)
	require.True(t, boolFA.Get(sv))
	require.Equal(t, int64(12), i1A.Get(sv))
	require.Equal(t, "hello", strFooA.Get(sv))
	require.Equal(t, int64(3), eA.Get(sv))

	err = ApplyYAML(ctx, sv, []byte(`
i.2: 0
unknown.key: 1
str.bar: baz
`))
	require.ErrorContains(t, err, "setting i.2")
	// The valid entry is still applied.
	require.Equal(t, "baz", strBarA.Get(sv))
	require.Equal(t, int64(5), i2A.Get(sv))

	require.ErrorContains(t, ApplyYAML(ctx, sv, []byte("unknown.key: 1")), "unknown setting 'unknown.key'")
	require.ErrorContains(t, ApplyYAML(ctx, sv, []byte("- not a map")), "parsing settings")
}
