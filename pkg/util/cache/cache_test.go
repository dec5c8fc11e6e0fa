// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testKey string

var getTests = []struct {
	name       string
	keyToAdd   testKey
	keyToGet   testKey
	expectedOk bool
}{
	{"string_hit", "myKey", "myKey", true},
	{"string_miss", "myKey", "nonsense", false},
	{"empty_hit", "", "", true},
}

func noEviction(size int, key, value interface{}) bool {
	return false
}

func evictTwoOrMore(size int, key, value interface{}) bool {
	return size > 1
}

func TestUnorderedCacheGet(t *testing.T) {
	for _, tt := range getTests {
		mc := NewUnorderedCache(Config{Policy: CacheLRU, ShouldEvict: noEviction})
		mc.Add(tt.keyToAdd, 1234)
		val, ok := mc.Get(tt.keyToGet)
		require.Equal(t, tt.expectedOk, ok, tt.name)
		if ok {
			require.Equal(t, 1234, val, tt.name)
		}
	}
}

func TestUnorderedCacheOnEvicted(t *testing.T) {
	var evicted []interface{}
	mc := NewUnorderedCache(Config{
		Policy:      CacheLRU,
		ShouldEvict: evictTwoOrMore,
		OnEvicted: func(key, value interface{}) {
			evicted = append(evicted, key)
		},
	})
	mc.Add(testKey("a"), 1)
	mc.Add(testKey("b"), 2)
	mc.Add(testKey("c"), 3)
	require.Equal(t, []interface{}{testKey("a"), testKey("b")}, evicted)

	// Explicit deletion is not an eviction.
	mc.Del(testKey("c"))
	require.Len(t, evicted, 2)
	require.Zero(t, mc.Len())
}

func TestUnorderedCacheDo(t *testing.T) {
	mc := NewUnorderedCache(Config{Policy: CacheLRU, ShouldEvict: noEviction})
	mc.Add(testKey("a"), 1)
	mc.Add(testKey("b"), 2)
	mc.Add(testKey("c"), 3)
	_, _ = mc.Get(testKey("a"))

	var order []interface{}
	mc.Do(func(k, v interface{}) {
		order = append(order, k)
	})
	require.Equal(t, []interface{}{testKey("a"), testKey("c"), testKey("b")}, order)
}

func TestUnorderedCacheReplaceValue(t *testing.T) {
	mc := NewUnorderedCache(Config{Policy: CacheFIFO, ShouldEvict: noEviction})
	mc.Add(testKey("a"), 1)
	mc.Add(testKey("a"), 2)
	require.Equal(t, 1, mc.Len())
	val, ok := mc.Get(testKey("a"))
	require.True(t, ok)
	require.Equal(t, 2, val)
}
