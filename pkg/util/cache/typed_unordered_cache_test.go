// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package cache

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func capacity(n int) func(int, testKey, int) bool {
	return func(size int, _ testKey, _ int) bool { return size > n }
}

// contents lists the cache from most to least recently used.
func contents(c *TypedUnorderedCache[testKey, int]) string {
	var parts []string
	c.Do(func(k testKey, v int) {
		parts = append(parts, fmt.Sprintf("%s=%d", k, v))
	})
	return strings.Join(parts, " ")
}

// TestTypedUnorderedCachePolicies replays a sequence of operations against
// each eviction policy. Operations are "+k" to add k, "?k" to look k up and
// "-k" to delete it.
func TestTypedUnorderedCachePolicies(t *testing.T) {
	for _, tc := range []struct {
		name     string
		policy   EvictionPolicy
		capacity int
		ops      string
		expected string
		evicted  []testKey
	}{
		{
			name:     "lru keeps recently read",
			policy:   CacheLRU,
			capacity: 2,
			ops:      "+a +b ?a +c",
			expected: "c=3 a=1",
			evicted:  []testKey{"b"},
		},
		{
			name:     "fifo ignores reads",
			policy:   CacheFIFO,
			capacity: 2,
			ops:      "+a +b ?a +c",
			expected: "c=3 b=2",
			evicted:  []testKey{"a"},
		},
		{
			name:     "delete frees room",
			policy:   CacheLRU,
			capacity: 2,
			ops:      "+a +b -a +c",
			expected: "c=3 b=2",
		},
		{
			name:     "evicts down to capacity",
			policy:   CacheFIFO,
			capacity: 1,
			ops:      "+a +b +c +d",
			expected: "d=4",
			evicted:  []testKey{"a", "b", "c"},
		},
		{
			name:     "no policy never evicts",
			policy:   CacheNone,
			capacity: 1,
			ops:      "+a +b +c",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var evicted []testKey
			c := NewTypedUnorderedCache[testKey, int](TypedConfig[testKey, int]{
				Policy:      tc.policy,
				ShouldEvict: capacity(tc.capacity),
				OnEvicted:   func(k testKey, _ int) { evicted = append(evicted, k) },
			})
			next := 1
			for _, op := range strings.Fields(tc.ops) {
				k := testKey(op[1:])
				switch op[0] {
				case '+':
					c.Add(k, next)
					next++
				case '?':
					_, ok := c.Get(k)
					require.True(t, ok, "missing %s", k)
				case '-':
					c.Del(k)
				}
			}
			require.Equal(t, tc.evicted, evicted)
			if tc.policy == CacheNone {
				require.Equal(t, strings.Count(tc.ops, "+"), c.Len())
				return
			}
			require.Equal(t, tc.expected, contents(c))
		})
	}
}

func TestTypedUnorderedCacheClear(t *testing.T) {
	var evictions int
	c := NewTypedUnorderedCache[testKey, int](TypedConfig[testKey, int]{
		Policy:      CacheLRU,
		ShouldEvict: capacity(8),
		OnEvicted:   func(testKey, int) { evictions++ },
	})
	c.Add("a", 1)
	c.Add("b", 2)
	c.Clear()
	require.Zero(t, c.Len())
	require.Zero(t, evictions)
	_, ok := c.Get("a")
	require.False(t, ok)

	c.Add("a", 5)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 5, v)
}

func BenchmarkTypedUnorderedCache(b *testing.B) {
	c := NewTypedUnorderedCache[testKey, int](TypedConfig[testKey, int]{
		Policy:      CacheLRU,
		ShouldEvict: capacity(4),
	})
	keys := []testKey{"a", "b", "c", "d", "e"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for j, k := range keys {
			c.Add(k, j)
		}
	}
}
