// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package stmtcache implements the process-wide cache of compiled
// statements shared by all sessions.
//
// At most one compiled plan exists per key: concurrent lookups of a missing
// or stale key share a single compilation. Plans that use the session schema
// are compiled for each caller and never cached. Entries are never mutated once
// inserted; revalidation replaces them. Entries checked out through a Handle
// cannot be evicted; idle entries are kept in an LRU bounded by
// sql.stmt_cache.capacity.
package stmtcache

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/settings"
	"github.com/cockroachdb/sessioncore/pkg/util/cache"
	"github.com/cockroachdb/sessioncore/pkg/util/log"
	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"
)

// Capacity bounds the number of idle entries kept by the cache.
var Capacity = settings.RegisterIntSetting(
	"sql.stmt_cache.capacity",
	"maximum number of unreferenced compiled statements kept in the statement cache",
	100,
	settings.NonNegativeInt,
)

// Key identifies a cached statement.
type Key struct {
	// Schema is the compilation schema.
	Schema string
	// SQL is the statement text with surrounding whitespace removed.
	SQL string
	// ForReadOnly is set for statements compiled for read-only cursors.
	ForReadOnly bool
}

// MakeKey normalizes the statement text and returns its key.
func MakeKey(schema, sql string, forReadOnly bool) Key {
	return Key{Schema: schema, SQL: strings.TrimSpace(sql), ForReadOnly: forReadOnly}
}

func (k Key) flightKey() string {
	return fmt.Sprintf("%s\x00%t\x00%s", k.Schema, k.ForReadOnly, k.SQL)
}

// Plan is a compiled statement.
type Plan interface {
	// UpToDate returns false once a schema object the plan depends on has
	// changed.
	UpToDate() bool
	// Epoch returns the code generation the plan was compiled under.
	Epoch() int64
	// UsesSessionSchema returns true if the plan references session-private
	// objects. Such plans are never shared.
	UsesSessionSchema() bool
}

// Compiler compiles statements on a cache miss.
type Compiler interface {
	Compile(ctx context.Context, key Key) (Plan, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(ctx context.Context, key Key) (Plan, error)

// Compile implements Compiler.
func (f CompilerFunc) Compile(ctx context.Context, key Key) (Plan, error) {
	return f(ctx, key)
}

type entry struct {
	key  Key
	plan Plan
	// refs is the number of outstanding handles. Protected by Cache.mu.
	refs int
}

// Handle is a checked-out reference to a compiled plan. It must be returned
// with Release.
type Handle struct {
	c        *Cache
	e        *entry
	released bool
}

// Plan returns the compiled plan. It stays usable after the entry is evicted
// or replaced.
func (h *Handle) Plan() Plan { return h.e.plan }

// Key returns the cache key of the plan.
func (h *Handle) Key() Key { return h.e.key }

// Cache is the shared statement cache. It is safe for concurrent use.
type Cache struct {
	compiler Compiler
	epoch    func() int64
	sv       *settings.Values
	metrics  Metrics
	flights  singleflight.Group

	mu struct {
		syncutil.Mutex
		entries map[Key]*entry
		// idle holds the cached entries without outstanding handles.
		idle *cache.TypedUnorderedCache[Key, *entry]
	}
}

// New creates a cache. epoch returns the current code generation; plans
// compiled under an older one are recompiled.
func New(sv *settings.Values, compiler Compiler, epoch func() int64) *Cache {
	c := &Cache{
		compiler: compiler,
		epoch:    epoch,
		sv:       sv,
		metrics:  MakeMetrics(),
	}
	c.mu.entries = make(map[Key]*entry)
	c.mu.idle = cache.NewTypedUnorderedCache(cache.TypedConfig[Key, *entry]{
		Policy: cache.CacheLRU,
		ShouldEvict: func(size int, _ Key, _ *entry) bool {
			return int64(size) > Capacity.Get(sv)
		},
		OnEvicted: func(k Key, e *entry) {
			c.mu.AssertHeld()
			if c.mu.entries[k] == e {
				delete(c.mu.entries, k)
			}
			c.metrics.Evictions.Inc(1)
			c.metrics.Entries.Update(int64(len(c.mu.entries)))
		},
	})
	return c
}

// Metrics returns the cache's metric struct.
func (c *Cache) Metrics() *Metrics { return &c.metrics }

func (c *Cache) valid(e *entry) bool {
	return e.plan.UpToDate() && e.plan.Epoch() == c.epoch()
}

// acquireLocked checks out e.
func (c *Cache) acquireLocked(e *entry) *Handle {
	c.mu.AssertHeld()
	if e.refs == 0 && c.mu.entries[e.key] == e {
		c.mu.idle.Del(e.key)
	}
	e.refs++
	return &Handle{c: c, e: e}
}

// Find returns a handle to a valid compiled plan for key, compiling it if
// the cache has no entry or the entry is stale. Concurrent calls for the same
// key compile at most once, except for plans that use the session schema:
// every caller gets its own compilation of those.
func (c *Cache) Find(ctx context.Context, key Key) (*Handle, error) {
	c.mu.Lock()
	if e, ok := c.mu.entries[key]; ok && c.valid(e) {
		h := c.acquireLocked(e)
		c.mu.Unlock()
		c.metrics.Hits.Inc(1)
		return h, nil
	}
	c.mu.Unlock()
	c.metrics.Misses.Inc(1)

	var leader bool
	res, err, shared := c.flights.Do(key.flightKey(), func() (interface{}, error) {
		leader = true
		// A flight that finished just before this one started may have
		// installed a valid entry.
		c.mu.Lock()
		if e, ok := c.mu.entries[key]; ok && c.valid(e) {
			c.mu.Unlock()
			return e, nil
		}
		c.mu.Unlock()

		e, err := c.compile(ctx, key)
		if err != nil || e.plan.UsesSessionSchema() {
			return e, err
		}

		// The new entry stays out of the idle list until its first handle
		// is released, so it cannot be evicted before the callers of this
		// flight check it out.
		c.mu.Lock()
		defer c.mu.Unlock()
		if old, ok := c.mu.entries[key]; ok && old.refs == 0 {
			c.mu.idle.Del(key)
		}
		c.mu.entries[key] = e
		c.metrics.Entries.Update(int64(len(c.mu.entries)))
		return e, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "compiling %q", key.SQL)
	}
	e := res.(*entry)
	if shared {
		log.VEventf(ctx, 2, "shared compilation of %q", key.SQL)
		if !leader && e.plan.UsesSessionSchema() {
			// The plan was compiled for another session.
			if e, err = c.compile(ctx, key); err != nil {
				return nil, errors.Wrapf(err, "compiling %q", key.SQL)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquireLocked(e), nil
}

func (c *Cache) compile(ctx context.Context, key Key) (*entry, error) {
	plan, err := c.compiler.Compile(ctx, key)
	c.metrics.Compiles.Inc(1)
	if err != nil {
		return nil, err
	}
	return &entry{key: key, plan: plan}, nil
}

// Release returns a handle. Releasing a handle twice is a no-op.
func (c *Cache) Release(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	e := h.e
	e.refs--
	if e.refs == 0 && c.mu.entries[e.key] == e {
		c.mu.idle.Add(e.key, e)
	}
}

// Remove evicts the handle's entry so that no later Find returns it. The
// handle itself remains valid and must still be released.
func (c *Cache) Remove(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := h.e
	if c.mu.entries[e.key] != e {
		return
	}
	delete(c.mu.entries, e.key)
	if e.refs == 0 {
		c.mu.idle.Del(e.key)
	}
	c.metrics.Entries.Update(int64(len(c.mu.entries)))
}

// AgeOut discards every entry without outstanding handles.
func (c *Cache) AgeOut(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.mu.idle.Len()
	c.mu.idle.Do(func(k Key, e *entry) {
		if c.mu.entries[k] == e {
			delete(c.mu.entries, k)
		}
	})
	c.mu.idle.Clear()
	c.metrics.Evictions.Inc(int64(n))
	c.metrics.Entries.Update(int64(len(c.mu.entries)))
	if n > 0 {
		log.VEventf(ctx, 2, "aged out %d statements", n)
	}
}

// InvalidateAll discards every entry. Outstanding handles stay usable but
// their plans are no longer found by Find.
func (c *Cache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.mu.entries)
	c.mu.entries = make(map[Key]*entry)
	c.mu.idle.Clear()
	c.metrics.Invalidations.Inc(int64(n))
	c.metrics.Entries.Update(0)
	log.Infof(ctx, "invalidated %d cached statements", n)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mu.entries)
}

// Stats returns a human-readable summary of the cache.
func (c *Cache) Stats() string {
	c.mu.Lock()
	entries, idle := len(c.mu.entries), c.mu.idle.Len()
	c.mu.Unlock()
	return fmt.Sprintf("%s entries (%s idle), %s hits, %s misses, %s compiles, %s evictions",
		humanize.Comma(int64(entries)),
		humanize.Comma(int64(idle)),
		humanize.Comma(c.metrics.Hits.Count()),
		humanize.Comma(c.metrics.Misses.Count()),
		humanize.Comma(c.metrics.Compiles.Count()),
		humanize.Comma(c.metrics.Evictions.Count()),
	)
}
