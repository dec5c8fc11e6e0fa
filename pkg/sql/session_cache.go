// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/sessioncore/pkg/settings"
	"github.com/cockroachdb/sessioncore/pkg/util/cache"
	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
	"github.com/google/uuid"
)

// ClosedSessionCacheCapacity bounds the number of closed sessions kept for
// inspection. Lowering it takes effect on the next close.
var ClosedSessionCacheCapacity = settings.RegisterIntSetting(
	"sql.closed_session_cache.capacity",
	"the maximum number of closed sessions kept for inspection",
	100,
	settings.NonNegativeInt,
)

// ClosedSessionCacheTimeToLive is how long, in seconds, a closed session
// stays visible.
var ClosedSessionCacheTimeToLive = settings.RegisterIntSetting(
	"sql.closed_session_cache.time_to_live",
	"the number of seconds a closed session stays visible",
	3600,
	settings.NonNegativeInt,
)

// ClosedSessionCache is an in-memory FIFO cache for closed sessions.
type ClosedSessionCache struct {
	sv *settings.Values
	// timeSrc is overridden in tests.
	timeSrc func() time.Time

	mu struct {
		syncutil.Mutex
		queue *cache.TypedUnorderedCache[uuid.UUID, *ClosedSessionNode]
	}
}

// NewClosedSessionCache returns an empty cache.
func NewClosedSessionCache(sv *settings.Values) *ClosedSessionCache {
	c := &ClosedSessionCache{sv: sv, timeSrc: time.Now}

	c.mu.queue = cache.NewTypedUnorderedCache(cache.TypedConfig[uuid.UUID, *ClosedSessionNode]{
		Policy: cache.CacheFIFO,
		ShouldEvict: func(size int, _ uuid.UUID, _ *ClosedSessionNode) bool {
			capacity := ClosedSessionCacheCapacity.Get(sv)
			return int64(size) > capacity
		},
	})

	return c
}

func (c *ClosedSessionCache) add(s *Session, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node := &ClosedSessionNode{
		ID:        s.id,
		User:      s.User(),
		Cause:     cause,
		timestamp: c.timeSrc(),
	}
	c.mu.queue.Add(s.id, node)
}

// Size returns the number of cached sessions, including expired ones not
// evicted yet.
func (c *ClosedSessionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mu.queue.Len()
}

// Sessions returns the cached sessions, ordered from newest to oldest.
// Sessions older than the time to live are evicted.
func (c *ClosedSessionCache) Sessions() []*ClosedSessionNode {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.timeSrc()
	ttl := time.Duration(ClosedSessionCacheTimeToLive.Get(c.sv)) * time.Second
	var live []*ClosedSessionNode
	var expired []uuid.UUID
	c.mu.queue.Do(func(id uuid.UUID, node *ClosedSessionNode) {
		if node.age(now) > ttl {
			expired = append(expired, id)
			return
		}
		live = append(live, node)
	})
	for _, id := range expired {
		c.mu.queue.Del(id)
	}
	return live
}

// viewCachedSessions renders the live sessions, newest first.
func (c *ClosedSessionCache) viewCachedSessions() string {
	sessions := c.Sessions()
	if len(sessions) == 0 {
		return "empty"
	}
	now := c.timeSrc()
	var buf strings.Builder
	for i, n := range sessions {
		if i > 0 {
			buf.WriteByte('\n')
		}
		cause := "none"
		if n.Cause != nil {
			cause = n.Cause.Error()
		}
		fmt.Fprintf(&buf, "user: %s age: %s cause: %s", n.User, n.age(now).Round(time.Second), cause)
	}
	return buf.String()
}

func (c *ClosedSessionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mu.queue.Clear()
}

// ClosedSessionNode describes a session after it closed.
type ClosedSessionNode struct {
	ID   uuid.UUID
	User string
	// Cause is the error that closed the session, or nil for a normal
	// close.
	Cause     error
	timestamp time.Time
}

func (n *ClosedSessionNode) age(now time.Time) time.Duration {
	return now.Sub(n.timestamp)
}
