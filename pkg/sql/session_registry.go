// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"sort"

	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
	"github.com/google/uuid"
)

// SessionRegistry stores a set of all sessions on this node.
type SessionRegistry struct {
	mu struct {
		syncutil.RWMutex
		sessions map[uuid.UUID]*Session
	}
}

// NewSessionRegistry creates a new SessionRegistry with an empty set
// of sessions.
func NewSessionRegistry() *SessionRegistry {
	r := &SessionRegistry{}
	r.mu.sessions = make(map[uuid.UUID]*Session)
	return r
}

func (r *SessionRegistry) register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mu.sessions[s.id] = s
}

func (r *SessionRegistry) deregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mu.sessions, s.id)
}

// Get returns the open session with the given id.
func (r *SessionRegistry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.mu.sessions[id]
	return s, ok
}

// Len returns the number of open sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.mu.sessions)
}

// Users returns the users of the open sessions in sorted order.
func (r *SessionRegistry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.mu.sessions))
	for _, s := range r.mu.sessions {
		users = append(users, s.User())
	}
	sort.Strings(users)
	return users
}
