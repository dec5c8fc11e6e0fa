// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sql

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgcode"
	"github.com/cockroachdb/sessioncore/pkg/sql/pgwire/pgerror"
)

// AutoincrementKey identifies an autoincrement column.
type AutoincrementKey struct {
	Schema, Table, Column string
}

// SafeFormat implements redact.SafeFormatter.
func (k AutoincrementKey) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("%s.%s.%s", k.Schema, k.Table, k.Column)
}

func (k AutoincrementKey) String() string { return redact.StringWithoutMarkers(k) }

// autoincrementCounter generates the values of one autoincrement column
// during an insert.
type autoincrementCounter struct {
	start, increment int64
	current          int64
	// used is set once the first value was generated.
	used bool
}

func (c *autoincrementCounter) next() int64 {
	if !c.used {
		c.current = c.start
		c.used = true
	} else {
		c.current += c.increment
	}
	return c.current
}

// AutoincrementCreateCounter sets up the counter of an autoincrement column
// for an insert. The first generated value is initial.
func (s *Session) AutoincrementCreateCounter(key AutoincrementKey, initial, increment int64) {
	if s.autoinc.cache == nil {
		s.autoinc.cache = make(map[AutoincrementKey]*autoincrementCounter)
	}
	s.autoinc.cache[key] = &autoincrementCounter{start: initial, increment: increment}
}

// NextAutoincrementValue generates the next value of an autoincrement
// column. The counter must have been created with
// AutoincrementCreateCounter.
func (s *Session) NextAutoincrementValue(key AutoincrementKey) (int64, error) {
	c, ok := s.autoinc.cache[key]
	if !ok {
		return 0, errors.AssertionFailedf("no autoincrement counter for %s", key)
	}
	return c.next(), nil
}

// AutoincrementFlushCache persists the counters created for an insert into
// tableID and makes their current values the session's last values.
func (s *Session) AutoincrementFlushCache(ctx context.Context, tableID string) error {
	if len(s.autoinc.cache) == 0 {
		return nil
	}
	flushed := make(map[AutoincrementKey]int64, len(s.autoinc.cache))
	for k, c := range s.autoinc.cache {
		if c.used {
			flushed[k] = c.current
			s.autoinc.values[k] = c.current
		}
	}
	s.autoinc.cache = nil
	if f := s.server.cfg.AutoincrementFlusher; f != nil && len(flushed) > 0 {
		return f.FlushAutoincrement(s.AnnotateCtx(ctx), tableID, flushed)
	}
	return nil
}

// LastAutoincrementValue returns the last value generated for an
// autoincrement column. The executing triggers are searched innermost first,
// then the values generated by the session's own statements.
func (s *Session) LastAutoincrementValue(key AutoincrementKey) (int64, bool) {
	for i := len(s.triggers) - 1; i >= 0; i-- {
		if v, ok := s.triggers[i].AutoincrementValue(key); ok {
			return v, true
		}
	}
	v, ok := s.autoinc.values[key]
	return v, ok
}

// SetAutoincrementUpdate records whether an autoincrement column is being
// updated rather than generated.
func (s *Session) SetAutoincrementUpdate(on bool) { s.autoinc.update = on }

// AutoincrementUpdate returns the flag set by SetAutoincrementUpdate.
func (s *Session) AutoincrementUpdate() bool { return s.autoinc.update }

// CopyHashtableToAutoincrementValues merges values, typically those of a
// finished trigger, into the session's last values.
func (s *Session) CopyHashtableToAutoincrementValues(values map[AutoincrementKey]int64) {
	for k, v := range values {
		s.autoinc.values[k] = v
	}
}

// SetIdentityValue records the last identity value generated by a
// single-row insert.
func (s *Session) SetIdentityValue(v int64) {
	s.identity.value = v
	s.identity.set = true
}

// IdentityValue returns the last identity value, if any.
func (s *Session) IdentityValue() (int64, bool) {
	return s.identity.value, s.identity.set
}

// TriggerExecutionContext is the state of one executing trigger.
type TriggerExecutionContext struct {
	Name string
	// autoincrementValues are the values generated by the statement that
	// fired the trigger.
	autoincrementValues map[AutoincrementKey]int64
}

// NewTriggerExecutionContext returns the context of the named trigger.
// values are the autoincrement values generated by the triggering
// statement.
func NewTriggerExecutionContext(name string, values map[AutoincrementKey]int64) *TriggerExecutionContext {
	return &TriggerExecutionContext{Name: name, autoincrementValues: values}
}

// AutoincrementValue returns the value generated for key by the triggering
// statement.
func (t *TriggerExecutionContext) AutoincrementValue(key AutoincrementKey) (int64, bool) {
	v, ok := t.autoincrementValues[key]
	return v, ok
}

// PushTriggerExecutionContext records that a trigger started executing.
// Statements pushed from now on run in a trigger.
func (s *Session) PushTriggerExecutionContext(t *TriggerExecutionContext) error {
	if len(s.triggers) >= maxTriggerDepth {
		return pgerror.Newf(pgcode.ProgramLimitExceeded,
			"maximum depth of nested triggers was exceeded by trigger %s", t.Name)
	}
	if s.outermostTrigger == -1 {
		s.outermostTrigger = len(s.stmts)
	}
	s.triggers = append(s.triggers, t)
	return nil
}

// PopTriggerExecutionContext records that a trigger finished executing.
func (s *Session) PopTriggerExecutionContext(t *TriggerExecutionContext) error {
	if s.outermostTrigger == len(s.stmts) {
		s.outermostTrigger = -1
	}
	for i := len(s.triggers) - 1; i >= 0; i-- {
		if s.triggers[i] == t {
			s.triggers = append(s.triggers[:i], s.triggers[i+1:]...)
			return nil
		}
	}
	return errors.AssertionFailedf("trigger %s is not executing", t.Name)
}

// CurrentTriggerExecutionContext returns the innermost executing trigger,
// or nil.
func (s *Session) CurrentTriggerExecutionContext() *TriggerExecutionContext {
	if len(s.triggers) == 0 {
		return nil
	}
	return s.triggers[len(s.triggers)-1]
}

func (s *Session) currentTriggerName() string {
	if t := s.CurrentTriggerExecutionContext(); t != nil {
		return t.Name
	}
	return ""
}
