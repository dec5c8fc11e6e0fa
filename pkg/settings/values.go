// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"sync/atomic"

	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
)

type slotIdx int32

// Values is a container that stores values for all registered settings.
// Each setting is assigned a unique slot (up to MaxSettings).
// Note that slot indices are 0-based.
type Values struct {
	intVals     [MaxSettings]atomic.Int64
	genericVals [MaxSettings]atomic.Value

	mu struct {
		syncutil.Mutex
		onChange [MaxSettings][]chan struct{}
	}
}

// NewValues returns a Values with every registered setting at its default.
func NewValues() *Values {
	sv := &Values{}
	for _, s := range registry {
		s.setToDefault(sv)
	}
	return sv
}

// MakeTestingValues is an alias for NewValues used in tests.
func MakeTestingValues() *Values {
	return NewValues()
}

func (sv *Values) getInt64(slot slotIdx) int64 {
	return sv.intVals[slot].Load()
}

func (sv *Values) setInt64(slot slotIdx, newVal int64) {
	if sv.intVals[slot].Swap(newVal) != newVal {
		sv.settingChanged(slot)
	}
}

func (sv *Values) getGeneric(slot slotIdx) interface{} {
	return sv.genericVals[slot].Load()
}

func (sv *Values) setGeneric(slot slotIdx, newVal interface{}) {
	old := sv.genericVals[slot].Swap(newVal)
	if old != newVal {
		sv.settingChanged(slot)
	}
}

func (sv *Values) settingChanged(slot slotIdx) {
	sv.mu.Lock()
	chans := sv.mu.onChange[slot]
	sv.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// NewNotifier is used when a piece of code needs to get a signal when certain
// settings change. Whenever any of these settings change, a non-blocking send
// on Notifier.Ch() is performed.
//
// The Notifier must be Closed.
func (sv *Values) NewNotifier(settings ...Setting) *Notifier {
	n := &Notifier{sv: sv, ch: make(chan struct{}, 1)}
	sv.mu.Lock()
	defer sv.mu.Unlock()
	for _, s := range settings {
		slot := registry[s.Key()].slotIdx()
		sv.mu.onChange[slot] = append(sv.mu.onChange[slot], n.ch)
		n.slots = append(n.slots, slot)
	}
	return n
}

// Notifier is used to listen for changes to a set of settings; see NewNotifier.
type Notifier struct {
	sv    *Values
	slots []slotIdx
	ch    chan struct{}
}

// Ch returns a channel that can be listened to for changes to the relevant
// settings.
func (n *Notifier) Ch() <-chan struct{} {
	return n.ch
}

// Close cleans up the notifier.
func (n *Notifier) Close() {
	if n.sv == nil {
		return
	}
	n.sv.mu.Lock()
	defer n.sv.mu.Unlock()
	for _, slot := range n.slots {
		chans := n.sv.mu.onChange[slot]
		for i := range chans {
			if chans[i] == n.ch {
				n.sv.mu.onChange[slot] = append(chans[:i:i], chans[i+1:]...)
				break
			}
		}
	}
	n.sv = nil
}
