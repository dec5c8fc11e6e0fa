// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package leaktest provides tools to detect leaked goroutines in tests.
// To use it, call "defer leaktest.AfterTest(t)()" at the beginning of each
// test that may use goroutines.
package leaktest

import (
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// interestingGoroutines returns all goroutines we care about for the purpose
// of leak checking, keyed by goroutine id.
func interestingGoroutines() map[int64]string {
	buf := make([]byte, 2<<20)
	buf = buf[:runtime.Stack(buf, true)]
	gs := make(map[int64]string)
	for _, g := range strings.Split(string(buf), "\n\n") {
		sl := strings.SplitN(g, "\n", 2)
		if len(sl) != 2 {
			continue
		}
		stack := strings.TrimSpace(sl[1])
		if strings.HasPrefix(stack, "testing.RunTests") {
			continue
		}

		if stack == "" ||
			strings.Contains(stack, "sync.(*WaitGroup).Done") ||
			strings.Contains(stack, "github.com/cockroachdb/pebble") ||
			strings.Contains(stack, "github.com/sasha-s/go-deadlock") ||
			strings.Contains(stack, "testing.Main(") ||
			strings.Contains(stack, "testing.tRunner(") ||
			strings.Contains(stack, "runtime.goexit") ||
			strings.Contains(stack, "created by runtime.gc") ||
			strings.Contains(stack, "interestingGoroutines") ||
			strings.Contains(stack, "runtime.MHeap_Scavenger") ||
			strings.Contains(stack, "signal.signal_recv") ||
			strings.Contains(stack, "sigterm.handler") ||
			strings.Contains(stack, "runtime_mcall") ||
			strings.Contains(stack, "goroutine in C code") {
			continue
		}
		gs[goroutineID(sl[0])] = g
	}
	return gs
}

// goroutineID parses the header line "goroutine 17 [running]:".
func goroutineID(header string) int64 {
	var id int64
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return -1
	}
	for _, c := range fields[1] {
		if c < '0' || c > '9' {
			return -1
		}
		id = id*10 + int64(c-'0')
	}
	return id
}

// TB is the subset of testing.TB used by AfterTest.
type TB interface {
	Failed() bool
	Errorf(format string, args ...interface{})
	Helper()
}

// AfterTest snapshots the currently-running goroutines and returns a
// function to be run at the end of tests to see whether any
// goroutines leaked.
func AfterTest(t TB) func() {
	orig := interestingGoroutines()
	return func() {
		t.Helper()
		// If the test already failed, we don't pile on any more errors but we
		// check to see if the leak detector should be disabled for future
		// tests.
		if t.Failed() {
			return
		}
		if err := diffGoroutines(orig, 5*time.Second); err != nil {
			t.Errorf("%v", err)
		}
	}
}

func diffGoroutines(orig map[int64]string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var leaked []string
		for id, stack := range interestingGoroutines() {
			if _, ok := orig[id]; !ok {
				leaked = append(leaked, stack)
			}
		}
		if len(leaked) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			sort.Strings(leaked)
			return errors.Newf("leaked goroutines:\n%s", strings.Join(leaked, "\n\n"))
		}
		time.Sleep(50 * time.Millisecond)
	}
}
