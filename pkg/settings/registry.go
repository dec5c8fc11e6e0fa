// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package settings

import (
	"fmt"
	"sort"
)

// registry holds every setting defined by a package init. It is only
// written during init and read concurrently afterwards.
var registry = map[string]internalSetting{}

// MaxSettings bounds the number of settings a Values can hold.
const MaxSettings = 128

func register(key, desc string, s internalSetting) {
	if _, ok := registry[key]; ok {
		panic(fmt.Sprintf("setting already defined: %s", key))
	}
	if len(registry) >= MaxSettings {
		panic(fmt.Sprintf("cannot define %s: more than %d settings", key, MaxSettings))
	}
	s.init(key, desc, slotIdx(len(registry)))
	registry[key] = s
}

// Keys returns the names of all defined settings in sorted order.
func Keys() []string {
	return sortedKeys(registry)
}

// Lookup returns the setting with the given name and its description.
func Lookup(name string) (Setting, string, bool) {
	s, ok := registry[name]
	if !ok {
		return nil, "", false
	}
	return s, s.Description(), true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
