// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package fsm

import (
	"fmt"
	"reflect"
)

var (
	// True is a pattern that matches true booleans.
	True Bool = b(true)

	// False is a pattern that matches false booleans.
	False Bool = b(false)

	// Wildcard is a pattern that matches any value.
	Wildcard = wildcard{}
)

// Bool represents a boolean pattern. States and Events may carry Bool fields;
// a Wildcard or Binding in a Pattern expands to both True and False.
type Bool interface {
	bool()
	// Get returns the concrete value. It panics on patterns.
	Get() bool
}

// FromBool creates a Bool from a Go bool.
func FromBool(val bool) Bool {
	return b(val)
}

type b bool
type wildcard struct{}

// Binding acts like Wildcard but allows variables to be bound to names and used
// in the match expression.
type Binding string

func (b) bool()        {}
func (wildcard) bool() {}
func (Binding) bool()  {}

func (x b) Get() bool       { return bool(x) }
func (wildcard) Get() bool  { panic("Get called on Wildcard") }
func (x Binding) Get() bool { panic(fmt.Sprintf("Get called on Binding %q", string(x))) }

// Pattern is a mapping from (State,Event) pairs to Transitions. When
// unexpanded, it may contain values like wildcards and variable bindings.
type Pattern map[State]map[Event]Transition

type bindings map[string]reflect.Value

type expandedVar struct {
	v        reflect.Value
	bindings bindings
}

func expandPattern(p Pattern) Pattern {
	xp := make(Pattern)
	for s, sm := range p {
		for _, sVar := range expandVar(reflect.ValueOf(s)) {
			xs := sVar.v.Interface().(State)
			xsm := xp[xs]
			if xsm == nil {
				xsm = make(map[Event]Transition)
				xp[xs] = xsm
			}
			for e, t := range sm {
				for _, eVar := range expandVar(reflect.ValueOf(e)) {
					xe := eVar.v.Interface().(Event)
					if _, ok := xsm[xe]; ok {
						panic(fmt.Sprintf("match patterns overlap for %#v on %#v", xs, xe))
					}
					bs := mergeBindings(sVar.bindings, eVar.bindings)
					xsm[xe] = Transition{
						Next:        bindVar(reflect.ValueOf(t.Next), bs).Interface().(State),
						Action:      t.Action,
						Description: t.Description,
					}
				}
			}
		}
	}
	return xp
}

// expandVar expands every Wildcard and Binding field of the struct v into
// the cross product of its True and False variants.
func expandVar(v reflect.Value) []expandedVar {
	for i := 0; i < v.NumField(); i++ {
		pat, ok := v.Field(i).Interface().(Bool)
		if !ok {
			continue
		}
		switch bt := pat.(type) {
		case b:
			continue
		case wildcard:
			var res []expandedVar
			for _, alt := range expandBool(v, i) {
				res = append(res, expandVar(alt)...)
			}
			return res
		case Binding:
			var res []expandedVar
			for _, alt := range expandBool(v, i) {
				bound := alt.Field(i)
				for _, sub := range expandVar(alt) {
					sub.bindings = mergeBindings(sub.bindings, bindings{string(bt): bound})
					res = append(res, sub)
				}
			}
			return res
		case nil:
			panic("found nil Bool in match pattern")
		default:
			panic(fmt.Sprintf("unexpected Bool variant %T", bt))
		}
	}
	return []expandedVar{{v: v, bindings: bindings{}}}
}

func expandBool(v reflect.Value, field int) []reflect.Value {
	res := make([]reflect.Value, 0, 2)
	for _, val := range []Bool{True, False} {
		alt := reflect.New(v.Type()).Elem()
		alt.Set(v)
		alt.Field(field).Set(reflect.ValueOf(val))
		res = append(res, alt)
	}
	return res
}

func bindVar(v reflect.Value, bs bindings) reflect.Value {
	bound := reflect.New(v.Type()).Elem()
	bound.Set(v)
	for i := 0; i < bound.NumField(); i++ {
		pat, ok := bound.Field(i).Interface().(Bool)
		if !ok {
			continue
		}
		switch bt := pat.(type) {
		case b:
		case Binding:
			bv, ok := bs[string(bt)]
			if !ok {
				panic(fmt.Sprintf("no binding for %q", string(bt)))
			}
			bound.Field(i).Set(bv)
		case wildcard:
			panic("wildcard found in transition target")
		default:
			panic("found nil Bool in transition target")
		}
	}
	return bound
}

func mergeBindings(a, b bindings) bindings {
	merged := make(bindings, len(a)+len(b))
	for n, v := range a {
		merged[n] = v
	}
	for n, v := range b {
		if _, ok := merged[n]; ok {
			panic(fmt.Sprintf("multiple bindings for %q", n))
		}
		merged[n] = v
	}
	return merged
}
