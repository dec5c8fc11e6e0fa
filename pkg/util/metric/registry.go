// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
)

// A Registry is a list of metrics. It provides a simple way of iterating over
// them and exporting them.
type Registry struct {
	syncutil.Mutex
	labels  []*LabelPair
	tracked map[string]Iterable
}

// NewRegistry creates a new Registry.
func NewRegistry() *Registry {
	return &Registry{tracked: map[string]Iterable{}}
}

// AddLabel adds a label/value pair for this registry.
func (r *Registry) AddLabel(name, value string) {
	r.Lock()
	defer r.Unlock()
	r.labels = append(r.labels, MakeLabelPair(name, value))
}

func (r *Registry) getLabels() []*LabelPair {
	r.Lock()
	defer r.Unlock()
	return r.labels
}

// AddMetric adds the passed-in metric to the registry. Registering two
// metrics with the same name is an error.
func (r *Registry) AddMetric(metric Iterable) error {
	r.Lock()
	defer r.Unlock()
	if _, ok := r.tracked[metric.GetName()]; ok {
		return errors.AssertionFailedf("metric %q registered twice", metric.GetName())
	}
	r.tracked[metric.GetName()] = metric
	return nil
}

// AddMetricStruct examines all fields of metricStruct and adds all Iterable
// or metric.Struct objects to the registry. Nil fields are skipped.
func (r *Registry) AddMetricStruct(metricStruct interface{}) error {
	v := reflect.ValueOf(metricStruct)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		vfield, tfield := v.Field(i), t.Field(i)
		if !tfield.IsExported() {
			continue
		}
		if (vfield.Kind() == reflect.Ptr || vfield.Kind() == reflect.Interface) && vfield.IsNil() {
			continue
		}
		switch val := vfield.Interface().(type) {
		case Iterable:
			if err := r.AddMetric(val); err != nil {
				return err
			}
		case Struct:
			if err := r.AddMetricStruct(val); err != nil {
				return err
			}
		default:
			return errors.AssertionFailedf("field %s (%s) is not a metric", tfield.Name, tfield.Type)
		}
	}
	return nil
}

// Each calls the given closure for all metrics.
func (r *Registry) Each(f func(name string, val interface{})) {
	r.Lock()
	defer r.Unlock()
	for _, metric := range r.tracked {
		metric.Inspect(func(v interface{}) {
			f(metric.GetName(), v)
		})
	}
}

// Contains returns true if the given metric name is registered in this
// registry.
func (r *Registry) Contains(name string) bool {
	r.Lock()
	defer r.Unlock()
	_, ok := r.tracked[name]
	return ok
}
