// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package aggmetric provides metrics that aggregate a set of labeled child
// metrics. The parent reports the total and each child reports its own
// value under its label values.
package aggmetric

import (
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/sessioncore/pkg/util/metric"
	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
	prometheusgo "github.com/prometheus/client_model/go"
)

// AggCounter maintains a value as the sum of its children. Only the children
// are exported to prometheus, each under its own label values.
type AggCounter struct {
	metric.Metadata
	labels []string
	total  atomic.Int64

	mu struct {
		syncutil.Mutex
		children map[string]*Counter
	}
}

var _ metric.PrometheusIterable = (*AggCounter)(nil)

// NewCounter constructs a new AggCounter with the given child label names.
func NewCounter(metadata metric.Metadata, childLabels ...string) *AggCounter {
	c := &AggCounter{Metadata: metadata, labels: childLabels}
	c.mu.children = map[string]*Counter{}
	return c
}

// Count returns the aggregate count of all of its current and past children.
func (c *AggCounter) Count() int64 {
	return c.total.Load()
}

// Inspect is part of the metric.Iterable interface.
func (c *AggCounter) Inspect(f func(interface{})) { f(c) }

// GetType is part of the metric.PrometheusExportable interface.
func (c *AggCounter) GetType() *prometheusgo.MetricType {
	return prometheusgo.MetricType_COUNTER.Enum()
}

// ToPrometheusMetric is part of the metric.PrometheusExportable interface.
func (c *AggCounter) ToPrometheusMetric() *prometheusgo.Metric {
	v := float64(c.Count())
	return &prometheusgo.Metric{Counter: &prometheusgo.Counter{Value: &v}}
}

// Each is part of the metric.PrometheusIterable interface. Children are
// visited in an unspecified order.
func (c *AggCounter) Each(labels []*metric.LabelPair, f func(*prometheusgo.Metric)) {
	c.mu.Lock()
	children := make([]*Counter, 0, len(c.mu.children))
	for _, child := range c.mu.children {
		children = append(children, child)
	}
	c.mu.Unlock()
	for _, child := range children {
		m := child.toPrometheusMetric()
		m.Label = append(append([]*metric.LabelPair(nil), labels...), m.Label...)
		f(m)
	}
}

// AddChild adds a Counter to this AggCounter. This method returns the
// existing child if one with the same label values is already present.
func (c *AggCounter) AddChild(labelVals ...string) (*Counter, error) {
	if len(labelVals) != len(c.labels) {
		return nil, errors.AssertionFailedf(
			"cannot add child with %d label values %v to a metric with %d labels %v",
			len(labelVals), labelVals, len(c.labels), c.labels)
	}
	key := strings.Join(labelVals, "\x00")
	c.mu.Lock()
	defer c.mu.Unlock()
	if child, ok := c.mu.children[key]; ok {
		return child, nil
	}
	child := &Counter{parent: c}
	for i, name := range c.labels {
		child.labelPairs = append(child.labelPairs, metric.MakeLabelPair(name, labelVals[i]))
	}
	c.mu.children[key] = child
	return child, nil
}

// MustAddChild is like AddChild but panics on a label mismatch.
func (c *AggCounter) MustAddChild(labelVals ...string) *Counter {
	child, err := c.AddChild(labelVals...)
	if err != nil {
		panic(err)
	}
	return child
}

// Counter is a child of an AggCounter. When it is incremented, so too is the
// parent.
type Counter struct {
	parent     *AggCounter
	labelPairs []*metric.LabelPair
	value      atomic.Int64
}

// Inc increments the Counter's value by i and its parent's total.
func (c *Counter) Inc(i int64) {
	c.value.Add(i)
	c.parent.total.Add(i)
}

// Value returns the Counter's current value.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

func (c *Counter) toPrometheusMetric() *prometheusgo.Metric {
	v := float64(c.Value())
	return &prometheusgo.Metric{
		Counter: &prometheusgo.Counter{Value: &v},
		Label:   append([]*metric.LabelPair(nil), c.labelPairs...),
	}
}
