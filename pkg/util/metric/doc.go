// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

/*
Package metric provides process metrics (a.k.a. transient stats) for the
session core. Metrics are grouped into structs, registered with a Registry
and exported in the Prometheus text format by a PrometheusExporter.

# Adding a new metric

First, define the metric's metadata and create it:

	var metaCommits = metric.Metadata{
		Name:        "sql.txn.commit.count",
		Help:        "Number of transaction commits",
		Measurement: "Transactions",
		Unit:        metric.Unit_COUNT,
	}

	type Metrics struct {
		Commits *metric.Counter
	}

	func (Metrics) MetricStruct() {}

	m := Metrics{Commits: metric.NewCounter(metaCommits)}

Next, add the struct to a Registry:

	registry.AddMetricStruct(m)

Every exported field implementing Iterable is registered. The counter can then
be updated with m.Commits.Inc(1).

# Exporting

A PrometheusExporter scrapes one or more registries and prints the metric
families in the Prometheus text exposition format. It also implements
prometheus.Gatherer.
*/
package metric
