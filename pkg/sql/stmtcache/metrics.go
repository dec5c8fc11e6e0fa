// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package stmtcache

import "github.com/cockroachdb/sessioncore/pkg/util/metric"

var (
	metaHits = metric.Metadata{
		Name:        "sql.stmt_cache.hits",
		Help:        "Number of statement cache lookups served by a valid entry",
		Measurement: "Lookups",
		Unit:        metric.Unit_COUNT,
	}
	metaMisses = metric.Metadata{
		Name:        "sql.stmt_cache.misses",
		Help:        "Number of statement cache lookups that found no valid entry",
		Measurement: "Lookups",
		Unit:        metric.Unit_COUNT,
	}
	metaCompiles = metric.Metadata{
		Name:        "sql.stmt_cache.compiles",
		Help:        "Number of statement compilations started by the statement cache",
		Measurement: "Compilations",
		Unit:        metric.Unit_COUNT,
	}
	metaEvictions = metric.Metadata{
		Name:        "sql.stmt_cache.evictions",
		Help:        "Number of idle statement cache entries evicted or aged out",
		Measurement: "Entries",
		Unit:        metric.Unit_COUNT,
	}
	metaInvalidations = metric.Metadata{
		Name:        "sql.stmt_cache.invalidations",
		Help:        "Number of statement cache entries discarded by a full invalidation",
		Measurement: "Entries",
		Unit:        metric.Unit_COUNT,
	}
	metaEntries = metric.Metadata{
		Name:        "sql.stmt_cache.entries",
		Help:        "Number of entries in the statement cache",
		Measurement: "Entries",
		Unit:        metric.Unit_COUNT,
	}
)

// Metrics holds the statement cache metrics.
type Metrics struct {
	Hits          *metric.Counter
	Misses        *metric.Counter
	Compiles      *metric.Counter
	Evictions     *metric.Counter
	Invalidations *metric.Counter
	Entries       *metric.Gauge
}

// MetricStruct implements metric.Struct.
func (Metrics) MetricStruct() {}

var _ metric.Struct = Metrics{}

// MakeMetrics instantiates the statement cache metrics.
func MakeMetrics() Metrics {
	return Metrics{
		Hits:          metric.NewCounter(metaHits),
		Misses:        metric.NewCounter(metaMisses),
		Compiles:      metric.NewCounter(metaCompiles),
		Evictions:     metric.NewCounter(metaEvictions),
		Invalidations: metric.NewCounter(metaInvalidations),
		Entries:       metric.NewGauge(metaEntries),
	}
}
