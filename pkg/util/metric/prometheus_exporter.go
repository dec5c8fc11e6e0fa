// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package metric

import (
	"io"
	"sort"

	"github.com/cockroachdb/sessioncore/pkg/util/syncutil"
	"github.com/prometheus/client_golang/prometheus"
	prometheusgo "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// PrometheusExporter contains a map of metric families (a metric with one
// or more label pairs). It accumulates metrics from Registries until it is
// printed.
type PrometheusExporter struct {
	mu struct {
		syncutil.Mutex
		families map[string]*prometheusgo.MetricFamily
	}
}

var _ prometheus.Gatherer = (*PrometheusExporter)(nil)

// MakePrometheusExporter returns an initialized prometheus exporter.
func MakePrometheusExporter() *PrometheusExporter {
	pm := &PrometheusExporter{}
	pm.mu.families = map[string]*prometheusgo.MetricFamily{}
	return pm
}

// exportedName converts a dotted metric name into a prometheus-compatible
// one.
func exportedName(name string) string {
	b := []byte(name)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == ':') {
			b[i] = '_'
		}
	}
	return string(b)
}

// findOrCreateFamily returns the MetricFamily for the given metric,
// creating it if needed. pm.mu must be held.
func (pm *PrometheusExporter) findOrCreateFamily(
	prom PrometheusExportable,
) *prometheusgo.MetricFamily {
	name := exportedName(prom.GetName())
	if family, ok := pm.mu.families[name]; ok {
		return family
	}
	help := prom.GetHelp()
	family := &prometheusgo.MetricFamily{
		Name: &name,
		Help: &help,
		Type: prom.GetType(),
	}
	pm.mu.families[name] = family
	return family
}

// ScrapeRegistry scrapes all metrics contained in the registry to the metric
// family map, holding on only to the scraped values (not to metrics
// themselves).
func (pm *PrometheusExporter) ScrapeRegistry(registry *Registry) {
	labels := registry.getLabels()
	pm.mu.Lock()
	defer pm.mu.Unlock()
	registry.Each(func(_ string, v interface{}) {
		prom, ok := v.(PrometheusExportable)
		if !ok {
			return
		}
		family := pm.findOrCreateFamily(prom)
		baseLabels := append(append([]*LabelPair(nil), labels...), prom.GetLabels()...)
		if iter, ok := v.(PrometheusIterable); ok {
			iter.Each(baseLabels, func(m *prometheusgo.Metric) {
				family.Metric = append(family.Metric, m)
			})
			return
		}
		m := prom.ToPrometheusMetric()
		m.Label = append(m.Label, baseLabels...)
		family.Metric = append(family.Metric, m)
	})
}

// PrintAsText writes all metrics in the families map to the io.Writer in
// prometheus' text format. It removes individual metrics from the families
// as it goes, readying the families for another found of registry additions.
func (pm *PrometheusExporter) PrintAsText(w io.Writer) error {
	families, _ := pm.Gather()
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return err
		}
	}
	pm.clearMetrics()
	return nil
}

// Gather implements prometheus.Gatherer. Families are returned sorted by
// name.
func (pm *PrometheusExporter) Gather() ([]*prometheusgo.MetricFamily, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	v := make([]*prometheusgo.MetricFamily, 0, len(pm.mu.families))
	for _, family := range pm.mu.families {
		if len(family.Metric) > 0 {
			v = append(v, family)
		}
	}
	sort.Slice(v, func(i, j int) bool { return v[i].GetName() < v[j].GetName() })
	return v, nil
}

// clearMetrics clears all metrics from the metric families so that the
// exporter can be reused.
func (pm *PrometheusExporter) clearMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, family := range pm.mu.families {
		family.Metric = nil
	}
}
