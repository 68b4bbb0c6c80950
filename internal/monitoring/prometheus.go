package monitoring

import (
	"fmt"
	"io"
	"net/http"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// PrometheusExporter writes a registry in the Prometheus text format.
type PrometheusExporter struct {
	registry *MetricsRegistry
}

func NewPrometheusExporter(registry *MetricsRegistry) *PrometheusExporter {
	return &PrometheusExporter{registry: registry}
}

func (pe *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	pe.WriteTo(w)
}

// WriteTo writes every family in name order, then the runtime gauges.
func (pe *PrometheusExporter) WriteTo(w io.Writer) {
	pe.registry.mu.RLock()
	names := make([]string, 0, len(pe.registry.families))
	for name := range pe.registry.families {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := pe.registry.families[name]
		keys := make([]string, 0, len(f.series))
		for key := range f.series {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		if f.help != "" {
			fmt.Fprintf(w, "# HELP %s %s\n", f.name, f.help)
		}
		fmt.Fprintf(w, "# TYPE %s %s\n", f.name, f.typ)
		for _, key := range keys {
			writeSeries(w, f.name, f.series[key])
		}
	}
	pe.registry.mu.RUnlock()

	writeRuntimeMetrics(w)
}

func writeSeries(w io.Writer, name string, s *series) {
	switch {
	case s.counter != nil:
		fmt.Fprintf(w, "%s%s %s\n", name, formatLabels(s.labels), formatFloat(s.counter.Get()))
	case s.gauge != nil:
		fmt.Fprintf(w, "%s%s %s\n", name, formatLabels(s.labels), formatFloat(s.gauge.Get()))
	case s.gaugeFunc != nil:
		fmt.Fprintf(w, "%s%s %s\n", name, formatLabels(s.labels), formatFloat(s.gaugeFunc()))
	case s.histogram != nil:
		snap := s.histogram.Snapshot()
		for i, bound := range snap.Buckets {
			fmt.Fprintf(w, "%s_bucket%s %d\n", name, formatLabels(withLabel(s.labels, "le", formatFloat(bound))), snap.Counts[i])
		}
		fmt.Fprintf(w, "%s_bucket%s %d\n", name, formatLabels(withLabel(s.labels, "le", "+Inf")), snap.Counts[len(snap.Buckets)])
		fmt.Fprintf(w, "%s_sum%s %s\n", name, formatLabels(s.labels), formatFloat(snap.Sum))
		fmt.Fprintf(w, "%s_count%s %d\n", name, formatLabels(s.labels), snap.Count)
	}
}

func writeRuntimeMetrics(w io.Writer) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	fmt.Fprintf(w, "# HELP go_goroutines Number of goroutines\n")
	fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
	fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())
	fmt.Fprintf(w, "# HELP go_memstats_alloc_bytes Bytes allocated and in use\n")
	fmt.Fprintf(w, "# TYPE go_memstats_alloc_bytes gauge\n")
	fmt.Fprintf(w, "go_memstats_alloc_bytes %d\n", memStats.Alloc)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+`="`+labelEscaper.Replace(labels[k])+`"`)
	}
	return "{" + strings.Join(parts, ",") + "}"
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
