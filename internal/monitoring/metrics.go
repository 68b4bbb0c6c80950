package monitoring

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType represents different types of metrics
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// DefaultBuckets are request latency buckets in seconds.
var DefaultBuckets = []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1}

// Counter represents a monotonically increasing counter
type Counter struct {
	value atomic.Uint64
}

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Add(n uint64) { c.value.Add(n) }
func (c *Counter) Get() float64 { return float64(c.value.Load()) }

// Gauge represents a value that can go up and down
type Gauge struct {
	bits atomic.Uint64
}

func (g *Gauge) Set(value float64) { g.bits.Store(math.Float64bits(value)) }
func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }
func (g *Gauge) Get() float64 { return math.Float64frombits(g.bits.Load()) }

func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Histogram tracks the distribution of values
type Histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64 // cumulative per bucket, plus +Inf
	sum     float64
	count   uint64
}

func (h *Histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
	h.counts[len(h.buckets)]++
}

// HistogramSnapshot is a point-in-time copy of a histogram.
type HistogramSnapshot struct {
	Buckets []float64
	Counts  []uint64
	Sum     float64
	Count   uint64
}

func (h *Histogram) Snapshot() HistogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	return HistogramSnapshot{
		Buckets: h.buckets,
		Counts:  append([]uint64(nil), h.counts...),
		Sum:     h.sum,
		Count:   h.count,
	}
}

// series is one labelled time series of a metric family.
type series struct {
	labels    map[string]string
	counter   *Counter
	gauge     *Gauge
	histogram *Histogram
	gaugeFunc func() float64
}

type family struct {
	name   string
	help   string
	typ    MetricType
	series map[string]*series
}

// MetricsRegistry holds metric families keyed by name; each family holds one
// series per distinct label set.
type MetricsRegistry struct {
	mu       sync.RWMutex
	families map[string]*family
}

func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{families: make(map[string]*family)}
}

func labelKey(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

// lookup returns the series for name and labels, creating it with create on
// first use. A name registered with a different type panics.
func (mr *MetricsRegistry) lookup(name, help string, typ MetricType, labels map[string]string, create func() *series) *series {
	key := labelKey(labels)

	mr.mu.RLock()
	if f, ok := mr.families[name]; ok && f.typ == typ {
		if s, ok := f.series[key]; ok {
			mr.mu.RUnlock()
			return s
		}
	}
	mr.mu.RUnlock()

	mr.mu.Lock()
	defer mr.mu.Unlock()

	f, ok := mr.families[name]
	if !ok {
		f = &family{name: name, help: help, typ: typ, series: make(map[string]*series)}
		mr.families[name] = f
	}
	if f.typ != typ {
		panic("monitoring: metric " + name + " registered as " + string(f.typ))
	}
	s, ok := f.series[key]
	if !ok {
		s = create()
		s.labels = labels
		f.series[key] = s
	}
	return s
}

func (mr *MetricsRegistry) Counter(name, help string, labels map[string]string) *Counter {
	return mr.lookup(name, help, MetricTypeCounter, labels, func() *series {
		return &series{counter: &Counter{}}
	}).counter
}

func (mr *MetricsRegistry) Gauge(name, help string, labels map[string]string) *Gauge {
	return mr.lookup(name, help, MetricTypeGauge, labels, func() *series {
		return &series{gauge: &Gauge{}}
	}).gauge
}

// GaugeFunc registers a gauge whose value is read from fn at export time.
func (mr *MetricsRegistry) GaugeFunc(name, help string, labels map[string]string, fn func() float64) {
	mr.lookup(name, help, MetricTypeGauge, labels, func() *series {
		return &series{gaugeFunc: fn}
	})
}

func (mr *MetricsRegistry) Histogram(name, help string, buckets []float64, labels map[string]string) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	return mr.lookup(name, help, MetricTypeHistogram, labels, func() *series {
		return &series{histogram: &Histogram{
			buckets: buckets,
			counts:  make([]uint64, len(buckets)+1),
		}}
	}).histogram
}

// KvsMetrics are the server's request, connection and storage metrics.
type KvsMetrics struct {
	registry *MetricsRegistry

	ConnectionsActive *Gauge
	ConnectionsTotal  *Counter
	DecodeErrors      *Counter
	Compactions       *Counter
}

func NewKvsMetrics() *KvsMetrics {
	registry := NewMetricsRegistry()

	return &KvsMetrics{
		registry:          registry,
		ConnectionsActive: registry.Gauge("kvs_connections_active", "Open client connections", nil),
		ConnectionsTotal:  registry.Counter("kvs_connections_total", "Accepted client connections", nil),
		DecodeErrors:      registry.Counter("kvs_decode_errors_total", "Connections closed after a malformed request", nil),
		Compactions:       registry.Counter("kvs_admin_compactions_total", "Compactions requested through the admin API", nil),
	}
}

// RecordRequest counts one request served over transport. code is empty on
// success and the storage error kind otherwise.
func (m *KvsMetrics) RecordRequest(transport, op, code string, duration time.Duration) {
	labels := map[string]string{"transport": transport, "op": op}

	m.registry.Counter("kvs_requests_total", "Requests served", labels).Inc()
	m.registry.Histogram("kvs_request_duration_seconds", "Request latency in seconds", nil, labels).Observe(duration.Seconds())

	if code != "" {
		m.registry.Counter("kvs_request_errors_total", "Requests answered with an error",
			map[string]string{"transport": transport, "op": op, "code": code}).Inc()
	}
}

func (m *KvsMetrics) GetRegistry() *MetricsRegistry {
	return m.registry
}
