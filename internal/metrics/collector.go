// Package metrics keeps process-wide counters, gauges and histograms for the
// watcher and renders them in the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default is the registry the predefined metrics below live in.
var Default = NewRegistry("docbot")

// Registry aggregates named metrics.
type Registry struct {
	namespace string
	startTime time.Time

	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewRegistry creates an empty registry. Every metric name is prefixed with
// namespace and an underscore.
func NewRegistry(namespace string) *Registry {
	return &Registry{
		namespace:  namespace,
		startTime:  time.Now(),
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

// Uptime returns how long the registry has existed.
func (r *Registry) Uptime() time.Duration {
	return time.Since(r.startTime)
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name  string
	help  string
	value atomic.Int64
}

func (c *Counter) Inc() { c.value.Add(1) }
func (c *Counter) Add(n int64) { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge is a value that can go up and down.
type Gauge struct {
	name  string
	help  string
	value atomic.Int64
}

func (g *Gauge) Set(v int64) { g.value.Store(v) }
func (g *Gauge) Value() int64 { return g.value.Load() }

// Histogram tracks a distribution over fixed upper bounds. Bucket counts are
// cumulative, as the exposition format expects.
type Histogram struct {
	name   string
	help   string
	bounds []float64

	mu     sync.Mutex
	counts []int64
	count  int64
	sum    float64
}

// Observe records a value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.counts[i]++
		}
	}
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (r *Registry) fullName(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

// Counter returns the counter with the given name, creating it on first use.
func (r *Registry) Counter(name, help string) *Counter {
	name = r.fullName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help}
	r.counters[name] = c
	return c
}

// Gauge returns the gauge with the given name, creating it on first use.
func (r *Registry) Gauge(name, help string) *Gauge {
	name = r.fullName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help}
	r.gauges[name] = g
	return g
}

// Histogram returns the histogram with the given name, creating it on first
// use. A +Inf bucket is always present.
func (r *Registry) Histogram(name, help string, bounds []float64) *Histogram {
	name = r.fullName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	b := append([]float64(nil), bounds...)
	sort.Float64s(b)
	if len(b) == 0 || !math.IsInf(b[len(b)-1], 1) {
		b = append(b, math.Inf(1))
	}
	h := &Histogram{name: name, help: help, bounds: b, counts: make([]int64, len(b))}
	r.histograms[name] = h
	return h
}

// WriteTo renders all metrics, sorted by name.
func (r *Registry) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder

	uptime := r.fullName("uptime_seconds")
	fmt.Fprintf(&sb, "# HELP %s Time since start in seconds\n", uptime)
	fmt.Fprintf(&sb, "# TYPE %s gauge\n", uptime)
	fmt.Fprintf(&sb, "%s %d\n", uptime, int64(r.Uptime().Seconds()))

	r.mu.RLock()
	counters := make([]*Counter, 0, len(r.counters))
	for _, c := range r.counters {
		counters = append(counters, c)
	}
	gauges := make([]*Gauge, 0, len(r.gauges))
	for _, g := range r.gauges {
		gauges = append(gauges, g)
	}
	histograms := make([]*Histogram, 0, len(r.histograms))
	for _, h := range r.histograms {
		histograms = append(histograms, h)
	}
	r.mu.RUnlock()

	sort.Slice(counters, func(i, j int) bool { return counters[i].name < counters[j].name })
	sort.Slice(gauges, func(i, j int) bool { return gauges[i].name < gauges[j].name })
	sort.Slice(histograms, func(i, j int) bool { return histograms[i].name < histograms[j].name })

	for _, c := range counters {
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", c.name, c.help, c.name, c.name, c.Value())
	}
	for _, g := range gauges {
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n", g.name, g.help, g.name, g.name, g.Value())
	}
	for _, h := range histograms {
		h.mu.Lock()
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
		for i, le := range h.bounds {
			label := fmt.Sprintf("%g", le)
			if math.IsInf(le, 1) {
				label = "+Inf"
			}
			fmt.Fprintf(&sb, "%s_bucket{le=\"%s\"} %d\n", h.name, label, h.counts[i])
		}
		fmt.Fprintf(&sb, "%s_sum %g\n", h.name, h.sum)
		fmt.Fprintf(&sb, "%s_count %d\n", h.name, h.count)
		h.mu.Unlock()
	}

	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}

// Handler serves the registry in Prometheus text format.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteTo(w)
	}
}

var (
	PollCycles       = Default.Counter("poll_cycles_total", "Watcher poll cycles")
	CycleErrors      = Default.Counter("cycle_errors_total", "Watcher cycles that ended in an error")
	QuestionsTotal   = Default.Counter("questions_total", "Questions dispatched to the pipeline")
	QuestionFailures = Default.Counter("question_failures_total", "Questions whose pipeline run failed")
	RepliesSent      = Default.Counter("replies_sent_total", "PDF replies sent back to the chat")
	BackendRequests  = Default.Counter("backend_requests_total", "Chat completion requests")
	BackendFailures  = Default.Counter("backend_failures_total", "Chat completion requests that failed")
	ContextEntries   = Default.Gauge("context_entries", "Answers currently held in the context window")

	BackendLatency = Default.Histogram("backend_latency_seconds", "Chat completion latency in seconds",
		[]float64{1, 5, 15, 30, 60, 120, 300})
	ConversionLatency = Default.Histogram("conversion_latency_seconds", "Markdown to PDF conversion latency in seconds",
		[]float64{0.5, 1, 2, 5, 10, 30})
)
