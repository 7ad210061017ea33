package observability

import (
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsConfig holds configuration for the metrics subsystem.
type MetricsConfig struct {
	Enabled bool
	// Namespace prefix for all metrics (default: dashgate).
	Namespace string
	// Version is the application version for the info metric.
	Version string
}

// DefaultMetricsConfig returns the default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "dashgate",
		Version:   "dev",
	}
}

// MetricsConfigFromEnv creates a MetricsConfig from environment variables.
// DASHGATE_METRICS_ENABLED: true/false (default: true)
// APP_VERSION: version string (default: dev)
func MetricsConfigFromEnv() MetricsConfig {
	cfg := DefaultMetricsConfig()
	if v := os.Getenv("DASHGATE_METRICS_ENABLED"); v != "" {
		cfg.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("APP_VERSION"); v != "" {
		cfg.Version = v
	}
	return cfg
}

// Metrics collects counters for HTTP traffic and the authorization core.
// A nil *Metrics is safe to use; all methods become no-ops.
type Metrics struct {
	mu        sync.RWMutex
	namespace string
	version   string

	// HTTP request counters: key = "method:path:status"
	httpRequestCounts map[string]*atomic.Int64

	// HTTP request durations: key = "method:path"
	httpDurations  map[string]*durationCollector
	httpDurationMu sync.RWMutex

	// Gate decisions by outcome: allow, deny, not_found, pending_auth.
	gateDecisions map[string]*atomic.Int64
	gateMu        sync.RWMutex

	// Profile resolutions by result: ok, failed, coalesced, stale_discarded.
	profileResolutions map[string]*atomic.Int64
	profileMu          sync.RWMutex

	// Embed broker calls by result: relayed, upstream_error, unavailable.
	embedRequests map[string]*atomic.Int64
	embedMu       sync.RWMutex

	rateLimitRejected atomic.Int64
}

// durationCollector keeps a sliding window of samples for quantile computation.
type durationCollector struct {
	mu      sync.Mutex
	samples []float64
	maxSize int
}

func newDurationCollector(maxSize int) *durationCollector {
	return &durationCollector{samples: make([]float64, 0, maxSize), maxSize: maxSize}
}

func (d *durationCollector) add(duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.samples) >= d.maxSize {
		copy(d.samples, d.samples[1:])
		d.samples = d.samples[:len(d.samples)-1]
	}
	d.samples = append(d.samples, duration.Seconds())
}

func (d *durationCollector) quantile(q float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.samples) == 0 {
		return 0
	}

	sorted := make([]float64, len(d.samples))
	copy(sorted, d.samples)
	sort.Float64s(sorted)

	idx := q * float64(len(sorted)-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func (d *durationCollector) sum() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var total float64
	for _, s := range d.samples {
		total += s
	}
	return total
}

func (d *durationCollector) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples)
}

// NewMetrics creates a new Metrics collector.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		namespace:          cfg.Namespace,
		version:            cfg.Version,
		httpRequestCounts:  make(map[string]*atomic.Int64),
		httpDurations:      make(map[string]*durationCollector),
		gateDecisions:      make(map[string]*atomic.Int64),
		profileResolutions: make(map[string]*atomic.Int64),
		embedRequests:      make(map[string]*atomic.Int64),
	}
}

// RecordHTTPRequest records one request with its method, path, status, and duration.
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	normalizedPath := normalizePath(path)

	countKey := fmt.Sprintf("%s:%s:%d", method, normalizedPath, statusCode)
	m.mu.Lock()
	counter, ok := m.httpRequestCounts[countKey]
	if !ok {
		counter = &atomic.Int64{}
		m.httpRequestCounts[countKey] = counter
	}
	m.mu.Unlock()
	counter.Add(1)

	durationKey := fmt.Sprintf("%s:%s", method, normalizedPath)
	m.httpDurationMu.Lock()
	collector, ok := m.httpDurations[durationKey]
	if !ok {
		collector = newDurationCollector(1000)
		m.httpDurations[durationKey] = collector
	}
	m.httpDurationMu.Unlock()
	collector.add(duration)
}

// RecordGateDecision records one authorization gate outcome.
func (m *Metrics) RecordGateDecision(outcome string) {
	if m == nil {
		return
	}
	m.gateMu.Lock()
	counter, ok := m.gateDecisions[outcome]
	if !ok {
		counter = &atomic.Int64{}
		m.gateDecisions[outcome] = counter
	}
	m.gateMu.Unlock()
	counter.Add(1)
}

// RecordProfileResolution records one profile resolver result.
func (m *Metrics) RecordProfileResolution(result string) {
	if m == nil {
		return
	}
	m.profileMu.Lock()
	counter, ok := m.profileResolutions[result]
	if !ok {
		counter = &atomic.Int64{}
		m.profileResolutions[result] = counter
	}
	m.profileMu.Unlock()
	counter.Add(1)
}

// RecordEmbedRequest records one embed broker call result.
func (m *Metrics) RecordEmbedRequest(result string) {
	if m == nil {
		return
	}
	m.embedMu.Lock()
	counter, ok := m.embedRequests[result]
	if !ok {
		counter = &atomic.Int64{}
		m.embedRequests[result] = counter
	}
	m.embedMu.Unlock()
	counter.Add(1)
}

// RecordRateLimitRejected increments the rejected-request counter.
func (m *Metrics) RecordRateLimitRejected() {
	if m == nil {
		return
	}
	m.rateLimitRejected.Add(1)
}

// normalizePath collapses path parameters to avoid unbounded label cardinality.
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if i <= 2 {
			continue
		}
		// Anything beyond the API prefix that looks like an identifier.
		if len(p) > 20 || strings.ContainsAny(p, "0123456789") {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

// Handler returns an http.Handler serving the metrics in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics disabled", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		m.writeMetrics(w)
	})
}

func (m *Metrics) writeMetrics(w http.ResponseWriter) {
	ns := m.namespace

	fmt.Fprintf(w, "# HELP %s_info Build information.\n", ns)
	fmt.Fprintf(w, "# TYPE %s_info gauge\n", ns)
	fmt.Fprintf(w, "%s_info{version=%q} 1\n", ns, m.version)

	fmt.Fprintf(w, "# HELP %s_http_requests_total HTTP requests by method, path and status.\n", ns)
	fmt.Fprintf(w, "# TYPE %s_http_requests_total counter\n", ns)
	m.mu.RLock()
	keys := make([]string, 0, len(m.httpRequestCounts))
	for k := range m.httpRequestCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts := strings.SplitN(k, ":", 3)
		if len(parts) != 3 {
			continue
		}
		fmt.Fprintf(w, "%s_http_requests_total{method=%q,path=%q,status=%q} %d\n",
			ns, parts[0], parts[1], parts[2], m.httpRequestCounts[k].Load())
	}
	m.mu.RUnlock()

	fmt.Fprintf(w, "# HELP %s_http_request_duration_seconds HTTP request latency quantiles.\n", ns)
	fmt.Fprintf(w, "# TYPE %s_http_request_duration_seconds summary\n", ns)
	m.httpDurationMu.RLock()
	durKeys := make([]string, 0, len(m.httpDurations))
	for k := range m.httpDurations {
		durKeys = append(durKeys, k)
	}
	sort.Strings(durKeys)
	for _, k := range durKeys {
		parts := strings.SplitN(k, ":", 2)
		if len(parts) != 2 {
			continue
		}
		c := m.httpDurations[k]
		for _, q := range []float64{0.5, 0.9, 0.99} {
			fmt.Fprintf(w, "%s_http_request_duration_seconds{method=%q,path=%q,quantile=\"%g\"} %g\n",
				ns, parts[0], parts[1], q, c.quantile(q))
		}
		fmt.Fprintf(w, "%s_http_request_duration_seconds_sum{method=%q,path=%q} %g\n", ns, parts[0], parts[1], c.sum())
		fmt.Fprintf(w, "%s_http_request_duration_seconds_count{method=%q,path=%q} %d\n", ns, parts[0], parts[1], c.count())
	}
	m.httpDurationMu.RUnlock()

	writeLabeledCounter := func(name, help, label string, mu *sync.RWMutex, counts map[string]*atomic.Int64) {
		fmt.Fprintf(w, "# HELP %s_%s %s\n", ns, name, help)
		fmt.Fprintf(w, "# TYPE %s_%s counter\n", ns, name)
		mu.RLock()
		ks := make([]string, 0, len(counts))
		for k := range counts {
			ks = append(ks, k)
		}
		sort.Strings(ks)
		for _, k := range ks {
			fmt.Fprintf(w, "%s_%s{%s=%q} %d\n", ns, name, label, k, counts[k].Load())
		}
		mu.RUnlock()
	}

	writeLabeledCounter("gate_decisions_total", "Authorization gate decisions by outcome.", "outcome", &m.gateMu, m.gateDecisions)
	writeLabeledCounter("profile_resolutions_total", "Profile resolver results.", "result", &m.profileMu, m.profileResolutions)
	writeLabeledCounter("embed_requests_total", "Embed credential broker calls by result.", "result", &m.embedMu, m.embedRequests)

	fmt.Fprintf(w, "# HELP %s_rate_limit_rejected_total Requests rejected by the rate limiter.\n", ns)
	fmt.Fprintf(w, "# TYPE %s_rate_limit_rejected_total counter\n", ns)
	fmt.Fprintf(w, "%s_rate_limit_rejected_total %d\n", ns, m.rateLimitRejected.Load())
}

// MetricsMiddleware records request metrics for every request.
// A nil *Metrics disables collection.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			m.RecordHTTPRequest(r.Method, r.URL.Path, recorder.status, time.Since(start))
		})
	}
}

type metricsResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
