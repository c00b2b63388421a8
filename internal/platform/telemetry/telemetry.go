// Package telemetry records HTTP server metrics and serves them in the
// Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

var (
	defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	defaultSizeBuckets     = []float64{100, 1000, 10000, 100000, 1000000}
)

// histogram is a thread-safe histogram. Bucket counts are stored
// non-cumulative; cumulative counts are computed at export time.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	var running int64
	for i, c := range raw {
		running += c
		raw[i] = running
	}
	return raw
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(next)) {
			return
		}
	}
}

// LabelsKey builds the key of a (method, route, status) series.
func LabelsKey(method, route, statusCode string) string {
	return method + "|" + route + "|" + statusCode
}

// Metrics holds the server's metric series.
type Metrics struct {
	active int64

	mu        sync.RWMutex
	durations map[string]*histogram
	respSize  *histogram
	gauges    map[string]gaugeFunc
}

type gaugeFunc struct {
	help string
	fn   func() float64
}

func NewMetrics() *Metrics {
	return &Metrics{
		durations: make(map[string]*histogram),
		respSize:  newHistogram(defaultSizeBuckets),
		gauges:    make(map[string]gaugeFunc),
	}
}

// GaugeFunc registers a gauge whose value is read at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.mu.Lock()
	m.gauges[name] = gaugeFunc{help: help, fn: fn}
	m.mu.Unlock()
}

func (m *Metrics) duration(key string) *histogram {
	m.mu.RLock()
	h, ok := m.durations[key]
	m.mu.RUnlock()
	if ok {
		return h
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.durations[key]; !ok {
		h = newHistogram(defaultDurationBuckets)
		m.durations[key] = h
	}
	return h
}

// RequestCount returns how many requests were observed for a series.
func (m *Metrics) RequestCount(method, route string, status int) int64 {
	m.mu.RLock()
	h, ok := m.durations[LabelsKey(method, route, strconv.Itoa(status))]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return h.Count()
}

// Middleware records duration, status and response size per route pattern.
// Errors are handed to echo's error handler first so the recorded status is
// the one the client receives.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&m.active, 1)
			defer atomic.AddInt64(&m.active, -1)

			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			resp := c.Response()
			m.duration(LabelsKey(c.Request().Method, route, strconv.Itoa(resp.Status))).
				Observe(time.Since(start).Seconds())
			if resp.Size > 0 {
				m.respSize.Observe(float64(resp.Size))
			}
			return nil
		}
	}
}

// Handler serves /metrics.
func (m *Metrics) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.String(http.StatusOK, m.Render())
	}
}

// Render writes every series in exposition format, sorted by name and labels.
func (m *Metrics) Render() string {
	var b strings.Builder

	m.mu.RLock()
	keys := make([]string, 0, len(m.durations))
	for k := range m.durations {
		keys = append(keys, k)
	}
	durations := make(map[string]*histogram, len(m.durations))
	for k, h := range m.durations {
		durations[k] = h
	}
	gaugeNames := make([]string, 0, len(m.gauges))
	gauges := make(map[string]gaugeFunc, len(m.gauges))
	for name, g := range m.gauges {
		gaugeNames = append(gaugeNames, name)
		gauges[name] = g
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	sort.Strings(gaugeNames)

	const durName = "http_server_request_duration_seconds"
	fmt.Fprintf(&b, "# HELP %s Duration of HTTP requests in seconds.\n", durName)
	fmt.Fprintf(&b, "# TYPE %s histogram\n", durName)
	for _, key := range keys {
		parts := strings.SplitN(key, "|", 3)
		labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
		writeHistogram(&b, durName, labels, durations[key])
	}
	b.WriteByte('\n')

	b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
	b.WriteString("# TYPE http_server_active_requests gauge\n")
	fmt.Fprintf(&b, "http_server_active_requests %d\n\n", atomic.LoadInt64(&m.active))

	const sizeName = "http_server_response_size_bytes"
	fmt.Fprintf(&b, "# HELP %s Size of HTTP response bodies in bytes.\n", sizeName)
	fmt.Fprintf(&b, "# TYPE %s histogram\n", sizeName)
	writeHistogram(&b, sizeName, "", m.respSize)
	b.WriteByte('\n')

	for _, name := range gaugeNames {
		g := gauges[name]
		fmt.Fprintf(&b, "# HELP %s %s\n", name, g.help)
		fmt.Fprintf(&b, "# TYPE %s gauge\n", name)
		fmt.Fprintf(&b, "%s %g\n\n", name, g.fn())
	}
	return b.String()
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	total := h.Count()

	prefix, suffix := "", ""
	if labels != "" {
		prefix = labels + ","
		suffix = "{" + labels + "}"
	}
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, total)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, h.Sum())
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, total)
}
