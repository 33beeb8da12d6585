// Package observability exposes Prometheus metrics for what-if tool runs.
package observability

import (
	"net/http"
	"time"

	"github.com/iwvelando/whatif/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "whatif"

// Collector records tool runs. A nil *Collector discards everything.
type Collector struct {
	registry   *prometheus.Registry
	runs       *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	iterations *prometheus.HistogramVec
	sessions   prometheus.Gauge
}

// NewCollector creates a collector on its own registry, with the Go runtime
// and process collectors included.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_runs_total",
			Help:      "Completed what-if tool runs by terminal status.",
		}, []string{"tool", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_failures_total",
			Help:      "What-if tool runs that returned an error, by error kind.",
		}, []string{"tool", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Wall time of what-if tool runs.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"tool"}),
		iterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_iterations",
			Help:      "Iterations, nodes or generations used per tool run.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"tool"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workbook_sessions",
			Help:      "Workbook sessions currently held by the server.",
		}),
	}
	c.registry.MustRegister(
		c.runs, c.failures, c.duration, c.iterations, c.sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveRun records a run that finished with status.
func (c *Collector) ObserveRun(tool, status string, iterations int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(tool, status).Inc()
	c.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
	c.iterations.WithLabelValues(tool).Observe(float64(iterations))
}

// ObserveFailure records a run that returned err.
func (c *Collector) ObserveFailure(tool string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	kind := "Other"
	if k, ok := model.KindOf(err); ok {
		kind = k.String()
	}
	c.failures.WithLabelValues(tool, kind).Inc()
	c.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// SetSessions reports the number of live server sessions.
func (c *Collector) SetSessions(n int) {
	if c == nil {
		return
	}
	c.sessions.Set(float64(n))
}

// Registry returns the registry the collector's metrics live on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
