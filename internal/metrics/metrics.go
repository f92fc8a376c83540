// Package metrics holds the service's Prometheus collectors. All methods are
// safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "imgresize"

type Metrics struct {
	registry *prometheus.Registry

	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	resizeFailures prometheus.Counter
	resizeDuration prometheus.Histogram
	requests       *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Number of requests served from an existing derivative.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Number of requests that had to produce a derivative.",
		}),
		resizeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resize_failures_total",
			Help:      "Total resize failures.",
		}),
		resizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resize_duration_seconds",
			Help:      "Time taken by the resizer in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		m.cacheHits,
		m.cacheMisses,
		m.resizeFailures,
		m.resizeDuration,
		m.requests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// ObserveResize records one resizer invocation.
func (m *Metrics) ObserveResize(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.resizeDuration.Observe(d.Seconds())
	if err != nil {
		m.resizeFailures.Inc()
	}
}

func (m *Metrics) ObserveRequest(route string, code int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
