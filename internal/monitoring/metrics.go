package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "freerider"

// Metrics holds the application's Prometheus collectors. Each instance owns
// its registry, so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	runs         *prometheus.CounterVec
	runDuration  prometheus.Histogram
	flagged      prometheus.Counter
	partialFetch prometheus.Counter

	apiCalls    *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec

	rateLimitBlocks      *prometheus.CounterVec
	rateLimitRedisErrors prometheus.Counter
	rateLimitFallbacks   prometheus.Counter
}

// NewMetrics creates and registers the collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Free-rider runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "End-to-end free-rider run latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		flagged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_flagged_total",
			Help:      "Members flagged as free riders across all runs.",
		}),
		partialFetch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_fetch_total",
			Help:      "Commits counted without diff stats because the diff fetch failed.",
		}),

		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_api_calls_total",
			Help:      "Hosting API calls by API, operation and status code.",
		}, []string{"api", "operation", "status"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "external_api_call_duration_seconds",
			Help:      "Hosting API call latency including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"api", "operation"}),

		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_cache_lookups_total",
			Help:      "Report cache lookups by result.",
		}, []string{"result"}),

		rateLimitBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_blocks_total",
			Help:      "Requests rejected by the inbound rate limiter.",
		}, []string{"scope"}),
		rateLimitRedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_redis_errors_total",
			Help:      "Redis failures that forced the in-memory limiter.",
		}),
		rateLimitFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_fallback_total",
			Help:      "Rate limit decisions taken by the in-memory limiter.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.runs, m.runDuration, m.flagged, m.partialFetch,
		m.apiCalls, m.apiDuration,
		m.cacheLookups,
		m.rateLimitBlocks, m.rateLimitRedisErrors, m.rateLimitFallbacks,
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest records one served HTTP request
func (m *Metrics) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRun records a finished run and how many members it flagged
func (m *Metrics) RecordRun(err error, flagged int, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(duration.Seconds())
	if err == nil && flagged > 0 {
		m.flagged.Add(float64(flagged))
	}
}

// IncrementPartialFetch counts one commit without diff stats
func (m *Metrics) IncrementPartialFetch() {
	m.partialFetch.Inc()
}

// ObserveAPICall records a hosting API call. status is 0 when no response arrived.
func (m *Metrics) ObserveAPICall(apiName, operation string, status int, duration time.Duration, err error) {
	label := strconv.Itoa(status)
	if status == 0 {
		label = "none"
	}
	m.apiCalls.WithLabelValues(apiName, operation, label).Inc()
	m.apiDuration.WithLabelValues(apiName, operation).Observe(duration.Seconds())
}

// IncrementCacheHit increments cache hit count
func (m *Metrics) IncrementCacheHit() {
	m.cacheLookups.WithLabelValues("hit").Inc()
}

// IncrementCacheMiss increments cache miss count
func (m *Metrics) IncrementCacheMiss() {
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// IncrementRateLimitIPBlock counts a request rejected by the per-IP limit
func (m *Metrics) IncrementRateLimitIPBlock() {
	m.rateLimitBlocks.WithLabelValues("ip").Inc()
}

// IncrementRateLimitRedisError counts a Redis failure inside the limiter
func (m *Metrics) IncrementRateLimitRedisError() {
	m.rateLimitRedisErrors.Inc()
}

// IncrementRateLimitFallback counts a decision taken by the in-memory limiter
func (m *Metrics) IncrementRateLimitFallback() {
	m.rateLimitFallbacks.Inc()
}
