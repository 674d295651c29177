package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	defectsLoaded *prometheus.GaugeVec
	assignments   *prometheus.CounterVec
	uploads       *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served.",
		}),
		defectsLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "defects_loaded",
			Help: "Defects returned by the last load, by source kind.",
		}, []string{"source"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "image_assignments_total",
			Help: "Image assignment changes by action.",
		}, []string{"action"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "uploaded_files_total",
			Help: "Uploaded files by kind.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.requests, m.duration, m.inFlight,
		m.defectsLoaded, m.assignments, m.uploads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Middleware records request count, latency and in-flight requests.
// Routes are labelled by chi pattern to keep cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		wrapped := wrap(w)
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// The recorders below are no-ops on a nil *Metrics.

func (m *Metrics) DefectsLoaded(source string, n int) {
	if m == nil {
		return
	}
	m.defectsLoaded.WithLabelValues(source).Set(float64(n))
}

func (m *Metrics) Assignment(action string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(action).Inc()
}

func (m *Metrics) Upload(kind string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(kind).Inc()
}
