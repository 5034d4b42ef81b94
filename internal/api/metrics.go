package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	inFlight     prometheus.Gauge
	uploadBytes  prometheus.Histogram
	rateLimited  *prometheus.CounterVec
	jobsEnqueued *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelsplit_api_requests_total",
			Help: "HTTP requests served by the upload API.",
		}, []string{"method", "route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelsplit_api_request_duration_seconds",
			Help:    "Upload API latency by route.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelsplit_api_in_flight_requests",
			Help: "Requests currently being served.",
		}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pixelsplit_api_upload_bytes",
			Help:    "Size of accepted image uploads.",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 7),
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelsplit_api_rate_limit_rejections_total",
			Help: "Uploads refused by the per-client rate limit.",
		}, []string{"route"}),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelsplit_queue_jobs_enqueued_total",
			Help: "Transform jobs handed to the queue.",
		}, []string{"queue", "mode"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.latency,
		m.inFlight,
		m.uploadBytes,
		m.rateLimited,
		m.jobsEnqueued,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		route := routeLabel(r.URL.Path)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := prometheus.NewTimer(m.latency.WithLabelValues(r.Method, route))
		next.ServeHTTP(recorder, r)
		timer.ObserveDuration()

		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(recorder.status)).Inc()
	})
}

// routeLabel collapses request paths onto the registered routes so ids do
// not explode label cardinality.
func routeLabel(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/artifacts/"):
		return "/v1/artifacts/{id}"
	case path == "/v1/jobs":
		return "/v1/jobs"
	case path == "/healthz", path == "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

