package dispatch

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry           *prometheus.Registry
	jobsTotal          *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	activeJobs         prometheus.Gauge
	artifactsPersisted *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	remoteFailures     *prometheus.CounterVec
	remoteCallDuration *prometheus.HistogramVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelsplit_dispatcher_jobs_total",
			Help: "Total dispatched jobs by mode and final status.",
		}, []string{"mode", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelsplit_dispatcher_job_duration_seconds",
			Help:    "Total orchestration duration for each job.",
			Buckets: prometheus.DefBuckets,
		}, []string{"mode"}),
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelsplit_dispatcher_active_jobs",
			Help: "Current number of jobs being orchestrated.",
		}),
		artifactsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelsplit_dispatcher_artifacts_persisted_total",
			Help: "Artifacts written to the blob store by kind.",
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelsplit_dispatcher_notifications_total",
			Help: "Artifact notifications by delivery result.",
		}, []string{"result"}),
		remoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelsplit_dispatcher_remote_failures_total",
			Help: "Failed remote transform calls by service and fault kind.",
		}, []string{"service", "fault"}),
		remoteCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pixelsplit_dispatcher_remote_call_duration_seconds",
			Help:    "Latency of remote transform calls by role.",
			Buckets: prometheus.DefBuckets,
		}, []string{"role"}),
	}

	registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.activeJobs,
		m.artifactsPersisted,
		m.notifications,
		m.remoteFailures,
		m.remoteCallDuration,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
