package consumer

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	eventsTotal *prometheus.CounterVec
	inFlight    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		eventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pixelsplit_consumer_events_total",
			Help: "Inbound events by source and outcome.",
		}, []string{"source", "outcome"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pixelsplit_consumer_in_flight_jobs",
			Help: "Jobs currently holding a worker slot.",
		}),
	}
	reg.MustRegister(m.eventsTotal, m.inFlight)
	return m
}
