package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	uploadsTotal    *prometheus.CounterVec
	downloadsTotal  *prometheus.CounterVec
	uploadsInFlight prometheus.Gauge
	uploadBytes     prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "uploads_total",
			Help:      "Package upload attempts by outcome.",
		}, []string{"outcome"}),
		downloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "downloads_total",
			Help:      "Package download attempts by outcome.",
		}, []string{"outcome"}),
		uploadsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "depot",
			Name:      "uploads_in_flight",
			Help:      "Uploads currently streaming.",
		}),
		uploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "depot",
			Name:      "upload_bytes_total",
			Help:      "Archive bytes accepted into storage.",
		}),
	}
}
