// Package metrics declares the process-wide Prometheus counters shared by
// the ingest loop, the external-hook service, and the virtual node agent,
// plus the /metrics HTTP handler that exposes them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PacketsDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridger_packets_decoded_total",
		Help: "ServiceEnvelopes successfully decoded off the MQTT bus.",
	}, []string{"port"})

	DedupDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bridger_dedup_dropped_total",
		Help: "Deliveries dropped because their dedup key was already seen.",
	})

	PointsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridger_points_written_total",
		Help: "TypedPoints written to the time-series store, by measurement.",
	}, []string{"measurement"})

	ProcessingErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridger_processing_errors_total",
		Help: "Deliveries dropped due to a ProcessingError, by kind.",
	}, []string{"kind"})

	PublishAdmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bridger_publish_admitted_total",
		Help: "Exhook publish verdicts, by allow/block.",
	}, []string{"verdict"})

	BeaconsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bridger_virtualnode_beacons_total",
		Help: "NodeInfo beacons published by the virtual node agent.",
	})
)

func init() {
	prometheus.MustRegister(
		PacketsDecoded,
		DedupDropped,
		PointsWritten,
		ProcessingErrors,
		PublishAdmitted,
		BeaconsSent,
	)
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
