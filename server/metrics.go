package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_active_sessions",
			Help: "Number of identified client sessions.",
		},
	)
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_commands_total",
			Help: "Total number of protocol commands dispatched.",
		},
		[]string{"command"},
	)
	forwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_forwards_total",
			Help: "Total number of message lines forwarded to recipients.",
		},
		[]string{"kind"},
	)
	failedDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_failed_deliveries_total",
			Help: "Total number of messages acknowledged as FAILED.",
		},
		[]string{"scope"},
	)
	droppedFrames = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrelay_dropped_frames_total",
			Help: "Total number of outbound frames dropped on full session queues.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		activeSessions,
		commandsTotal,
		forwardsTotal,
		failedDeliveries,
		droppedFrames,
	)
}

// ServeMetrics exposes the prometheus registry over HTTP. It blocks, so run
// it in its own goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
