// Package metrics exposes Prometheus collectors for the channel engine,
// SV1 bridge, and noise transport, and the handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ChannelsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sv2core",
		Name:      "channels_open",
		Help:      "Number of open mining channels (standard + extended + group).",
	})

	BridgeSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sv2core",
		Name:      "bridge_sessions",
		Help:      "Number of active SV1 bridge sessions.",
	})

	NoiseSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sv2core",
		Name:      "noise_sessions",
		Help:      "Number of established noise transport sessions.",
	})

	HandshakesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sv2core",
		Name:      "handshakes_completed_total",
		Help:      "Total noise handshakes that completed successfully.",
	})

	HandshakesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sv2core",
		Name:      "handshakes_failed_total",
		Help:      "Total noise handshakes that failed or were aborted.",
	})

	SharesAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sv2core",
		Name:      "shares_accepted_total",
		Help:      "Total submitted shares forwarded upstream as valid job/channel pairs.",
	})

	SharesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sv2core",
		Name:      "shares_rejected_total",
		Help:      "Total rejected shares by error code (invalid-job-id, stale-share, ...).",
	}, []string{"error_code"})

	JobsDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sv2core",
		Name:      "jobs_dispatched_total",
		Help:      "Total standard/SV1 jobs derived from an upstream extended job.",
	})

	FutureJobsPromoted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sv2core",
		Name:      "future_jobs_promoted_total",
		Help:      "Total future jobs promoted to active on a new previous hash.",
	})
)

func init() {
	prometheus.MustRegister(
		ChannelsOpen,
		BridgeSessions,
		NoiseSessions,
		HandshakesCompleted,
		HandshakesFailed,
		SharesAccepted,
		SharesRejected,
		JobsDispatched,
		FutureJobsPromoted,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
