package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maelnode",
			Name:      "messages_total",
			Help:      "Inbound requests by message type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	HandlerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "maelnode",
			Name:      "handler_duration_seconds",
			Help:      "Latency of handler invocations, including nested RPCs.",
			// 0.1ms .. ~3s
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"type"},
	)

	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "maelnode",
			Name:      "in_flight_handlers",
			Help:      "Current number of handler invocations in progress.",
		},
	)

	RPCsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maelnode",
			Name:      "rpcs_total",
			Help:      "Outbound RPCs by request type and outcome (ok, error, timeout, canceled).",
		},
		[]string{"type", "outcome"},
	)

	PendingRPCs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "maelnode",
			Name:      "pending_rpcs",
			Help:      "Outbound RPCs awaiting a reply.",
		},
	)

	DroppedReplies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "maelnode",
			Name:      "dropped_replies_total",
			Help:      "Replies that matched no pending RPC (late or duplicate).",
		},
	)

	GossipRounds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "maelnode",
			Name:      "gossip_rounds_total",
			Help:      "Gossip rounds started.",
		},
	)

	GossipMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "maelnode",
			Name:      "gossip_merged_total",
			Help:      "Set elements learned from gossip payloads.",
		},
	)

	CASRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "maelnode",
			Name:      "cas_retries_total",
			Help:      "Compare-and-swap attempts rejected by a value mismatch.",
		},
		[]string{"op"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "maelnode",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		},
		[]string{"version"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "maelnode",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		MessagesTotal,
		HandlerDuration,
		InFlight,
		RPCsTotal,
		PendingRPCs,
		DroppedReplies,
		GossipRounds,
		GossipMerged,
		CASRetries,
		buildInfo,
		uptime,
	)
}

// MetricsHandler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup.
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}
