package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	PacketsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uniclip",
			Name:      "packets_received_total",
			Help:      "Datagrams accepted by the receive loop, by opcode.",
		},
		[]string{"opcode"},
	)

	PacketsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uniclip",
			Name:      "packets_sent_total",
			Help:      "Datagrams written to the socket, by opcode.",
		},
		[]string{"opcode"},
	)

	PacketsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uniclip",
			Name:      "packets_dropped_total",
			Help:      "Inbound datagrams dropped, by reason.",
		},
		[]string{"reason"},
	)

	SendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "uniclip",
			Name:      "send_failures_total",
			Help:      "Socket writes that failed or timed out.",
		},
	)

	PeerEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "uniclip",
			Name:      "peer_evictions_total",
			Help:      "Peers removed after a failed broadcast send.",
		},
	)

	Peers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uniclip",
			Name:      "peers",
			Help:      "Current size of the peer table.",
		},
	)

	HistoryEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "uniclip",
			Name:      "history_entries",
			Help:      "Entries held in the clipboard history.",
		},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "uniclip",
			Name:      "api_requests_total",
			Help:      "Total number of control API requests.",
		},
		[]string{"route", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "uniclip",
			Name:      "api_request_duration_seconds",
			Help:      "Latency of control API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 13),
		},
		[]string{"route"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "uniclip",
			Name:      "build_info",
			Help:      "Build info (constant 1, labeled by version).",
		},
		[]string{"version"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "uniclip",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		PacketsReceived, PacketsSent, PacketsDropped, SendFailures, PeerEvictions,
		Peers, HistoryEntries, RequestsTotal, RequestDuration, buildInfo, uptime,
	)
}

// MetricsHandler exposes the registry in the Prometheus text format
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetBuildInfo should be called once at startup
func SetBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// ObserveRequest records one finished API request
func ObserveRequest(route string, status int, elapsed time.Duration) {
	class := strconv.Itoa(status/100) + "xx"
	RequestsTotal.WithLabelValues(route, class).Inc()
	RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
