// Package metrics exposes the handful of Prometheus collectors the venue
// registers: message throughput, backpressure drops, and connection
// counts. This stays thin glue by design — no custom collector logic,
// just the standard client library's counters and gauges.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venue",
		Name:      "messages_processed_total",
		Help:      "Requests the matching engine has processed, by request kind.",
	}, []string{"kind"})

	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "venue",
		Name:      "decode_errors_total",
		Help:      "Frames or lines dropped because they failed to decode, by protocol.",
	}, []string{"protocol"})

	InboundQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "venue",
		Name:      "inbound_queue_drops_total",
		Help:      "Requests dropped because the engine's inbound queue was full.",
	})

	MulticastQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "venue",
		Name:      "multicast_queue_drops_total",
		Help:      "Market-data packets dropped because the multicast send queue was full.",
	})

	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "venue",
		Name:      "active_connections",
		Help:      "Currently open order-entry TCP connections.",
	})
)

// Serve starts an HTTP server exposing /metrics on addr. It runs until
// the process exits; callers typically launch it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
