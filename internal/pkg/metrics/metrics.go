/*
Package metrics registers the Prometheus collectors exported by the routing core.

Counters are package-level and registered once against the default registry; the HTTP
layer exposes them on /metrics.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stickychat"

var (
	// directMessages counts routing outcomes by entry point (send, receive, system) and status.
	directMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "direct_messages_total",
		Help:      "Direct-message routing outcomes by path and status.",
	}, []string{"path", "status"})

	// channelMessages counts channel deliveries by origin (local, cluster).
	channelMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "channel_messages_total",
		Help:      "Channel messages delivered by origin.",
	}, []string{"origin"})

	// transportEnvelopes counts cluster envelopes by direction and kind.
	transportEnvelopes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_envelopes_total",
		Help:      "Cluster transport envelopes by direction and kind.",
	}, []string{"direction", "kind"})

	// activeSessions tracks the WebSocket sessions connected to this instance.
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Players connected to this instance.",
	})
)

// DirectMessage records one routing outcome.
func DirectMessage(path, status string) {
	directMessages.WithLabelValues(path, status).Inc()
}

// ChannelMessage records one channel delivery.
func ChannelMessage(origin string) {
	channelMessages.WithLabelValues(origin).Inc()
}

// Envelope records one transport envelope sent ("out") or received ("in").
func Envelope(direction, kind string) {
	transportEnvelopes.WithLabelValues(direction, kind).Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() { activeSessions.Inc() }

// SessionClosed decrements the active session gauge.
func SessionClosed() { activeSessions.Dec() }
