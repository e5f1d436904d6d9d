package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventproxy",
			Subsystem: "connection",
			Name:      "connects_total",
			Help:      "Total number of successful session connects",
		},
	)

	ConnectFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventproxy",
			Subsystem: "connection",
			Name:      "connect_failures_total",
			Help:      "Total number of failed session connects",
		},
	)

	DisconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventproxy",
			Subsystem: "connection",
			Name:      "disconnects_total",
			Help:      "Total number of session disconnects",
		},
	)

	ReconnectAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventproxy",
			Subsystem: "connection",
			Name:      "reconnect_attempts_total",
			Help:      "Total number of automatic reconnect attempts",
		},
	)

	// Event metrics
	EventsRelayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventproxy",
			Subsystem: "events",
			Name:      "relayed_total",
			Help:      "Total number of events relayed, by domain",
		},
		[]string{"domain"},
	)

	DecodeFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventproxy",
			Subsystem: "events",
			Name:      "decode_failures_total",
			Help:      "Total number of malformed instrumentation payloads dropped",
		},
	)

	// Subscriber metrics
	ActiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eventproxy",
			Subsystem: "subscribers",
			Name:      "active_total",
			Help:      "Number of currently registered subscribers",
		},
	)

	FramesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventproxy",
			Subsystem: "subscribers",
			Name:      "frames_sent_total",
			Help:      "Total number of frames delivered to subscribers",
		},
	)

	DeliveryFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "eventproxy",
			Subsystem: "subscribers",
			Name:      "delivery_failures_total",
			Help:      "Total number of frame deliveries that failed and pruned a subscriber",
		},
	)
)
