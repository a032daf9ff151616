// Package metrics holds the Prometheus collectors of the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_connections_active",
			Help: "Open WebSocket connections",
		},
	)

	UsersOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexus_users_online",
			Help: "Users currently in the online state",
		},
	)

	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_presence_transitions_total",
			Help: "Presence transitions broadcast",
		},
		[]string{"status"}, // "online" or "offline"
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_events_received_total",
			Help: "Client events received by name",
		},
		[]string{"event"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_events_rejected_total",
			Help: "Client frames rejected",
		},
		[]string{"reason"},
	)

	FramesDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_frames_delivered_total",
			Help: "Frames queued to connections by event",
		},
		[]string{"event"},
	)

	PersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_persist_failures_total",
			Help: "Failed store calls by operation",
		},
		[]string{"op"},
	)

	PersistLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexus_persist_latency_seconds",
			Help:    "Store call latency by operation",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"op"},
	)
)
