// Package metrics provides Prometheus instrumentation for the daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PushEventsTotal counts inbound push events by kind.
	PushEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amora_push_events_total",
			Help: "Inbound push events received over the socket",
		},
		[]string{"kind"},
	)

	// PushEventsDropped counts frames discarded at the normalization boundary.
	PushEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "amora_push_events_dropped_total",
			Help: "Malformed push frames dropped before reconciliation",
		},
	)

	// SocketReconnects counts socket reconnect attempts.
	SocketReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "amora_socket_reconnects_total",
			Help: "Push socket reconnect attempts",
		},
	)

	// MessagesSent counts outbound message sends by outcome.
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amora_messages_sent_total",
			Help: "Outbound message sends",
		},
		[]string{"outcome"}, // confirmed, failed, rejected
	)

	// PlaceholdersReconciled counts optimistic placeholders rewritten to server ids.
	PlaceholdersReconciled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "amora_placeholders_reconciled_total",
			Help: "Optimistic placeholders confirmed by server echo",
		},
	)

	// DuplicateEvents counts push events discarded as already-applied.
	DuplicateEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "amora_duplicate_events_total",
			Help: "Push events discarded by the idempotence check",
		},
	)

	// TypingSignals counts typing indicator traffic by direction.
	TypingSignals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amora_typing_signals_total",
			Help: "Typing signals sent and received",
		},
		[]string{"direction"}, // in, out
	)

	// RequestDuration tracks local API request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amora_local_request_duration_seconds",
			Help:    "Local API request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path", "status"},
	)
)
