package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session lifecycle metrics
	StartAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carchat_start_attempts_total",
			Help: "Start calls issued, by outcome",
		},
		[]string{"outcome"}, // "ok" or "error"
	)

	HistoryFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carchat_history_fetches_total",
			Help: "Backlog fetches, by outcome",
		},
		[]string{"outcome"},
	)

	// Message flow metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carchat_messages_sent_total",
			Help: "Messages accepted by the send gate and written to the stream",
		},
	)

	MessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carchat_messages_received_total",
			Help: "Messages newly added to the timeline",
		},
	)

	DuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carchat_duplicates_dropped_total",
			Help: "Messages suppressed by timeline deduplication",
		},
	)

	SendsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carchat_sends_rejected_total",
			Help: "Outbound sends rejected before transmission",
		},
		[]string{"reason"}, // "empty", "debounce", "not_connected"
	)

	// Connection metrics
	Disconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "carchat_disconnects_total",
			Help: "Live connections that closed or dropped",
		},
	)
)
