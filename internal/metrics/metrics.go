// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oasis_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oasis_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oasis_chat_messages_appended_total",
			Help: "Messages appended to a tab's history",
		},
		[]string{"origin"}, // "local", "remote", "seed" or "ai"
	)

	DuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oasis_chat_duplicates_dropped_total",
			Help: "Broadcast deliveries discarded because the id was already in history",
		},
	)

	ActiveTabs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "oasis_chat_active_tabs",
			Help: "Chat sessions currently mounted",
		},
	)

	AIReplies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oasis_ai_replies_total",
			Help: "Completion requests by outcome",
		},
		[]string{"outcome"}, // "ok", "empty" or "error"
	)

	// Widget metrics
	ViewMounts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oasis_view_counter_mounts_total",
			Help: "View counter mounts",
		},
		[]string{"kind"}, // "rebaseline" or "increment"
	)
)
