package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EmailDeliveries counts delivery decisions by audience (user|admin) and
	// outcome (queued|direct|fallback|failed|suppressed). Admin alerts are kept
	// under their own audience label so delivery rates exclude them.
	EmailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_email_deliveries_total",
			Help: "Email delivery decisions by audience and outcome",
		},
		[]string{"audience", "outcome"},
	)

	// QueueSubmitLatency measures queue submissions by result (success|failure).
	QueueSubmitLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifyd_queue_submit_seconds",
			Help:    "Latency of email task submissions to the queue",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	// MarkSentCalls counts worker callbacks by status (success|already_sent).
	MarkSentCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_mark_email_sent_total",
			Help: "Worker mark-email-sent callbacks by status",
		},
		[]string{"status"},
	)

	// UnsubscribeActions counts token-driven preference changes by scope
	// (category|global) and action (unsubscribe|resubscribe).
	UnsubscribeActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_unsubscribe_actions_total",
			Help: "Unsubscribe and resubscribe actions",
		},
		[]string{"scope", "action"},
	)

	// APIKeyAuth records worker authentication attempts by method (key|legacy) and result.
	APIKeyAuth = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_api_key_auth_total",
			Help: "Worker API key authentication attempts",
		},
		[]string{"method", "result"},
	)

	// HTTPRequestDuration measures request latency by surface
	// (internal|unsubscribe|api|ops), method, matched route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notifyd_http_request_duration_seconds",
			Help:    "HTTP request latency by surface and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"surface", "method", "route", "status"},
	)

	// MaintenanceRuns counts background cleanup runs by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_maintenance_runs_total",
			Help: "Maintenance job executions",
		},
		[]string{"job", "result"},
	)
)
