// Package metrics holds the process-wide prometheus collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ReconcileObservations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_observations_total",
			Help: "Gateway status observations by channel and outcome",
		},
		[]string{"source", "outcome"},
	)

	WebhookSignatureFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Notifications rejected by signature verification",
		},
	)

	EntitlementGrants = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_grants_total",
			Help: "Committed entitlement grants by order type",
		},
		[]string{"order_type"},
	)

	PollSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poll_sessions_total",
			Help: "Finished poll sessions by final state",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ReconcileObservations,
		WebhookSignatureFailures,
		EntitlementGrants,
		PollSessions,
	)
}
