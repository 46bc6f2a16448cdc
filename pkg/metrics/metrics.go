package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccessDecisions counts policy evaluations by decision and resource type.
	AccessDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessdesk_access_decisions_total",
			Help: "Access requests evaluated, by decision",
		},
		[]string{"decision", "resource_type"},
	)

	// ApprovalResolutions counts resolved approval requests (approved|rejected).
	ApprovalResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessdesk_approval_resolutions_total",
			Help: "Approval requests resolved, by decision",
		},
		[]string{"decision"},
	)

	// AuditEvents counts appended audit events.
	AuditEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessdesk_audit_events_total",
			Help: "Audit events recorded, by type and severity",
		},
		[]string{"event_type", "severity"},
	)

	// AuditWriteFailures counts audit events that could not be persisted.
	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accessdesk_audit_write_failures_total",
			Help: "Audit events dropped because the store rejected the write",
		},
	)

	// IntegrationFailures counts failed calls to external collaborators.
	IntegrationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessdesk_integration_failures_total",
			Help: "Failed notification, ticketing and provisioning calls",
		},
		[]string{"integration"},
	)

	// PermissionChecks counts permission evaluations and their outcome (allowed|denied|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessdesk_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// MaintenanceRuns counts scheduled maintenance jobs by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accessdesk_maintenance_runs_total",
			Help: "Maintenance job executions",
		},
		[]string{"job", "result"},
	)

	// RealtimeConnections tracks open websocket connections.
	RealtimeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "accessdesk_realtime_connections",
			Help: "Open websocket connections",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accessdesk_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
