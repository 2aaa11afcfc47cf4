// Package metrics exposes Prometheus instrumentation for the periodic sweeps.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SweepRuns counts sweep executions by job and outcome.
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsdesk",
		Subsystem: "sla",
		Name:      "sweep_runs_total",
		Help:      "Periodic sweep executions by job and status.",
	}, []string{"job", "status"})

	// SweepDuration observes how long each sweep run took.
	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "opsdesk",
		Subsystem: "sla",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of periodic sweep runs.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"job"})

	// TicketsScanned counts tickets examined per sweep job.
	TicketsScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsdesk",
		Subsystem: "sla",
		Name:      "tickets_scanned_total",
		Help:      "Tickets examined by periodic sweeps.",
	}, []string{"job"})

	// BreachesRecorded counts breach flags set, by breach type.
	BreachesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "opsdesk",
		Subsystem: "sla",
		Name:      "breaches_recorded_total",
		Help:      "Breach flags set by the detector, by type.",
	}, []string{"type"})

	// EscalationsFired counts escalation level advances.
	EscalationsFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "opsdesk",
		Subsystem: "sla",
		Name:      "escalations_fired_total",
		Help:      "Escalation levels advanced on tickets.",
	})

	// NotificationFailures counts dispatcher errors. Deliveries are best
	// effort, so failures only surface here and in logs.
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "opsdesk",
		Subsystem: "sla",
		Name:      "notification_failures_total",
		Help:      "Notification dispatch failures.",
	})
)

// Handler serves the default registry over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}
