package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking metrics
	Bookings          *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec

	// Meeting provider metrics
	MeetingResources *prometheus.CounterVec
	ProviderDegraded *prometheus.CounterVec
	ProviderLatency  prometheus.Histogram

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram
	OutboxRetries           *prometheus.CounterVec

	// Notification metrics
	NotificationsSent *prometheus.CounterVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New registers all metrics on reg. Pass prometheus.DefaultRegisterer in
// binaries and a fresh prometheus.NewRegistry() in tests.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking attempts by appointment kind and outcome",
		}, []string{"kind", "outcome"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointment_status_transitions_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"status"}),

		MeetingResources: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meeting_resources_total",
			Help:      "Meeting resources attached to appointments, real or synthetic",
		}, []string{"source"}),
		ProviderDegraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meeting_provider_degraded_total",
			Help:      "Calendar provider calls answered with a synthetic resource",
		}, []string{"reason"}),
		ProviderLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "meeting_provider_duration_seconds",
			Help:      "Duration of calendar provider calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),

		OutboxEventsProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		OutboxRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_retry_attempts_total",
			Help:      "Total number of retry attempts for outbox events",
		}, []string{"event_type"}),

		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notification emails by event type and outcome",
		}, []string{"event_type", "outcome"}),

		DatabaseOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// NewNop returns metrics registered on a throwaway registry.
func NewNop() *Metrics {
	return New("test", prometheus.NewRegistry())
}
