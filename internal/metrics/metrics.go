// Package metrics exposes Prometheus instrumentation for the dispatch engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for event intake and rule dispatch.
// A nil *Metrics disables all recording, so callers never guard.
type Metrics struct {
	// Occurrences accepted, by tenant and catalog category
	OccurrencesRecorded *prometheus.CounterVec

	// Payloads rejected by schema validation
	ValidationFailures *prometheus.CounterVec

	// Tasks produced by dispatch rules
	TasksDerived *prometheus.CounterVec

	// Tasks whose assignment could not be resolved
	TasksUnassigned *prometheus.CounterVec

	// Notifications produced by dispatch rules
	NotificationsDerived *prometheus.CounterVec

	// Webhook delivery attempts by outcome
	WebhookDeliveries *prometheus.CounterVec

	// End-to-end record-event latency including derivation and persistence
	RecordEventLatency prometheus.Histogram
}

// New creates a Metrics instance registered on the default registry.
func New() *Metrics {
	return NewOn(prometheus.DefaultRegisterer)
}

// NewOn registers all metrics on the given registry. Tests pass a fresh
// registry so repeated construction never collides.
func NewOn(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OccurrencesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_occurrences_recorded_total",
			Help: "Total business event occurrences recorded, by tenant and category",
		}, []string{"tenant", "category"}),

		ValidationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_validation_failures_total",
			Help: "Total payloads rejected by schema validation, by tenant and event type",
		}, []string{"tenant", "event_type"}),

		TasksDerived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_tasks_derived_total",
			Help: "Total tasks derived from recorded occurrences, by tenant and event type",
		}, []string{"tenant", "event_type"}),

		TasksUnassigned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_tasks_unassigned_total",
			Help: "Total derived tasks left without a resolvable assignee, by tenant and event type",
		}, []string{"tenant", "event_type"}),

		NotificationsDerived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_notifications_derived_total",
			Help: "Total notifications derived from recorded occurrences, by tenant and event type",
		}, []string{"tenant", "event_type"}),

		WebhookDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_webhook_deliveries_total",
			Help: "Total webhook delivery attempts by outcome",
		}, []string{"status"}), // status: "ok", "error"

		RecordEventLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_record_event_seconds",
			Help:    "Duration of recording one occurrence including derivation and persistence",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncOccurrence records an accepted occurrence.
func (m *Metrics) IncOccurrence(tenant, category string) {
	if m != nil {
		m.OccurrencesRecorded.WithLabelValues(tenant, category).Inc()
	}
}

// IncValidationFailure records a rejected payload.
func (m *Metrics) IncValidationFailure(tenant, eventType string) {
	if m != nil {
		m.ValidationFailures.WithLabelValues(tenant, eventType).Inc()
	}
}

// AddDerived records the tasks and notifications produced for one occurrence.
func (m *Metrics) AddDerived(tenant, eventType string, tasks, notifications int) {
	if m != nil {
		m.TasksDerived.WithLabelValues(tenant, eventType).Add(float64(tasks))
		m.NotificationsDerived.WithLabelValues(tenant, eventType).Add(float64(notifications))
	}
}

// AddUnassigned records tasks left without a resolvable assignee.
func (m *Metrics) AddUnassigned(tenant, eventType string, n int) {
	if m != nil && n > 0 {
		m.TasksUnassigned.WithLabelValues(tenant, eventType).Add(float64(n))
	}
}

// IncWebhookDelivery records one webhook delivery attempt.
func (m *Metrics) IncWebhookDelivery(status string) {
	if m != nil {
		m.WebhookDeliveries.WithLabelValues(status).Inc()
	}
}

// ObserveRecordEvent records the duration of one record-event call.
func (m *Metrics) ObserveRecordEvent(d time.Duration) {
	if m != nil {
		m.RecordEventLatency.Observe(d.Seconds())
	}
}
