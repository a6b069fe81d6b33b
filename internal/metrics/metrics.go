// Package metrics exposes Prometheus collectors for the alert lifecycle and
// notification delivery. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alertline"

// Resolution reasons
const (
	ReasonManual = "manual"
	ReasonAuto   = "auto"
)

// Notification outcomes
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// Metrics holds every collector registered by the service
type Metrics struct {
	AlertsCreated        *prometheus.CounterVec
	AlertsMerged         *prometheus.CounterVec
	AlertsResolved       *prometheus.CounterVec
	ActiveAlerts         prometheus.Gauge
	Notifications        *prometheus.CounterVec
	NotificationDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. When reg also
// implements prometheus.Gatherer, Handler serves from it.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts inserted as new records.",
		}, []string{"severity"}),
		AlertsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_merged_total",
			Help:      "Alert creations folded into an existing record.",
		}, []string{"severity"}),
		AlertsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_resolved_total",
			Help:      "Alerts transitioned to resolved.",
		}, []string{"severity", "reason"}),
		ActiveAlerts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Alerts currently active.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Channel deliveries by outcome.",
		}, []string{"channel", "event", "outcome"}),
		NotificationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_duration_seconds",
			Help:      "Time spent in a single channel delivery.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}

	reg.MustRegister(
		m.AlertsCreated,
		m.AlertsMerged,
		m.AlertsResolved,
		m.ActiveAlerts,
		m.Notifications,
		m.NotificationDuration,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// AlertCreated records a new alert record.
func (m *Metrics) AlertCreated(severity string) {
	if m == nil {
		return
	}
	m.AlertsCreated.WithLabelValues(severity).Inc()
	m.ActiveAlerts.Inc()
}

// AlertMerged records a duplicate folded into an existing record.
func (m *Metrics) AlertMerged(severity string) {
	if m == nil {
		return
	}
	m.AlertsMerged.WithLabelValues(severity).Inc()
}

// AlertResolved records a resolution with its reason.
func (m *Metrics) AlertResolved(severity, reason string) {
	if m == nil {
		return
	}
	m.AlertsResolved.WithLabelValues(severity, reason).Inc()
	m.ActiveAlerts.Dec()
}

// NotificationAttempt records one channel delivery.
func (m *Metrics) NotificationAttempt(channel, event, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(channel, event, outcome).Inc()
	if outcome != OutcomeSkipped {
		m.NotificationDuration.WithLabelValues(channel).Observe(elapsed.Seconds())
	}
}
