// Package prometheus exposes the license bot's session, publish and
// notification metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "licensebot"

var (
	// sessionsActive is a gauge of sessions currently running.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of auto-publish sessions currently running",
		},
	)

	// sessionsTotal counts finished sessions by end reason.
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of finished sessions",
		},
		[]string{"reason", "status"}, // status: success, error
	)

	// sessionDuration is a histogram of session wall time. Sessions mostly
	// wait on people, so the buckets reach the longest step timeouts.
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Histogram of session duration in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"status"},
	)

	// transitionsTotal counts state transitions.
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_transitions_total",
			Help:      "Total number of workflow state transitions",
		},
		[]string{"from", "to", "event"},
	)

	// waitTimeoutsTotal counts waits that expired without an answer.
	waitTimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "Total number of waits that timed out",
		},
		[]string{"state"},
	)

	// triggersRejectedTotal counts threads that did not start a session.
	triggersRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triggers_rejected_total",
			Help:      "Total number of rejected thread triggers",
		},
		[]string{"reason"},
	)

	// publishDuration is a histogram of announcement publication time.
	publishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Duration of license publications in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source"}, // source: user, template
	)

	// publishesTotal counts published announcements.
	publishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Total number of published license announcements",
		},
		[]string{"source", "superseded"},
	)

	// licensesSavedTotal counts licenses created through the editor.
	licensesSavedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "licenses_saved_total",
			Help:      "Total number of licenses saved from the editor",
		},
	)

	// notificationsTotal counts backup-change notifications.
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Total number of backup permission notifications",
		},
		[]string{"status"}, // status: sent, failed
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		transitionsTotal,
		waitTimeoutsTotal,
		triggersRejectedTotal,
		publishDuration,
		publishesTotal,
		licensesSavedTotal,
		notificationsTotal,
	}
)

// RecordSessionStart records a session start.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd records a finished session.
func RecordSessionEnd(reason, status string, durationSeconds float64) {
	sessionsActive.Dec()
	sessionsTotal.WithLabelValues(reason, status).Inc()
	sessionDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordTransition records a state transition.
func RecordTransition(from, to, event string) {
	transitionsTotal.WithLabelValues(from, to, event).Inc()
}

// RecordWaitTimeout records an expired wait in state.
func RecordWaitTimeout(state string) {
	waitTimeoutsTotal.WithLabelValues(state).Inc()
}

// RecordTriggerRejected records a rejected trigger.
func RecordTriggerRejected(reason string) {
	triggersRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordPublish records a publication.
func RecordPublish(userOwned, superseded bool, durationSeconds float64) {
	source := "template"
	if userOwned {
		source = "user"
	}
	publishDuration.WithLabelValues(source).Observe(durationSeconds)
	publishesTotal.WithLabelValues(source, boolLabel(superseded)).Inc()
}

// RecordLicenseSaved records a license saved from the editor.
func RecordLicenseSaved() {
	licensesSavedTotal.Inc()
}

// RecordNotification records a notification attempt.
func RecordNotification(status string) {
	notificationsTotal.WithLabelValues(status).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
