package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus collectors for the form service
type Metrics struct {
	// Submissions by outcome: accepted, invalid, airtable_error, error
	submissions *prometheus.CounterVec

	// Validation errors per form
	validationErrors *prometheus.CounterVec

	// Airtable API latency by operation and status class
	airtableDuration *prometheus.HistogramVec

	// Webhook record events by kind: created, changed, destroyed
	webhookEvents *prometheus.CounterVec

	// Token refresh attempts by result
	tokenRefreshes *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formsync_submissions_total",
				Help: "Total number of form submissions by outcome",
			},
			[]string{"result"},
		),

		validationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formsync_validation_errors_total",
				Help: "Total number of field validation errors returned to submitters",
			},
			[]string{"form_id"},
		),

		airtableDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formsync_airtable_request_duration_seconds",
				Help:    "Latency of Airtable API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "status"},
		),

		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formsync_webhook_events_total",
				Help: "Total number of Airtable record events received via webhook",
			},
			[]string{"kind"},
		),

		tokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formsync_token_refreshes_total",
				Help: "Total number of Airtable access token refreshes by result",
			},
			[]string{"result"},
		),
	}
}

// RecordSubmission counts one submission outcome
func (m *Metrics) RecordSubmission(result string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(result).Inc()
}

// RecordValidationErrors adds n field errors for a form
func (m *Metrics) RecordValidationErrors(formID string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.validationErrors.WithLabelValues(formID).Add(float64(n))
}

// ObserveAirtable records the latency of an Airtable request
func (m *Metrics) ObserveAirtable(operation string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.airtableDuration.WithLabelValues(operation, statusClass(status)).Observe(d.Seconds())
}

// RecordWebhookEvents adds n record events of kind
func (m *Metrics) RecordWebhookEvents(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.webhookEvents.WithLabelValues(kind).Add(float64(n))
}

// RecordTokenRefresh counts one token refresh attempt
func (m *Metrics) RecordTokenRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.tokenRefreshes.WithLabelValues(result).Inc()
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
