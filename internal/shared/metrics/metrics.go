package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Usage metrics
	UsageAdmissionsTotal *prometheus.CounterVec
	UsageUnitsRecorded   prometheus.Counter

	// Subscription metrics
	SubscriptionTransitionsTotal *prometheus.CounterVec

	// Webhook metrics
	WebhookEventsTotal *prometheus.CounterVec

	// Gateway metrics
	GatewayRequestsTotal   *prometheus.CounterVec
	GatewayRequestDuration *prometheus.HistogramVec

	// Reset metrics
	DailyResetRunsTotal *prometheus.CounterVec
	DailyResetAccounts  prometheus.Counter
}

// New creates a Metrics instance registered on reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "assistly"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Usage metrics
		UsageAdmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "usage",
				Name:      "admissions_total",
				Help:      "Usage admission decisions by tier and result",
			},
			[]string{"tier", "result"},
		),
		UsageUnitsRecorded: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "usage",
				Name:      "units_recorded_total",
				Help:      "Usage units recorded against free accounts",
			},
		),

		// Subscription metrics
		SubscriptionTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "subscription",
				Name:      "transitions_total",
				Help:      "Tier transitions by kind and outcome",
			},
			[]string{"transition", "outcome"},
		),

		// Webhook metrics
		WebhookEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhook",
				Name:      "events_total",
				Help:      "Billing webhook deliveries by provider, event kind and outcome",
			},
			[]string{"provider", "kind", "outcome"},
		),

		// Gateway metrics
		GatewayRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Billing gateway calls by provider, operation and outcome",
			},
			[]string{"provider", "operation", "outcome"},
		),
		GatewayRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Billing gateway call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "operation"},
		),

		// Reset metrics
		DailyResetRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reset",
				Name:      "runs_total",
				Help:      "Daily free-tier counter reset runs by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		DailyResetAccounts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reset",
				Name:      "accounts_total",
				Help:      "Accounts whose counters were reset",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAdmission records an admission decision.
func (m *Metrics) RecordAdmission(tier string, admitted bool) {
	if m == nil {
		return
	}
	result := "admitted"
	if !admitted {
		result = "rejected"
	}
	m.UsageAdmissionsTotal.WithLabelValues(tier, result).Inc()
}

// RecordUsageUnit records one consumed usage unit.
func (m *Metrics) RecordUsageUnit() {
	if m == nil {
		return
	}
	m.UsageUnitsRecorded.Inc()
}

// RecordTransition records an upgrade or downgrade attempt.
func (m *Metrics) RecordTransition(transition, outcome string) {
	if m == nil {
		return
	}
	m.SubscriptionTransitionsTotal.WithLabelValues(transition, outcome).Inc()
}

// RecordWebhookEvent records a processed webhook delivery.
func (m *Metrics) RecordWebhookEvent(provider, kind, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(provider, kind, outcome).Inc()
}

// RecordGatewayRequest records a billing gateway call.
func (m *Metrics) RecordGatewayRequest(provider, operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	m.GatewayRequestDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordDailyReset records a reset run.
func (m *Metrics) RecordDailyReset(trigger, outcome string, accounts int64) {
	if m == nil {
		return
	}
	m.DailyResetRunsTotal.WithLabelValues(trigger, outcome).Inc()
	if accounts > 0 {
		m.DailyResetAccounts.Add(float64(accounts))
	}
}
