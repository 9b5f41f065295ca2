package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the monitoring pipeline
type PrometheusMetrics struct {
	// Scheduler metrics
	SchedulerTicksTotal   prometheus.Counter
	TickDuration          prometheus.Histogram
	ConfigsEvaluatedTotal *prometheus.CounterVec
	ConfigsSkippedTotal   *prometheus.CounterVec
	CampaignsEvaluated    prometheus.Counter

	// Evaluation metrics
	TriggersFiredTotal *prometheus.CounterVec
	FeedErrorsTotal    prometheus.Counter
	EvaluationDuration *prometheus.HistogramVec

	// Delivery metrics
	DeliveriesTotal        *prometheus.CounterVec
	DeliveryAttemptsTotal  prometheus.Counter
	DeliveryDuration       *prometheus.HistogramVec
	DeliveryRetriesTotal   prometheus.Counter
	EndpointsDeactivated   prometheus.Counter
	PendingTriggers        prometheus.Gauge

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		SchedulerTicksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "campaignwatch_scheduler_ticks_total",
				Help: "Total number of scheduler ticks",
			},
		),

		TickDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "campaignwatch_tick_duration_seconds",
				Help:    "Duration of scheduler ticks",
				Buckets: prometheus.DefBuckets,
			},
		),

		ConfigsEvaluatedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignwatch_configs_evaluated_total",
				Help: "Total number of configuration evaluations",
			},
			[]string{"event_type", "status"},
		),

		ConfigsSkippedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignwatch_configs_skipped_total",
				Help: "Total number of configurations skipped by the scheduler",
			},
			[]string{"reason"},
		),

		CampaignsEvaluated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "campaignwatch_campaigns_evaluated_total",
				Help: "Total number of campaign evaluations",
			},
		),

		TriggersFiredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignwatch_triggers_fired_total",
				Help: "Total number of triggers written",
			},
			[]string{"event_type"},
		),

		FeedErrorsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "campaignwatch_feed_errors_total",
				Help: "Total number of metrics feed errors",
			},
		),

		EvaluationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaignwatch_evaluation_duration_seconds",
				Help:    "Duration of per-configuration evaluations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),

		DeliveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignwatch_deliveries_total",
				Help: "Total number of completed webhook deliveries",
			},
			[]string{"event_type", "outcome"},
		),

		DeliveryAttemptsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "campaignwatch_delivery_attempts_total",
				Help: "Total number of outbound delivery attempts",
			},
		),

		DeliveryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaignwatch_delivery_duration_seconds",
				Help:    "Duration of webhook deliveries including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		DeliveryRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "campaignwatch_delivery_retries_total",
				Help: "Total number of delivery retry attempts",
			},
		),

		EndpointsDeactivated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "campaignwatch_endpoints_deactivated_total",
				Help: "Total number of endpoints auto-deactivated after repeated failures",
			},
		),

		PendingTriggers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaignwatch_pending_triggers",
				Help: "Number of triggers awaiting delivery",
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "campaignwatch_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "campaignwatch_http_request_duration_seconds",
				Help:    "Duration of HTTP API requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaignwatch_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "campaignwatch_component_health",
				Help: "Health status of application components (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaignwatch_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "campaignwatch_goroutines",
				Help: "Current number of goroutines",
			},
		),
	}
}

// RecordTick records a completed scheduler tick
func (m *PrometheusMetrics) RecordTick(duration time.Duration) {
	m.SchedulerTicksTotal.Inc()
	m.TickDuration.Observe(duration.Seconds())
}

// RecordConfigEvaluated records a configuration evaluation outcome
func (m *PrometheusMetrics) RecordConfigEvaluated(eventType, status string, duration time.Duration) {
	m.ConfigsEvaluatedTotal.WithLabelValues(eventType, status).Inc()
	m.EvaluationDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordConfigSkipped records a configuration skipped by the scheduler
func (m *PrometheusMetrics) RecordConfigSkipped(reason string) {
	m.ConfigsSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordTriggerFired records a trigger written by the evaluator
func (m *PrometheusMetrics) RecordTriggerFired(eventType string) {
	m.TriggersFiredTotal.WithLabelValues(eventType).Inc()
}

// RecordDelivery records a completed delivery
func (m *PrometheusMetrics) RecordDelivery(eventType, outcome string, duration time.Duration) {
	m.DeliveriesTotal.WithLabelValues(eventType, outcome).Inc()
	m.DeliveryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordHTTPRequest records an HTTP request
func (m *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateApplicationUptime updates the application uptime metric
func (m *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	m.ApplicationUptime.Set(time.Since(startTime).Seconds())
}

// UpdateComponentHealth updates the health status of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage metric
func (m *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	m.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count metric
func (m *PrometheusMetrics) UpdateGoroutineCount(count int) {
	m.GoroutineCount.Set(float64(count))
}
