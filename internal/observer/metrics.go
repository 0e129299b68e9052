package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for webhook ingress metrics
	webhookLabels = []string{"source", "event_type"}
	// Labels for pipeline stage metrics
	pipelineStageLabels = []string{"stage"}
	// Labels for tracking specific processing outcomes
	pipelineActionLabels = []string{"stage", "action", "error_type"}

	// Webhook ingress counters
	WebhooksReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_webhooks_received_total",
			Help: "Total number of webhook deliveries received, labeled by source and event type.",
		},
		webhookLabels,
	)
	WebhooksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_webhooks_processed_total",
			Help: "Total number of webhook deliveries that completed the pipeline.",
		},
		webhookLabels,
	)
	WebhooksFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_webhooks_failed_total",
			Help: "Total number of webhook deliveries that failed processing.",
		},
		webhookLabels,
	)

	// Histogram for pipeline stage durations
	PipelineStageDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_intake_pipeline_stage_duration_seconds",
			Help:    "Histogram of per-stage pipeline durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		pipelineStageLabels,
	)

	// Counter for specific pipeline outcomes
	PipelineActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_pipeline_actions_total",
			Help: "Total count of pipeline stage outcomes, labeled by error type.",
		},
		pipelineActionLabels,
	)
)

// Extraction and distribution metrics
var (
	extractionResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_extraction_results_total",
			Help: "Total number of transcript extraction attempts, labeled by outcome.",
		},
		[]string{"outcome"}, // extracted, empty, model_error, bad_json
	)
	leadsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lead_intake_leads_created_total",
		Help: "Total number of leads persisted from processed conversations.",
	})
	matchesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lead_intake_matches_created_total",
		Help: "Total number of lead-to-firm matches created by the allocator.",
	})
	claimAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_claim_attempts_total",
			Help: "Total number of lead claim attempts, labeled by outcome.",
		},
		[]string{"outcome"}, // won, already_claimed, quota_exceeded, not_found, error
	)
	leadsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lead_intake_leads_expired_total",
		Help: "Total number of unclaimed leads expired by the sweeper.",
	})
	matchesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lead_intake_matches_expired_total",
		Help: "Total number of pending matches expired past their TTL.",
	})
)

// Notifier worker pool metrics
var (
	notifierStatusLabels = []string{"channel", "status"}

	notificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_notifications_sent_total",
			Help: "Total number of notifications dispatched, labeled by channel and final status.",
		},
		notifierStatusLabels,
	)
	notifierTasksSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lead_intake_notifier_tasks_submitted_total",
		Help: "Total number of notification tasks submitted to the worker pool.",
	})
	notifierProcessingDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lead_intake_notifier_processing_duration_seconds",
		Help:    "Histogram of processing durations for notification tasks.",
		Buckets: prometheus.DefBuckets,
	})
	notifierQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lead_intake_notifier_queue_length",
		Help: "Approximate number of tasks waiting in the notifier worker pool queue.",
	})
	notifierWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lead_intake_notifier_workers_active",
		Help: "Current number of active worker goroutines in the notifier pool.",
	})
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lead_intake_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// Rate limiter and payment webhook metrics
var (
	rateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_rate_limit_decisions_total",
			Help: "Total number of rate limiter decisions, labeled by policy and outcome.",
		},
		[]string{"policy", "outcome"}, // allowed, limited, store_error
	)
	paymentEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_payment_events_total",
			Help: "Total number of payment webhook events, labeled by event type and outcome.",
		},
		[]string{"event_type", "outcome"}, // applied, duplicate, bad_signature, unknown_customer, error
	)
)

// Domain event publishing metrics
var (
	publishLabels = []string{"event", "status"}

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_events_published_total",
			Help: "Total number of domain events published to JetStream.",
		},
		publishLabels,
	)
)

// In-process cache metrics
var (
	cacheChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_intake_cache_checks_total",
			Help: "Total number of in-process cache checks, labeled by cache and result.",
		},
		[]string{"cache", "result"}, // possible_hit, miss, false_positive
	)
)

// Global metrics instance
var Metrics *metricsStore

// metricsStore holds references to all Prometheus metrics.
// promauto registers everything at init; the struct exists so helpers
// can cheaply check whether metrics were initialized.
type metricsStore struct{}

// InitMetrics initializes and registers the Prometheus metrics if enabled.
// Call this function during application startup.
func InitMetrics(enabled bool) {
	if !enabled {
		metricsEnabled = false
		return
	}
	metricsEnabled = true
	Metrics = &metricsStore{}
}

// IncWebhooksReceived increments the webhooks received counter.
func IncWebhooksReceived(source, eventType string) {
	if !metricsEnabled {
		return
	}
	WebhooksReceivedTotal.WithLabelValues(source, sanitizeLabel(eventType)).Inc()
}

// IncWebhooksProcessed increments the webhooks processed counter.
func IncWebhooksProcessed(source, eventType string) {
	if !metricsEnabled {
		return
	}
	WebhooksProcessedTotal.WithLabelValues(source, sanitizeLabel(eventType)).Inc()
}

// IncWebhooksFailed increments the webhooks failed counter.
func IncWebhooksFailed(source, eventType string) {
	if !metricsEnabled {
		return
	}
	WebhooksFailedTotal.WithLabelValues(source, sanitizeLabel(eventType)).Inc()
}

// sanitizeLabel ensures a label value is non-empty.
func sanitizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

// ObservePipelineStageDuration records the time spent in one pipeline stage.
func ObservePipelineStageDuration(stage string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	PipelineStageDurationSeconds.WithLabelValues(stage).Observe(duration.Seconds())
}

// IncPipelineAction increments the counter for a specific pipeline outcome.
func IncPipelineAction(stage, action, errorType string) {
	if !metricsEnabled {
		return
	}
	PipelineActionsTotal.WithLabelValues(stage, action, SanitizeErrorType(errorType)).Inc()
}

// IncExtractionResult increments the extraction outcome counter.
func IncExtractionResult(outcome string) {
	if !metricsEnabled {
		return
	}
	extractionResultsTotal.WithLabelValues(outcome).Inc()
}

// IncLeadsCreated increments the leads created counter.
func IncLeadsCreated() {
	if !metricsEnabled {
		return
	}
	leadsCreatedTotal.Inc()
}

// AddMatchesCreated adds to the matches created counter.
func AddMatchesCreated(count int) {
	if !metricsEnabled {
		return
	}
	matchesCreatedTotal.Add(float64(count))
}

// IncClaimAttempt increments the claim attempt counter for one outcome.
func IncClaimAttempt(outcome string) {
	if !metricsEnabled {
		return
	}
	claimAttemptsTotal.WithLabelValues(outcome).Inc()
}

// AddLeadsExpired adds to the expired lead counter.
func AddLeadsExpired(count int) {
	if !metricsEnabled {
		return
	}
	leadsExpiredTotal.Add(float64(count))
}

// AddMatchesExpired adds to the expired match counter.
func AddMatchesExpired(count int) {
	if !metricsEnabled {
		return
	}
	matchesExpiredTotal.Add(float64(count))
}

// --- Notifier Metric Helpers ---

// IncNotificationsSent increments the notifications sent counter.
func IncNotificationsSent(channel, status string) {
	if Metrics != nil {
		notificationsSentTotal.WithLabelValues(channel, status).Inc()
	}
}

// IncNotifierTasksSubmitted increments the counter for tasks submitted to the pool.
func IncNotifierTasksSubmitted() {
	if Metrics != nil {
		notifierTasksSubmittedTotal.Inc()
	}
}

// ObserveNotifierProcessingDuration records the processing time for a notification task.
func ObserveNotifierProcessingDuration(duration time.Duration) {
	if Metrics != nil {
		notifierProcessingDurationSeconds.Observe(duration.Seconds())
	}
}

// SetNotifierQueueLength sets the current notifier queue length.
func SetNotifierQueueLength(length int) {
	if Metrics != nil {
		notifierQueueLength.Set(float64(length))
	}
}

// SetNotifierWorkersActive sets the current number of active notifier workers.
func SetNotifierWorkersActive(count int) {
	if Metrics != nil {
		notifierWorkersActive.Set(float64(count))
	}
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(duration.Seconds())
}

// IncRateLimitDecision increments the rate limiter decision counter.
func IncRateLimitDecision(policy, outcome string) {
	if !metricsEnabled {
		return
	}
	rateLimitDecisionsTotal.WithLabelValues(policy, outcome).Inc()
}

// IncPaymentEvent increments the payment webhook event counter.
func IncPaymentEvent(eventType, outcome string) {
	if !metricsEnabled {
		return
	}
	paymentEventsTotal.WithLabelValues(sanitizeLabel(eventType), outcome).Inc()
}

// IncEventPublished increments the domain event publish counter.
func IncEventPublished(event, status string) {
	if Metrics != nil {
		eventsPublishedTotal.WithLabelValues(event, status).Inc()
	}
}

// IncCacheCheck increments the in-process cache check counter.
func IncCacheCheck(cache, result string) {
	if !metricsEnabled {
		return
	}
	cacheChecksTotal.WithLabelValues(cache, result).Inc()
}

// SanitizeErrorType maps specific errors or provides a default category.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	// If no error (e.g., for success actions), return "none"
	if errStr == "" || errStr == "none" {
		return "none"
	}

	switch {
	case strings.Contains(errStr, "database"), strings.Contains(errStr, "SQL"), strings.Contains(errStr, "duplicate key"), strings.Contains(errStr, "constraint"), strings.Contains(errStr, "connection"):
		return "database"
	case strings.Contains(errStr, "validation failed"), strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid"), strings.Contains(errStr, "missing field"):
		return "validation"
	case strings.Contains(errStr, "not found"), strings.Contains(errStr, "no rows"):
		return "not_found"
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "too many requests"):
		return "rate_limited"
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return "timeout"
	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "json"):
		return "unmarshal"
	case strings.Contains(errStr, "transcript"):
		return "transcript_not_ready"
	case strings.Contains(errStr, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}
