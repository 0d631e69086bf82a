// Package metrics provides Prometheus metrics for the avatarcast service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pollBuckets cover 1..120 poll attempts.
var pollBuckets = []float64{1, 2, 5, 10, 20, 40, 60, 90, 120} //nolint:gochecknoglobals // static bucket layout

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	registry         prometheus.Registerer

	// Generation outcomes
	generations        *prometheus.CounterVec
	stateTransitions   *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec

	// Providers
	providerSubmissions *prometheus.CounterVec
	providerPolls       *prometheus.HistogramVec
	synthesis           *prometheus.CounterVec
	synthesisLatency    *prometheus.HistogramVec

	// Avatar pool
	poolSize     *prometheus.GaugeVec
	poolMutation *prometheus.CounterVec
	avatarScore  prometheus.Histogram

	// Queue and workers
	queueSize     prometheus.Gauge
	queueRejected prometheus.Counter
	workerCount   prometheus.Gauge
	duplicates    prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps default Go collectors out of the exposition.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "avatarcast",
		subsystem:        "generator",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // collector declarations
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)

	m.generations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "generations_total",
		Help: "Finished generation jobs by outcome and failure reason",
	}, []string{"outcome", "reason"})

	m.stateTransitions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "state_transitions_total",
		Help: "Orchestrator state machine transitions by target state",
	}, []string{"state"})

	m.generationDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "generation_duration_seconds",
		Help:    "Wall-clock duration of generation jobs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"outcome"})

	m.providerSubmissions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "video_submissions_total",
		Help: "Video provider submissions by provider and result",
	}, []string{"provider", "result"})

	m.providerPolls = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "video_poll_attempts",
		Help:    "Poll attempts spent resolving a video job",
		Buckets: pollBuckets,
	}, []string{"provider", "result"})

	m.synthesis = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "speech_synthesis_total",
		Help: "Speech synthesis attempts by provider and result",
	}, []string{"provider", "result"})

	m.synthesisLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "speech_synthesis_latency_milliseconds",
		Help:    "Speech synthesis latency in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"provider"})

	m.poolSize = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "avatar_pool_size",
		Help: "Avatars per pool partition",
	}, []string{"partition"})

	m.poolMutation = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "avatar_pool_operations_total",
		Help: "Avatar pool operations by kind",
	}, []string{"operation"})

	m.avatarScore = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "selected_avatar_score",
		Help:    "Total score of the avatar selected for a job",
		Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "queue_size",
		Help: "Generation requests waiting for a worker",
	})

	m.queueRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "queue_rejected_total",
		Help: "Generation requests rejected by backpressure",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "worker_count",
		Help: "Generation workers running",
	})

	m.duplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "duplicate_requests_total",
		Help: "Generation requests dropped as duplicates of a request_id",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "http_requests_total",
		Help: "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "errors_total",
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})
}

// RecordGeneration counts a finished job. reason is empty on success.
func RecordGeneration(outcome, reason string, seconds float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.generations.WithLabelValues(outcome, reason).Inc()
	globalManager.generationDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordStateTransition counts an orchestrator transition into state.
func RecordStateTransition(state string) {
	if !globalManager.enabled {
		return
	}
	globalManager.stateTransitions.WithLabelValues(state).Inc()
}

// RecordVideoSubmission counts a provider submission ("accepted", "rejected", "skipped").
func RecordVideoSubmission(provider, result string) {
	if !globalManager.enabled {
		return
	}
	globalManager.providerSubmissions.WithLabelValues(provider, result).Inc()
}

// RecordPollAttempts observes how many polls a resolve spent.
func RecordPollAttempts(provider, result string, attempts int) {
	if !globalManager.enabled {
		return
	}
	globalManager.providerPolls.WithLabelValues(provider, result).Observe(float64(attempts))
}

// RecordSynthesis counts a synthesis attempt and its latency.
func RecordSynthesis(provider, result string, latencyMs float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.synthesis.WithLabelValues(provider, result).Inc()
	globalManager.synthesisLatency.WithLabelValues(provider).Observe(latencyMs)
}

// UpdatePoolSize sets the gauges of every pool partition.
func UpdatePoolSize(available, reserved, used int) {
	if !globalManager.enabled {
		return
	}
	globalManager.poolSize.WithLabelValues("available").Set(float64(available))
	globalManager.poolSize.WithLabelValues("reserved").Set(float64(reserved))
	globalManager.poolSize.WithLabelValues("used").Set(float64(used))
}

// RecordPoolOperation counts claim/release/mark_used/recycle/add operations.
func RecordPoolOperation(operation string) {
	if !globalManager.enabled {
		return
	}
	globalManager.poolMutation.WithLabelValues(operation).Inc()
}

// RecordSelectedScore observes the score of a selected avatar.
func RecordSelectedScore(score float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.avatarScore.Observe(score)
}

// UpdateQueueSize sets the queue backlog gauge.
func UpdateQueueSize(size int) {
	if !globalManager.enabled {
		return
	}
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueRejected counts a request refused for backpressure.
func RecordQueueRejected() {
	if !globalManager.enabled {
		return
	}
	globalManager.queueRejected.Inc()
}

// UpdateWorkerCount sets the worker gauge.
func UpdateWorkerCount(count int) {
	if !globalManager.enabled {
		return
	}
	globalManager.workerCount.Set(float64(count))
}

// RecordDuplicate counts a duplicate request.
func RecordDuplicate() {
	if !globalManager.enabled {
		return
	}
	globalManager.duplicates.Inc()
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration observes HTTP latency in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent counts an error for a component.
func RecordErrorByComponent(component, errorType string) {
	if !globalManager.enabled {
		return
	}
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// SetEnabled toggles recording for the global manager.
func SetEnabled(enabled bool) {
	globalManager.enabled = enabled
}

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
