package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

// AnalysisMetrics records track lifecycle and collaborator retry activity. It is
// registered on the registry of the process that runs the reconciler.
type AnalysisMetrics struct {
	tracksStarted      *prometheus.CounterVec
	tracksFinished     *prometheus.CounterVec
	trackDuration      *prometheus.HistogramVec
	categoriesTotal    prometheus.Counter
	findingsTotal      prometheus.Counter
	duplicatesDropped  prometheus.Counter
	elaborationsTotal  *prometheus.CounterVec
	snapshotFailures   prometheus.Counter
	retriesTotal       *prometheus.CounterVec
	retryWaitSeconds   *prometheus.HistogramVec
	retryAttemptNumber *prometheus.HistogramVec
}

func newAnalysisMetrics(service string, registry *prometheus.Registry) *AnalysisMetrics {
	constLabels := prometheus.Labels{"service": service}

	m := &AnalysisMetrics{
		tracksStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "cra",
				Subsystem:   "track",
				Name:        "started_total",
				Help:        "Analysis tracks started by role.",
				ConstLabels: constLabels,
			},
			[]string{"role"},
		),
		tracksFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "cra",
				Subsystem:   "track",
				Name:        "finished_total",
				Help:        "Analysis track runs finished by phase.",
				ConstLabels: constLabels,
			},
			[]string{"phase"},
		),
		trackDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "cra",
				Subsystem:   "track",
				Name:        "run_duration_seconds",
				Help:        "Duration of a single track run by final phase.",
				Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
				ConstLabels: constLabels,
			},
			[]string{"phase"},
		),
		categoriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cra",
			Subsystem:   "sequencer",
			Name:        "categories_total",
			Help:        "Risk categories classified.",
			ConstLabels: constLabels,
		}),
		findingsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cra",
			Subsystem:   "sequencer",
			Name:        "findings_total",
			Help:        "Findings accepted after deduplication.",
			ConstLabels: constLabels,
		}),
		duplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cra",
			Subsystem:   "sequencer",
			Name:        "duplicates_dropped_total",
			Help:        "Findings dropped as near-duplicates of known risks.",
			ConstLabels: constLabels,
		}),
		elaborationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "cra",
				Subsystem:   "stepper",
				Name:        "elaborations_total",
				Help:        "Deep analysis results by outcome.",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		snapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cra",
			Subsystem:   "track",
			Name:        "snapshot_failures_total",
			Help:        "Snapshot writes that failed.",
			ConstLabels: constLabels,
		}),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "cra",
				Subsystem:   "collaborator",
				Name:        "retries_total",
				Help:        "Retries of transient collaborator failures by operation.",
				ConstLabels: constLabels,
			},
			[]string{"operation"},
		),
		retryWaitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "cra",
				Subsystem:   "collaborator",
				Name:        "retry_wait_seconds",
				Help:        "Backoff waits before retries.",
				Buckets:     []float64{0.5, 1, 2, 4, 8, 16, 30},
				ConstLabels: constLabels,
			},
			[]string{"operation"},
		),
		retryAttemptNumber: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace:   "cra",
				Subsystem:   "collaborator",
				Name:        "retry_attempt",
				Help:        "Attempt number that triggered a retry.",
				Buckets:     []float64{1, 2, 3, 4, 5},
				ConstLabels: constLabels,
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.tracksStarted,
		m.tracksFinished,
		m.trackDuration,
		m.categoriesTotal,
		m.findingsTotal,
		m.duplicatesDropped,
		m.elaborationsTotal,
		m.snapshotFailures,
		m.retriesTotal,
		m.retryWaitSeconds,
		m.retryAttemptNumber,
	)
	return m
}

func (m *AnalysisMetrics) TrackStarted(role domain.Role) {
	label := string(role)
	if label == "" {
		label = "unknown"
	}
	m.tracksStarted.WithLabelValues(label).Inc()
}

func (m *AnalysisMetrics) TrackFinished(phase domain.Phase, duration time.Duration) {
	m.tracksFinished.WithLabelValues(string(phase)).Inc()
	m.trackDuration.WithLabelValues(string(phase)).Observe(duration.Seconds())
}

func (m *AnalysisMetrics) CategoryCompleted(_ string, findings, dropped int) {
	m.categoriesTotal.Inc()
	if findings > 0 {
		m.findingsTotal.Add(float64(findings))
	}
	if dropped > 0 {
		m.duplicatesDropped.Add(float64(dropped))
	}
}

func (m *AnalysisMetrics) FindingElaborated(fallback bool) {
	outcome := "elaborated"
	if fallback {
		outcome = "fallback"
	}
	m.elaborationsTotal.WithLabelValues(outcome).Inc()
}

func (m *AnalysisMetrics) SnapshotFailed() {
	m.snapshotFailures.Inc()
}

func (m *AnalysisMetrics) ObserveRetry(operation string, attempt int, wait time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	m.retriesTotal.WithLabelValues(operation).Inc()
	m.retryWaitSeconds.WithLabelValues(operation).Observe(wait.Seconds())
	m.retryAttemptNumber.WithLabelValues(operation).Observe(float64(attempt))
}
