// Package metrics exposes Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Investigation metrics
	InvestigationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devdebug_investigations_total",
			Help: "Total number of investigations started",
		},
		[]string{"intent", "status"},
	)

	InvestigationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devdebug_investigation_duration_seconds",
			Help:    "Investigation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"intent"},
	)

	InvestigationIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devdebug_investigation_iterations",
			Help:    "Rounds used per investigation",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	InvestigationConfidence = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devdebug_investigation_confidence",
			Help:    "Final confidence per investigation",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	// Command execution metrics
	CommandsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devdebug_commands_executed_total",
			Help: "Total number of kubectl commands executed",
		},
		[]string{"outcome"}, // ok, failed, timeout, spawn_error
	)

	CommandDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "devdebug_command_duration_seconds",
			Help:    "Command execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	CommandsBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devdebug_commands_blocked_total",
			Help: "Total number of commands blocked by the safety gate",
		},
		[]string{"risk_level"},
	)

	// Inference backend metrics
	ModelRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devdebug_model_requests_total",
			Help: "Total number of inference backend requests",
		},
		[]string{"purpose", "status"}, // purpose: discovery, analysis, safety, report
	)

	ModelFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devdebug_model_fallbacks_total",
			Help: "Times the deterministic fallback replaced a model answer",
		},
		[]string{"purpose"},
	)

	// Extraction metrics
	PlaceholdersRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "devdebug_placeholders_rejected_total",
			Help: "Commands dropped for carrying unresolved placeholder tokens",
		},
	)
)

// ObserveCommand records the executed-command counter and duration
// histogram from a single result outcome.
func ObserveCommand(outcome string, seconds float64) {
	CommandsExecuted.WithLabelValues(outcome).Inc()
	CommandDuration.Observe(seconds)
}
