package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics.
var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "educajus",
			Name:      "pipeline_runs_total",
			Help:      "Total pipeline runs by terminal status",
		},
		[]string{"status"},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "educajus",
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Per-stage pipeline duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	IntakeFindingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "educajus",
			Name:      "intake_findings_total",
			Help:      "Confirmed sensitive-data findings by kind and severity",
		},
		[]string{"kind", "severity"},
	)

	ScopePathTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "educajus",
			Name:      "scope_path_total",
			Help:      "Scope classification decisions by path and domain",
		},
		[]string{"source", "domain"},
	)

	RetrievalHits = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "educajus",
			Name:      "retrieval_hits",
			Help:      "Evidence entries returned per retrieval",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		},
	)

	RetrievalDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "educajus",
			Name:      "retrieval_dropped_total",
			Help:      "Raw index hits dropped for missing metadata",
		},
	)

	AuditIssuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "educajus",
			Name:      "audit_issues_total",
			Help:      "Audit issues by code and severity",
		},
		[]string{"code", "severity"},
	)

	DrafterFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "educajus",
			Name:      "drafter_fallback_total",
			Help:      "Deterministic template fallbacks by reason",
		},
		[]string{"reason"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(IntakeFindingsTotal)
	prometheus.MustRegister(ScopePathTotal)
	prometheus.MustRegister(RetrievalHits)
	prometheus.MustRegister(RetrievalDroppedTotal)
	prometheus.MustRegister(AuditIssuesTotal)
	prometheus.MustRegister(DrafterFallbackTotal)
	pipelineMetricsRegistered = true
}
