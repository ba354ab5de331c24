package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "techfin_pipeline_requests_total",
			Help: "Total number of answered questions by terminal state and error kind.",
		},
		[]string{"state", "error_kind"},
	)
	pipelineDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "techfin_pipeline_duration_seconds",
			Help:    "End-to-end latency of one question, from receipt to reply.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
	)
	llmCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "techfin_llm_calls_total",
			Help: "Text-generation calls by purpose (sql, narration) and status.",
		},
		[]string{"purpose", "status"},
	)
	queryFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "techfin_query_failures_total",
			Help: "Store query failures by class (unavailable, statement).",
		},
		[]string{"class"},
	)
	queryRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "techfin_query_rows",
			Help:    "Rows returned per executed statement.",
			Buckets: []float64{0, 1, 5, 20, 60, 130, 260},
		},
	)
	historyPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "techfin_history_pruned_total",
			Help: "Total number of ask history rows deleted by retention.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineRequestsTotal,
		pipelineDurationSeconds,
		llmCallsTotal,
		queryFailuresTotal,
		queryRows,
		historyPrunedTotal,
	)
}

func ObservePipeline(state, errorKind string, elapsed time.Duration) {
	pipelineRequestsTotal.WithLabelValues(state, errorKind).Inc()
	pipelineDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveLLMCall(purpose string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	llmCallsTotal.WithLabelValues(purpose, status).Inc()
}

func ObserveQueryFailure(class string) {
	queryFailuresTotal.WithLabelValues(class).Inc()
}

func ObserveQueryRows(rows int) {
	if rows < 0 {
		rows = 0
	}
	queryRows.Observe(float64(rows))
}

func AddHistoryPruned(rows int64) {
	if rows > 0 {
		historyPrunedTotal.Add(float64(rows))
	}
}
