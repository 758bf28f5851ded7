package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amcassist_turns_total",
			Help: "Total number of chat turns answered, by route taken.",
		},
		[]string{"route"},
	)
	turnDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amcassist_turn_duration_seconds",
			Help:    "End-to-end latency of one chat turn.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"route"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amcassist_llm_requests_total",
			Help: "Language model calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)
	warehouseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amcassist_warehouse_queries_total",
			Help: "Warehouse fetches by outcome.",
		},
		[]string{"outcome"},
	)
	descriptorRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amcassist_descriptor_rejections_total",
			Help: "Parts of model-authored query descriptors dropped during validation.",
		},
		[]string{"reason"},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amcassist_exports_total",
			Help: "Result exports by format and outcome.",
		},
		[]string{"format", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		turnsTotal,
		turnDurationSeconds,
		llmRequestsTotal,
		warehouseQueriesTotal,
		descriptorRejectionsTotal,
		exportsTotal,
	)
}

func ObserveTurn(route string, elapsed time.Duration) {
	turnsTotal.WithLabelValues(route).Inc()
	turnDurationSeconds.WithLabelValues(route).Observe(elapsed.Seconds())
}

func ObserveLLMRequest(provider string, err error) {
	llmRequestsTotal.WithLabelValues(provider, outcome(err)).Inc()
}

func ObserveWarehouseQuery(err error) {
	warehouseQueriesTotal.WithLabelValues(outcome(err)).Inc()
}

func IncrementDescriptorRejection(reason string) {
	descriptorRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveExport(format string, err error) {
	exportsTotal.WithLabelValues(format, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
