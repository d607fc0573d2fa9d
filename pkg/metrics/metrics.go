// Package metrics 定义离线任务与在线服务的 Prometheus 指标。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration 记录离线各阶段耗时（split / index / cooccur / candidates / embed / grid / generate）。
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hybridrec_stage_duration_seconds",
			Help:    "Duration of offline pipeline stages",
			Buckets: []float64{.01, .1, .5, 1, 5, 15, 60, 300, 900},
		},
		[]string{"stage"},
	)

	// CandidateSetSize 记录每个用户候选集大小。
	CandidateSetSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hybridrec_candidate_set_size",
			Help:    "Number of candidates generated per user",
			Buckets: []float64{0, 50, 100, 200, 400, 600, 800, 1000, 1200, 2000},
		},
	)

	// CandidateCoverage 记录候选集对 ground truth 的覆盖率。
	CandidateCoverage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hybridrec_candidate_coverage_ratio",
			Help: "Share of ground-truth items (or users) covered by candidates",
		},
		[]string{"split", "level"}, // split: val/test, level: item/user
	)

	// NeighborCoverage 记录至少有一个共现邻居的物品占比。
	NeighborCoverage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hybridrec_neighbor_coverage_ratio",
			Help: "Share of items with at least one co-occurrence neighbor",
		},
	)

	// EvalMetric 记录评估指标（HR/Recall/NDCG@K）。
	EvalMetric = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hybridrec_eval_metric",
			Help: "Offline evaluation metrics",
		},
		[]string{"split", "metric", "k"},
	)

	// GridObjective 记录网格搜索选出的目标值。
	GridObjective = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hybridrec_grid_best_objective",
			Help: "Objective of the weights chosen by grid search",
		},
	)

	// ServeRequestsTotal 在线请求数，type: personalized / fallback。
	ServeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridrec_serve_requests_total",
			Help: "Total recommendation requests by response type",
		},
		[]string{"type"},
	)

	// ServeDuration 在线请求耗时。
	ServeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hybridrec_serve_duration_seconds",
			Help:    "Latency of recommendation requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CircuitBreakerState 熔断器状态：0 closed / 1 half-open / 2 open。
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hybridrec_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// StoreOperationsTotal 存储操作计数。
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hybridrec_store_operations_total",
			Help: "Store operations by backend, operation and outcome",
		},
		[]string{"backend", "operation", "outcome"},
	)
)

// ObserveStage 返回一个结束函数，用于 defer 记录阶段耗时。
//
//	defer metrics.ObserveStage("split")()
func ObserveStage(stage string) func() {
	start := time.Now()
	return func() {
		StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// RecordStoreOp 记录一次存储操作结果。
func RecordStoreOp(backend, op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	StoreOperationsTotal.WithLabelValues(backend, op, outcome).Inc()
}
