package eval

import (
	"math"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/pkg/metrics"
)

// ObjectiveNDCGWeight 是组合目标中 NDCG 的系数：HR + Recall + 0.3·NDCG。
const ObjectiveNDCGWeight = 0.3

// DefaultKs 是最终确认阶段评估的截断位置。
var DefaultKs = []int{10, 50}

func truncate(top []int64, k int) []int64 {
	if k >= 0 && len(top) > k {
		return top[:k]
	}
	return top
}

// HitRate 前 k 个中命中任一真值记 1，否则记 0；真值为空时为 0。
func HitRate(top []int64, gt mapset.Set[int64], k int) float64 {
	if gt == nil || gt.Cardinality() == 0 {
		return 0
	}
	for _, id := range truncate(top, k) {
		if gt.Contains(id) {
			return 1
		}
	}
	return 0
}

// Recall 是 |topK ∩ G| / |G|；真值为空时为 0。
func Recall(top []int64, gt mapset.Set[int64], k int) float64 {
	if gt == nil || gt.Cardinality() == 0 {
		return 0
	}
	hit := 0
	for _, id := range truncate(top, k) {
		if gt.Contains(id) {
			hit++
		}
	}
	return float64(hit) / float64(gt.Cardinality())
}

// NDCG 是 DCG/IDCG，命中项贡献 1/log2(rank+1)；
// IDCG 按 min(|G|, k) 个命中的理想排序计算，为 0 时结果为 0。
func NDCG(top []int64, gt mapset.Set[int64], k int) float64 {
	if gt == nil {
		return 0
	}
	dcg := 0.0
	for i, id := range truncate(top, k) {
		if gt.Contains(id) {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}
	idcg := 0.0
	for i := 1; i <= min(gt.Cardinality(), k); i++ {
		idcg += 1 / math.Log2(float64(i+1))
	}
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

// Metrics 是一组用户上的平均指标。
type Metrics struct {
	K       int     `json:"k"`
	HitRate float64 `json:"hr"`
	Recall  float64 `json:"recall"`
	NDCG    float64 `json:"ndcg"`
	Users   int     `json:"n_users_eval"`
}

// Objective 是网格搜索的组合目标：HR + Recall + 0.3·NDCG。
func (m Metrics) Objective() float64 {
	return m.HitRate + m.Recall + ObjectiveNDCGWeight*m.NDCG
}

// Record 写入 prometheus gauge，split 为 val / test。
func (m Metrics) Record(split string) {
	k := strconv.Itoa(m.K)
	metrics.EvalMetric.WithLabelValues(split, "hr", k).Set(m.HitRate)
	metrics.EvalMetric.WithLabelValues(split, "recall", k).Set(m.Recall)
	metrics.EvalMetric.WithLabelValues(split, "ndcg", k).Set(m.NDCG)
}

// MarshalZerologObject 让 Metrics 可以直接作为结构化字段输出。
func (m Metrics) MarshalZerologObject(e *zerolog.Event) {
	e.Int("k", m.K).
		Float64("hr", m.HitRate).
		Float64("recall", m.Recall).
		Float64("ndcg", m.NDCG).
		Int("users", m.Users)
}
