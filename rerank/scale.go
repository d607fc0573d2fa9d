package rerank

import (
	"context"
	"math"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

const (
	// DefaultScaleTopM 是参与 0-100 缩放的排名前 M 个物品
	DefaultScaleTopM = 300

	// FeatureRawScore 记录缩放前的混合分
	FeatureRawScore = "raw_score"
)

// ScaleScores 把分数线性缩放到 0-100；极差小于 Epsilon 时全部记为 50。
func ScaleScores(scores []float64) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		lo = math.Min(lo, s)
		hi = math.Max(hi, s)
	}
	if hi-lo < core.Epsilon {
		for i := range out {
			out[i] = 50
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo) * 100
	}
	return out
}

// ScaleNode 取排序结果的前 TopM 个有限分数物品，把分数缩放到 0-100。
// 非有限分数（被掩码的物品）不参与缩放，直接丢弃。输入需已按分数降序。
type ScaleNode struct {
	TopM int
}

func (n *ScaleNode) Name() string        { return "rerank.scale" }
func (n *ScaleNode) Kind() pipeline.Kind { return pipeline.KindPostProcess }

func (n *ScaleNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	m := n.TopM
	if m <= 0 {
		m = DefaultScaleTopM
	}
	kept := make([]*core.Item, 0, min(m, len(items)))
	for _, it := range items {
		if it == nil || math.IsInf(it.Score, 0) || math.IsNaN(it.Score) {
			continue
		}
		kept = append(kept, it)
		if len(kept) == m {
			break
		}
	}

	raw := make([]float64, len(kept))
	for i, it := range kept {
		raw[i] = it.Score
	}
	for i, s := range ScaleScores(raw) {
		it := kept[i]
		if it.Features == nil {
			it.Features = make(map[string]float64)
		}
		it.Features[FeatureRawScore] = raw[i]
		it.Score = s
	}
	return kept, nil
}
