package rank

import (
	"context"
	"math"
	"sort"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
)

// TopK 返回分数最高的 k 个候选下标（分数降序，同分按 ID 升序）。
// 只考虑有限分数；有限分数不足 k 个时返回全部有限分数的下标。
// 先用快速选择划分出前 k 个，再只对这 k 个排序。
func TopK(ids []int64, scores []float64, k int) []int {
	if k <= 0 {
		return nil
	}
	idx := make([]int, 0, len(scores))
	for i, s := range scores {
		if !math.IsInf(s, 0) && !math.IsNaN(s) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil
	}
	cmp := func(a, b int) bool { return less(scores[a], ids[a], scores[b], ids[b]) }
	if len(idx) > k {
		quickselect(idx, k, cmp)
		idx = idx[:k]
	}
	sort.Slice(idx, func(i, j int) bool { return cmp(idx[i], idx[j]) })
	return idx
}

// quickselect 原地重排 idx，使前 k 个元素是按 before 排序的前 k 名（前 k 个之间无序）。
func quickselect(idx []int, k int, before func(a, b int) bool) {
	lo, hi := 0, len(idx)-1
	for lo < hi {
		p := partition(idx, lo, hi, before)
		switch {
		case p == k-1:
			return
		case p < k-1:
			lo = p + 1
		default:
			hi = p - 1
		}
	}
}

// partition 以中位位置元素为枢轴做 Lomuto 划分，返回枢轴最终位置。
func partition(idx []int, lo, hi int, before func(a, b int) bool) int {
	mid := lo + (hi-lo)/2
	idx[mid], idx[hi] = idx[hi], idx[mid]
	pivot := idx[hi]
	store := lo
	for i := lo; i < hi; i++ {
		if before(idx[i], pivot) {
			idx[i], idx[store] = idx[store], idx[i]
			store++
		}
	}
	idx[store], idx[hi] = idx[hi], idx[store]
	return store
}

// TopKNode 保留分数最高的 K 个有限分数物品（掩码物品被丢弃），输出有序。
type TopKNode struct {
	K int
}

func (n *TopKNode) Name() string        { return "rank.topk" }
func (n *TopKNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *TopKNode) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	live := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it != nil {
			live = append(live, it)
		}
	}
	ids := make([]int64, len(live))
	scores := make([]float64, len(live))
	for i, it := range live {
		ids[i] = it.ID
		scores[i] = it.Score
	}
	picked := TopK(ids, scores, n.K)
	out := make([]*core.Item, 0, len(picked))
	for _, i := range picked {
		out = append(out, live[i])
	}
	return out, nil
}
