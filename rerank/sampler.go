package rerank

import (
	"math/rand"

	"github.com/rushteam/hybridrec/pkg/sampling"
)

// Sampler 是在线多样性采样器：在持久化排名上按名次衰减权重做无放回抽样，
// 让同一用户的多次请求既有变化又偏向高名次。
//
// 排名被切成头部（前 HeadSize 个，权重 rank^-HeadAlpha）与尾部（随后 TailSize 个，
// 权重 rank^-TailAlpha，rank 为层内名次），分别抽取 HeadDraw 与 TailDraw 个。
// 不足 k 时先在剩余排名上按全局名次 rank^-TailAlpha 补抽，再从目录中均匀补齐。
// Sampler 无状态，可并发使用；随机源由调用方提供。
type Sampler struct {
	HeadSize  int
	HeadAlpha float64
	HeadDraw  int
	TailSize  int
	TailAlpha float64
	TailDraw  int
}

func DefaultSampler() Sampler {
	return Sampler{
		HeadSize:  15,
		HeadAlpha: 0.8,
		HeadDraw:  6,
		TailSize:  35,
		TailAlpha: 0.6,
		TailDraw:  4,
	}
}

// Sample 返回至多 k 个不重复的物品；目录足够大时恰好 k 个。
// ranked 为按名次排列的推荐，catalog 为兜底补齐的全量物品。
func (s Sampler) Sample(r *rand.Rand, ranked, catalog []int64, k int) []int64 {
	if k <= 0 {
		return nil
	}
	out := make([]int64, 0, k)
	chosen := make(map[int64]struct{}, k)
	take := func(id int64) {
		if len(out) >= k {
			return
		}
		if _, ok := chosen[id]; ok {
			return
		}
		chosen[id] = struct{}{}
		out = append(out, id)
	}

	ranked = dedupe(ranked)
	headEnd := min(s.HeadSize, len(ranked))
	tailEnd := min(headEnd+s.TailSize, len(ranked))
	head, tail := ranked[:headEnd], ranked[headEnd:tailEnd]

	headDraw := min(s.HeadDraw, k)
	for _, i := range sampling.WeightedWithoutReplacement(r, sampling.RankWeights(len(head), s.HeadAlpha), headDraw) {
		take(head[i])
	}
	tailDraw := min(s.TailDraw, k-len(out))
	for _, i := range sampling.WeightedWithoutReplacement(r, sampling.RankWeights(len(tail), s.TailAlpha), tailDraw) {
		take(tail[i])
	}

	if len(out) < k {
		all := sampling.RankWeights(len(ranked), s.TailAlpha)
		var pool []int64
		var weights []float64
		for rank, id := range ranked {
			if _, ok := chosen[id]; ok {
				continue
			}
			pool = append(pool, id)
			weights = append(weights, all[rank])
		}
		for _, i := range sampling.WeightedWithoutReplacement(r, weights, k-len(out)) {
			take(pool[i])
		}
	}

	if len(out) < k {
		rest := make([]int64, 0, len(catalog))
		for _, id := range catalog {
			if _, ok := chosen[id]; !ok {
				rest = append(rest, id)
			}
		}
		for _, id := range sampling.Choice(r, dedupe(rest), k-len(out)) {
			take(id)
		}
	}
	return out
}

// Uniform 从目录中均匀抽取 k 个不重复物品（回退路径）。
func Uniform(r *rand.Rand, catalog []int64, k int) []int64 {
	return sampling.Choice(r, dedupe(catalog), k)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
