// Package sampling 提供可复现的随机采样工具。
//
// 并行任务不共享同一个随机源：每个任务用 Derive(seed, keys...) 派生自己的种子，
// 这样结果与调度顺序无关。
package sampling

import (
	"math"
	"math/rand"
)

// Derive 由基础种子和任意个 key（用户 ID、召回池序号等）派生出任务种子（splitmix64）。
func Derive(seed int64, keys ...int64) int64 {
	x := uint64(seed)
	for _, k := range keys {
		x ^= uint64(k) + 0x9e3779b97f4a7c15 + (x << 6) + (x >> 2)
		x = mix(x)
	}
	return int64(mix(x))
}

func mix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// New 创建种子化的随机源。
func New(seed int64, keys ...int64) *rand.Rand {
	return rand.New(rand.NewSource(Derive(seed, keys...)))
}

// Choice 从 arr 中无放回均匀抽取 size 个元素；size >= len(arr) 时返回 arr 的拷贝。
// arr 不会被修改。
func Choice[T any](r *rand.Rand, arr []T, size int) []T {
	if len(arr) == 0 || size <= 0 {
		return nil
	}
	if size >= len(arr) {
		out := make([]T, len(arr))
		copy(out, arr)
		return out
	}
	buf := make([]T, len(arr))
	copy(buf, arr)
	for i := 0; i < size; i++ {
		j := i + r.Intn(len(buf)-i)
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf[:size]
}

// WeightedWithoutReplacement 按权重无放回抽取 k 个下标（累计权重抽取后移除）。
// 负权重按 0 处理；剩余权重和不为正时退化为在剩余元素中均匀抽取，保证采样不会失败。
func WeightedWithoutReplacement(r *rand.Rand, weights []float64, k int) []int {
	n := len(weights)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}
	idx := make([]int, n)
	w := make([]float64, n)
	for i, v := range weights {
		idx[i] = i
		if v > 0 {
			w[i] = v
		}
	}

	out := make([]int, 0, k)
	for len(out) < k {
		total := 0.0
		for _, v := range w {
			total += v
		}
		var pick int
		if total <= 0 {
			pick = r.Intn(len(idx))
		} else {
			target := r.Float64() * total
			acc := 0.0
			pick = len(w) - 1
			for i, v := range w {
				acc += v
				if target < acc {
					pick = i
					break
				}
			}
		}
		out = append(out, idx[pick])
		idx = append(idx[:pick], idx[pick+1:]...)
		w = append(w[:pick], w[pick+1:]...)
	}
	return out
}

// RankWeights 返回 rank^(-alpha) 权重（rank 从 1 开始）。
func RankWeights(n int, alpha float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Pow(float64(i+1), -alpha)
	}
	return out
}
