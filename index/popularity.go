// Package index 构建离线推荐所需的只读索引：流行度、类目池、用户画像，
// 并以 Snapshot 的形式整体发布。
package index

import (
	"sort"

	"github.com/rushteam/hybridrec/core"
)

// DefaultTailFrac 是类目长尾池占比：tail = sorted[int(len·(1-frac)):]。
const DefaultTailFrac = 0.6

// DefaultGlobalTailFrac 是全局长尾切分点：global[int(n·frac):]。
const DefaultGlobalTailFrac = 0.4

// Popularity 是基于 train 交互的归一化流行度，以及按类目划分的热门/长尾池。
// 构建后只读，可被多个 goroutine 共享。
type Popularity struct {
	scores   map[int64]float64
	universe []int64
	global   []int64

	topHead  map[int64][]int64
	topTail  map[int64][]int64
	fineHead map[int64][]int64
	fineTail map[int64][]int64
}

// BuildPopularity 计算 pop(i) = Σw / (max + eps)，并按类目切分热门与长尾池。
// universe 是交互日志里出现过的全部物品；没有 train 权重的物品流行度为 0。
func BuildPopularity(train map[int64][]core.Interaction, universe []int64, catalog *core.Catalog, tailFrac float64) *Popularity {
	sums := make(map[int64]float64, len(universe))
	for _, rows := range train {
		for _, it := range rows {
			sums[it.ItemID] += it.Weight
		}
	}
	maxSum := 0.0
	for _, v := range sums {
		if v > maxSum {
			maxSum = v
		}
	}

	p := &Popularity{
		scores:   make(map[int64]float64, len(universe)),
		universe: append([]int64(nil), universe...),
	}
	sort.Slice(p.universe, func(i, j int) bool { return p.universe[i] < p.universe[j] })
	for _, id := range p.universe {
		p.scores[id] = clip01(sums[id] / (maxSum + core.Epsilon))
	}

	p.global = append([]int64(nil), p.universe...)
	p.sortByPopularity(p.global)

	topGroups := make(map[int64][]int64)
	fineGroups := make(map[int64][]int64)
	for _, id := range p.global {
		prod, _ := catalog.Get(id)
		if prod.TopCategory != core.UnknownCategory {
			topGroups[prod.TopCategory] = append(topGroups[prod.TopCategory], id)
		}
		if prod.FineCategory != core.UnknownCategory {
			fineGroups[prod.FineCategory] = append(fineGroups[prod.FineCategory], id)
		}
	}
	p.topHead, p.topTail = splitPools(topGroups, tailFrac)
	p.fineHead, p.fineTail = splitPools(fineGroups, tailFrac)
	return p
}

func splitPools(groups map[int64][]int64, tailFrac float64) (head, tail map[int64][]int64) {
	head = make(map[int64][]int64, len(groups))
	tail = make(map[int64][]int64, len(groups))
	for cat, ids := range groups {
		head[cat] = ids
		tail[cat] = TailSlice(ids, tailFrac)
	}
	return head, tail
}

// TailSlice 返回按流行度排序列表的长尾部分。
// cut = int(len·(1-frac))，并截断到 [0, len-1]，保证非空列表至少有一个长尾物品。
func TailSlice(sorted []int64, frac float64) []int64 {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	cut := int(float64(n) * (1 - frac))
	if cut < 0 {
		cut = 0
	}
	if cut > n-1 {
		cut = n - 1
	}
	return sorted[cut:]
}

func (p *Popularity) sortByPopularity(ids []int64) {
	sort.SliceStable(ids, func(i, j int) bool {
		pi, pj := p.scores[ids[i]], p.scores[ids[j]]
		if pi != pj {
			return pi > pj
		}
		return ids[i] < ids[j]
	})
}

// Score 返回物品的流行度，未知物品为 0。
func (p *Popularity) Score(id int64) float64 {
	return p.scores[id]
}

// Universe 返回全部物品（升序）。只读。
func (p *Popularity) Universe() []int64 { return p.universe }

// Global 返回按流行度降序的全部物品。只读。
func (p *Popularity) Global() []int64 { return p.global }

// GlobalTail 返回全局长尾：global[int(n·frac):]。
func (p *Popularity) GlobalTail(frac float64) []int64 {
	n := len(p.global)
	cut := int(float64(n) * frac)
	if cut < 0 {
		cut = 0
	}
	if cut > n {
		cut = n
	}
	return p.global[cut:]
}

// TopCategoryHead 返回根类目下按流行度排序的物品。
func (p *Popularity) TopCategoryHead(cat int64) []int64 { return p.topHead[cat] }

// TopCategoryTail 返回根类目的长尾池。
func (p *Popularity) TopCategoryTail(cat int64) []int64 { return p.topTail[cat] }

// FineCategoryHead 返回叶子类目下按流行度排序的物品。
func (p *Popularity) FineCategoryHead(cat int64) []int64 { return p.fineHead[cat] }

// FineCategoryTail 返回叶子类目的长尾池。
func (p *Popularity) FineCategoryTail(cat int64) []int64 { return p.fineTail[cat] }

// SortByPopularity 返回按流行度降序（同分按 ID 升序）排序后的拷贝。
func (p *Popularity) SortByPopularity(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	p.sortByPopularity(out)
	return out
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
