package rerank

import (
	"context"
	"strconv"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// 多样性软上限默认值。
const (
	DefaultTopN     = 10
	DefaultTopCap   = 6
	DefaultFineCap  = 4
	DefaultBrandCap = 3
)

// Diversity 是按类目/品牌软上限的多样性重排。
//
// 第一轮按输入顺序挑选，跳过会让一级类目、细类目或品牌超过上限的物品
// （哨兵类目不计数，UNKNOWN 品牌正常计数）；不足 N 个时第二轮忽略上限，
// 按输入顺序补齐。输出长度为 min(N, len(items))。
type Diversity struct {
	Catalog  *core.Catalog
	N        int
	TopCap   int
	FineCap  int
	BrandCap int
}

// NewDiversity 使用默认上限创建重排器。
func NewDiversity(catalog *core.Catalog) *Diversity {
	return &Diversity{
		Catalog:  catalog,
		N:        DefaultTopN,
		TopCap:   DefaultTopCap,
		FineCap:  DefaultFineCap,
		BrandCap: DefaultBrandCap,
	}
}

func (n *Diversity) Name() string        { return "rerank.diversity" }
func (n *Diversity) Kind() pipeline.Kind { return pipeline.KindReRank }

type capCounter struct {
	top, fine map[int64]int
	brand     map[string]int
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	picked := n.Pick(core.ItemIDs(items))
	byID := make(map[int64]*core.Item, len(items))
	for _, it := range items {
		if it != nil {
			if _, ok := byID[it.ID]; !ok {
				byID[it.ID] = it
			}
		}
	}
	out := make([]*core.Item, 0, len(picked))
	for _, p := range picked {
		it := byID[p.ID]
		it.PutLabel(utils.LabelPicked, utils.NewLabel(strconv.Itoa(p.Pass), "rerank"))
		out = append(out, it)
	}
	return out, nil
}

// Picked 是一次选择：物品与选中它的轮次（1 或 2）。
type Picked struct {
	ID   int64
	Pass int
}

// Pick 在 ID 序列上执行两轮选择；重复 ID 只取一次。
func (n *Diversity) Pick(ids []int64) []Picked {
	limit := n.N
	if limit <= 0 {
		limit = DefaultTopN
	}
	limit = min(limit, len(ids))
	out := make([]Picked, 0, limit)
	if limit == 0 {
		return out
	}

	cnt := capCounter{top: map[int64]int{}, fine: map[int64]int{}, brand: map[string]int{}}
	taken := make(map[int64]struct{}, limit)

	for _, id := range ids {
		if len(out) >= limit {
			return out
		}
		if _, ok := taken[id]; ok {
			continue
		}
		p, _ := n.Catalog.Get(id)
		if !n.allowed(cnt, p) {
			continue
		}
		n.add(cnt, p)
		taken[id] = struct{}{}
		out = append(out, Picked{ID: id, Pass: 1})
	}

	for _, id := range ids {
		if len(out) >= limit {
			break
		}
		if _, ok := taken[id]; ok {
			continue
		}
		p, _ := n.Catalog.Get(id)
		n.add(cnt, p)
		taken[id] = struct{}{}
		out = append(out, Picked{ID: id, Pass: 2})
	}
	return out
}

func capOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (n *Diversity) allowed(cnt capCounter, p core.Product) bool {
	if p.TopCategory >= 0 && cnt.top[p.TopCategory] >= capOr(n.TopCap, DefaultTopCap) {
		return false
	}
	if p.FineCategory >= 0 && cnt.fine[p.FineCategory] >= capOr(n.FineCap, DefaultFineCap) {
		return false
	}
	return cnt.brand[p.Brand] < capOr(n.BrandCap, DefaultBrandCap)
}

func (n *Diversity) add(cnt capCounter, p core.Product) {
	if p.TopCategory >= 0 {
		cnt.top[p.TopCategory]++
	}
	if p.FineCategory >= 0 {
		cnt.fine[p.FineCategory]++
	}
	cnt.brand[p.Brand]++
}
