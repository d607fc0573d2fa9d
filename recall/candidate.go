package recall

import (
	"context"
	"math/rand"
	"sort"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/sampling"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// ScenarioGlobal 在候选中额外并入全局流行度 Top T。
const ScenarioGlobal = "GLOBAL"

// Mix 是各召回池占目标候选数的比例，配额为 int(T·ratio)。
type Mix struct {
	TopPopular  float64 `koanf:"top_popular" yaml:"top_popular"`
	TopTail     float64 `koanf:"top_tail" yaml:"top_tail"`
	FinePopular float64 `koanf:"fine_popular" yaml:"fine_popular"`
	FineTail    float64 `koanf:"fine_tail" yaml:"fine_tail"`
	Neighbors   float64 `koanf:"neighbors" yaml:"neighbors"`
	GlobalTail  float64 `koanf:"global_tail" yaml:"global_tail"`
}

// DefaultMix 返回 .30 / .10 / .20 / .10 / .25 / .05。
func DefaultMix() Mix {
	return Mix{TopPopular: 0.30, TopTail: 0.10, FinePopular: 0.20, FineTail: 0.10, Neighbors: 0.25, GlobalTail: 0.05}
}

// 各召回池的随机源派生 key
const (
	saltTopTail int64 = iota + 1
	saltFineTail
	saltNeighbor
	saltGlobalTail
	saltAssemble
)

const sourcePad = "recall.pad"

// CandidateGenerator 为单个用户生成固定规模的候选集。
//
// 各召回池经 Fanout 并发执行后取并集；不足 Target 时用未入选的最热门物品补齐，
// 超过 Target 时保留流行度最高的 int(KeepFrac·T) 个，其余名额从剩余物品中均匀抽样。
// 输出按物品 ID 升序、去重，长度不超过 Target。
type CandidateGenerator struct {
	Pop       *index.Popularity
	Neighbors map[int64][]int64

	Target   int
	Mix      Mix
	Scenario string

	KeepFrac        float64
	GlobalTailFrac  float64
	NeighborBase    int
	NeighborPerItem int
	MaxConcurrent   int
}

// NewCandidateGenerator 使用默认参数（T=1200，保留 80% 热门，邻居 8×25）。
func NewCandidateGenerator(pop *index.Popularity, neighbors map[int64][]int64) *CandidateGenerator {
	return &CandidateGenerator{
		Pop:             pop,
		Neighbors:       neighbors,
		Target:          1200,
		Mix:             DefaultMix(),
		KeepFrac:        0.8,
		GlobalTailFrac:  index.DefaultGlobalTailFrac,
		NeighborBase:    8,
		NeighborPerItem: 25,
	}
}

func (g *CandidateGenerator) Name() string        { return "recall.candidates" }
func (g *CandidateGenerator) Kind() pipeline.Kind { return pipeline.KindRecall }

func (g *CandidateGenerator) quota(ratio float64) int {
	return int(float64(g.Target) * ratio)
}

// Sources 返回本生成器使用的召回池，顺序即 Fanout 合并优先级。
func (g *CandidateGenerator) Sources() []Source {
	sources := []Source{
		&CategoryPool{Pop: g.Pop, Level: LevelTop, Quota: g.quota(g.Mix.TopPopular)},
		&CategoryPool{Pop: g.Pop, Level: LevelTop, Tail: true, Quota: g.quota(g.Mix.TopTail), Salt: saltTopTail},
		&CategoryPool{Pop: g.Pop, Level: LevelFine, Quota: g.quota(g.Mix.FinePopular)},
		&CategoryPool{Pop: g.Pop, Level: LevelFine, Tail: true, Quota: g.quota(g.Mix.FineTail), Salt: saltFineTail},
		&Neighbor{
			Graph:     g.Neighbors,
			BaseItems: g.NeighborBase,
			PerItem:   g.NeighborPerItem,
			Quota:     g.quota(g.Mix.Neighbors),
			Salt:      saltNeighbor,
		},
		&GlobalTail{Pop: g.Pop, Frac: g.GlobalTailFrac, Quota: g.quota(g.Mix.GlobalTail), Salt: saltGlobalTail},
	}
	if g.Scenario == ScenarioGlobal {
		sources = append(sources, &Hot{Pop: g.Pop, N: g.Target})
	}
	return sources
}

// Process 实现 Node 接口：输出按 ID 升序的候选 Item，保留召回来源 label。
func (g *CandidateGenerator) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	fan := &Fanout{Sources: g.Sources(), Dedup: true, MergeStrategy: MergePriority, MaxConcurrent: g.MaxConcurrent}
	merged, err := fan.Process(ctx, rctx, nil)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*core.Item, len(merged))
	for _, it := range merged {
		byID[it.ID] = it
	}
	ids := g.Assemble(core.ItemIDs(merged), sampling.New(rctx.Seed, rctx.UserID, saltAssemble))

	out := make([]*core.Item, 0, len(ids))
	for _, id := range ids {
		it, ok := byID[id]
		if !ok {
			it = core.NewItem(id)
			it.PutLabel(utils.LabelRecallSource, utils.NewLabel(sourcePad, "recall"))
		}
		out = append(out, it)
	}
	return out, nil
}

// Generate 返回用户的候选物品 ID（升序）。
func (g *CandidateGenerator) Generate(ctx context.Context, rctx *core.RecommendContext) ([]int64, error) {
	items, err := g.Process(ctx, rctx, nil)
	if err != nil {
		return nil, err
	}
	return core.ItemIDs(items), nil
}

// Assemble 对召回池并集做补齐/截断，返回升序、去重且不超过 Target 的候选。
func (g *CandidateGenerator) Assemble(union []int64, rng *rand.Rand) []int64 {
	set := make(map[int64]struct{}, len(union))
	ids := make([]int64, 0, len(union))
	for _, id := range union {
		if _, ok := set[id]; ok {
			continue
		}
		set[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(ids) < g.Target {
		for _, id := range g.Pop.Global() {
			if len(ids) >= g.Target {
				break
			}
			if _, ok := set[id]; ok {
				continue
			}
			set[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if len(ids) > g.Target {
		byPop := g.Pop.SortByPopularity(ids)
		keep := int(float64(g.Target) * g.KeepFrac)
		keep = min(keep, g.Target)
		rest := append([]int64(nil), byPop[keep:]...)
		sortIDs(rest)
		ids = append(byPop[:keep:keep], sampling.Choice(rng, rest, g.Target-keep)...)
		sortIDs(ids)
		if len(ids) > g.Target {
			ids = ids[:g.Target]
		}
	}

	sortIDs(ids)
	return ids
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
