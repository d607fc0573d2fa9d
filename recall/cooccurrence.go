package recall

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/dataset"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/metrics"
	"github.com/rushteam/hybridrec/pkg/sampling"
)

// CooccurrenceMiner 基于采样的物品共现挖掘。
//
// 每个用户截取权重最高的 MaxItems 个物品（去重），对其中每个物品无放回抽取
// min(Partners, m-1) 个搭档并累计共现次数；最后每个物品保留次数最高的 TopK 个邻居。
// 采样而非穷举两两组合，代价是邻居图是近似的。
type CooccurrenceMiner struct {
	MaxItems int
	Partners int
	TopK     int
	Seed     int64
	Workers  int
}

// DefaultCooccurrenceMiner 返回 40 / 6 / 60。
func DefaultCooccurrenceMiner(seed int64) *CooccurrenceMiner {
	return &CooccurrenceMiner{MaxItems: 40, Partners: 6, TopK: 60, Seed: seed}
}

// MineStats 是邻居图的覆盖统计。
type MineStats struct {
	WithNeighbors int
	Items         int
}

// Ratio 返回至少有一个邻居的物品占比。
func (s MineStats) Ratio() float64 {
	if s.Items == 0 {
		return 0
	}
	return float64(s.WithNeighbors) / float64(s.Items)
}

type pair struct{ a, b int64 }

// Mine 从 train 交互挖掘邻居图。每个用户使用 (Seed, userID) 派生的随机源，
// 用户并行处理，结果与并行度无关。
func (m *CooccurrenceMiner) Mine(ctx context.Context, train map[int64][]core.Interaction, universe []int64) (map[int64][]int64, MineStats, error) {
	defer metrics.ObserveStage("cooccur")()

	users := dataset.SortedUsers(train)
	perUser := make([][]pair, len(users))

	eg, egCtx := errgroup.WithContext(ctx)
	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	eg.SetLimit(workers)
	for i, user := range users {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			perUser[i] = m.samplePairs(user, train[user])
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, MineStats{}, err
	}

	counts := make(map[int64]map[int64]int)
	for _, pairs := range perUser {
		for _, p := range pairs {
			row := counts[p.a]
			if row == nil {
				row = make(map[int64]int)
				counts[p.a] = row
			}
			row[p.b]++
		}
	}

	graph := make(map[int64][]int64, len(counts))
	for item, row := range counts {
		if nb := topPartners(item, row, m.TopK); len(nb) > 0 {
			graph[item] = nb
		}
	}

	stats := MineStats{WithNeighbors: len(graph), Items: len(universe)}
	metrics.NeighborCoverage.Set(stats.Ratio())
	log := logging.Component("cooccur")
	log.Info().
		Int("with_neighbors", stats.WithNeighbors).
		Int("items", stats.Items).
		Msgf("%d/%d items have >=1 neighbor", stats.WithNeighbors, stats.Items)
	return graph, stats, nil
}

func (m *CooccurrenceMiner) samplePairs(user int64, rows []core.Interaction) []pair {
	capped, _ := index.TopItems(rows, m.MaxItems)
	if len(capped) < 2 {
		return nil
	}
	sortIDs(capped)

	rng := sampling.New(m.Seed, user)
	k := min(m.Partners, len(capped)-1)
	pairs := make([]pair, 0, len(capped)*k)
	others := make([]int64, 0, len(capped)-1)
	for _, i := range capped {
		others = others[:0]
		for _, j := range capped {
			if j != i {
				others = append(others, j)
			}
		}
		for _, j := range sampling.Choice(rng, others, k) {
			pairs = append(pairs, pair{a: i, b: j})
		}
	}
	return pairs
}

func topPartners(item int64, row map[int64]int, k int) []int64 {
	partners := make([]int64, 0, len(row))
	for j := range row {
		if j != item {
			partners = append(partners, j)
		}
	}
	sort.Slice(partners, func(x, y int) bool {
		cx, cy := row[partners[x]], row[partners[y]]
		if cx != cy {
			return cx > cy
		}
		return partners[x] < partners[y]
	})
	if len(partners) > k {
		partners = partners[:k]
	}
	return partners
}
