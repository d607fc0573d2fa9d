package index

import (
	"sort"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/dataset"
)

// ProfileConfig 是画像的截断参数。
type ProfileConfig struct {
	TopCategories  int // N₁
	FineCategories int // N₂
	TopItems       int // M
}

// DefaultProfileConfig 返回 3 / 6 / 40。
func DefaultProfileConfig() ProfileConfig {
	return ProfileConfig{TopCategories: 3, FineCategories: 6, TopItems: 40}
}

// BuildProfiles 为每个用户汇总类目偏好与高权重物品。
// 传入 train 得到评估视图，传入全量日志得到服务视图。
func BuildProfiles(byUser map[int64][]core.Interaction, catalog *core.Catalog, cfg ProfileConfig) map[int64]*core.UserProfile {
	out := make(map[int64]*core.UserProfile, len(byUser))
	for user, rows := range byUser {
		out[user] = BuildProfile(user, rows, catalog, cfg)
	}
	return out
}

// BuildProfile 构建单个用户画像。
func BuildProfile(userID int64, rows []core.Interaction, catalog *core.Catalog, cfg ProfileConfig) *core.UserProfile {
	topSum := make(map[int64]float64)
	fineSum := make(map[int64]float64)
	for _, it := range rows {
		prod, _ := catalog.Get(it.ItemID)
		if prod.TopCategory != core.UnknownCategory {
			topSum[prod.TopCategory] += it.Weight
		}
		if prod.FineCategory != core.UnknownCategory {
			fineSum[prod.FineCategory] += it.Weight
		}
	}

	p := core.NewUserProfile(userID)
	p.TopCategories = topKeys(topSum, cfg.TopCategories)
	p.FineCategories = topKeys(fineSum, cfg.FineCategories)
	p.TopItems, p.TopWeights = TopItems(rows, cfg.TopItems)
	return p
}

// TopItems 按权重降序返回去重后的前 m 个物品及其权重。
func TopItems(rows []core.Interaction, m int) ([]int64, []float64) {
	sorted := make([]core.Interaction, len(rows))
	copy(sorted, rows)
	dataset.SortByWeight(sorted)

	items := make([]int64, 0, min(m, len(sorted)))
	weights := make([]float64, 0, cap(items))
	seen := make(map[int64]struct{}, len(sorted))
	for _, it := range sorted {
		if len(items) >= m {
			break
		}
		if _, ok := seen[it.ItemID]; ok {
			continue
		}
		seen[it.ItemID] = struct{}{}
		items = append(items, it.ItemID)
		weights = append(weights, it.Weight)
	}
	return items, weights
}

func topKeys(sums map[int64]float64, n int) []int64 {
	keys := make([]int64, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if sums[keys[i]] != sums[keys[j]] {
			return sums[keys[i]] > sums[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}
