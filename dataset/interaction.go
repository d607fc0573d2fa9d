// Package dataset 负责交互日志的分组与 train/val/test 切分。
package dataset

import (
	"sort"

	"github.com/rushteam/hybridrec/core"
)

// GroupByUser 按用户分组交互，保持输入顺序。
func GroupByUser(interactions []core.Interaction) map[int64][]core.Interaction {
	out := make(map[int64][]core.Interaction)
	for _, it := range interactions {
		out[it.UserID] = append(out[it.UserID], it)
	}
	return out
}

// Universe 返回交互日志中出现过的全部物品 ID（升序、去重）。
func Universe(interactions []core.Interaction) []int64 {
	seen := make(map[int64]struct{}, len(interactions))
	ids := make([]int64, 0, len(interactions))
	for _, it := range interactions {
		if _, ok := seen[it.ItemID]; ok {
			continue
		}
		seen[it.ItemID] = struct{}{}
		ids = append(ids, it.ItemID)
	}
	sortInt64s(ids)
	return ids
}

// SortedUsers 返回 map 的用户 ID（升序）。所有按用户遍历的逻辑都走这个顺序，保证可复现。
func SortedUsers(byUser map[int64][]core.Interaction) []int64 {
	users := make([]int64, 0, len(byUser))
	for u := range byUser {
		users = append(users, u)
	}
	sortInt64s(users)
	return users
}

func sortInt64s(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// SortByWeight 按权重降序排序，权重相同按物品 ID 升序。原地排序。
func SortByWeight(rows []core.Interaction) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Weight != rows[j].Weight {
			return rows[i].Weight > rows[j].Weight
		}
		return rows[i].ItemID < rows[j].ItemID
	})
}
