package dataset

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rushteam/hybridrec/core"
)

// GroundTruth 是按用户的真值物品集合，只给评估指标使用。
type GroundTruth map[int64]mapset.Set[int64]

// NewGroundTruth 从一个分区构建真值。
func NewGroundTruth(part map[int64][]core.Interaction) GroundTruth {
	gt := make(GroundTruth, len(part))
	for user, rows := range part {
		if len(rows) == 0 {
			continue
		}
		set := mapset.NewThreadUnsafeSet[int64]()
		for _, it := range rows {
			set.Add(it.ItemID)
		}
		gt[user] = set
	}
	return gt
}

// Users 返回有真值的用户（升序）。
func (gt GroundTruth) Users() []int64 {
	users := make([]int64, 0, len(gt))
	for u := range gt {
		users = append(users, u)
	}
	sortInt64s(users)
	return users
}

// Items 返回所有真值物品的并集。
func (gt GroundTruth) Items() mapset.Set[int64] {
	all := mapset.NewThreadUnsafeSet[int64]()
	for _, set := range gt {
		set.Each(func(id int64) bool {
			all.Add(id)
			return false
		})
	}
	return all
}
