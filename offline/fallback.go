package offline

import (
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/pkg/utils"
	"github.com/rushteam/hybridrec/rerank"
)

const fallbackPopularity = "popularity"

// PopularityFallback 返回全局流行度最高、且用户未看过的 n 个物品，分数按流行度缩放到 0-100。
// 用于用户全部候选被掩码或流水线失败的情况。
func PopularityFallback(snap *index.Snapshot, userID int64, n int) []*core.Item {
	seen := snap.Seen(userID)
	ids := make([]int64, 0, n)
	raw := make([]float64, 0, n)
	for _, id := range snap.Popularity.Global() {
		if len(ids) >= n {
			break
		}
		if seen.Contains(id) {
			continue
		}
		ids = append(ids, id)
		raw = append(raw, snap.Popularity.Score(id))
	}
	scaled := rerank.ScaleScores(raw)
	out := make([]*core.Item, len(ids))
	for i, id := range ids {
		it := core.NewItem(id)
		it.Score = scaled[i]
		it.Features[rerank.FeatureRawScore] = raw[i]
		it.PutLabel(utils.LabelFallback, utils.NewLabel(fallbackPopularity, "offline"))
		out[i] = it
	}
	return out
}

// Rows 把有序结果转为持久化行，rank 从 1 开始。
func Rows(userID int64, items []*core.Item) []core.Recommendation {
	rows := make([]core.Recommendation, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		rows = append(rows, core.Recommendation{
			UserID: userID,
			ItemID: it.ID,
			Score:  it.Score,
			Rank:   len(rows) + 1,
		})
	}
	return rows
}
