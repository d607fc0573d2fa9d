package core

// CollabScores 是外部协同打分表（例如矩阵分解的预测分），按用户最大值归一化：
//
//	collab(u,i) = score(u,i) / (max_u score + Epsilon)
//
// 与交互日志无关，可以覆盖用户没有看过的物品。
type CollabScores map[int64]map[int64]float64

// User 返回用户的 item -> 归一化分数；没有记录时返回 nil。
func (c CollabScores) User(userID int64) map[int64]float64 {
	if c == nil {
		return nil
	}
	return c[userID]
}

// Len 返回打分表的总条数。
func (c CollabScores) Len() int {
	n := 0
	for _, items := range c {
		n += len(items)
	}
	return n
}
