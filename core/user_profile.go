package core

// UserProfile 是用户偏好画像。
//
// 由加权交互汇总得到：
//   - TopCategories：根类目偏好（按权重和降序，最多 N₁ 个）
//   - FineCategories：叶子类目偏好（最多 N₂ 个）
//   - TopItems：按权重降序的物品（去重，最多 M 个），供共现挖掘与邻居召回使用
//
// 离线评估时只基于 train 构建，在线服务时基于全量日志构建。
type UserProfile struct {
	UserID int64

	TopCategories  []int64
	FineCategories []int64
	TopItems       []int64
	TopWeights     []float64 // 与 TopItems 一一对应
}

// NewUserProfile 创建一个空画像。
func NewUserProfile(userID int64) *UserProfile {
	return &UserProfile{UserID: userID}
}

// IsEmpty 表示用户没有任何可用的偏好信号（冷启动）。
func (p *UserProfile) IsEmpty() bool {
	return p == nil || (len(p.TopCategories) == 0 && len(p.FineCategories) == 0 && len(p.TopItems) == 0)
}
