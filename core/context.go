package core

import "github.com/rushteam/hybridrec/pkg/utils"

// RecommendContext 承载用户/场景/随机种子信息，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID int64
	Scene  string

	// User 是用户偏好画像（类目偏好 + 高权重物品）
	User *UserProfile

	// Seed 是本次请求/任务的随机种子，召回池与采样器据此派生各自的随机源
	Seed int64

	// Labels 是用户级标签，可驱动整个 Pipeline 行为
	// 例如：冷启动、全量掩码回退等
	Labels map[string]utils.Label

	// Params 请求级上下文参数
	Params map[string]any
}

// GetUserProfile 获取用户画像；没有画像时返回一个空画像，调用方无需判空。
func (rctx *RecommendContext) GetUserProfile() *UserProfile {
	if rctx.User != nil {
		return rctx.User
	}
	return NewUserProfile(rctx.UserID)
}

// PutLabel 写入用户级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取用户级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
