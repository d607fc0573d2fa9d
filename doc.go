// Package hybridrec 是混合推荐系统：序列向量相似度、流行度与显式评分三路信号加权打分，
// 再经多样性约束重排得到每个用户的推荐列表。
//
// 设计要点：
//   - Pipeline-first：离线生成通过 Node 串联（候选 → 打分 → 掩码 → 截断 → 缩放 → 优先 → 多样性）
//   - Labels-first：每个物品携带召回来源、掩码、重排轮次等 label，便于解释与排查
//   - 可复现：所有随机过程由 (seed, user, pool) 派生的随机源驱动
//
// 离线入口见 offline.Runner，在线入口见 service.Handler，命令行见 cmd/hybridrec。
package hybridrec

import "github.com/rushteam/hybridrec/pipeline"

// 轻量 facade：便于直接 import 根包使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

const (
	KindRecall      = pipeline.KindRecall
	KindFilter      = pipeline.KindFilter
	KindRank        = pipeline.KindRank
	KindReRank      = pipeline.KindReRank
	KindPostProcess = pipeline.KindPostProcess
)
