package core

import (
	"context"
	"strconv"
)

// EmbeddingParams 是向量训练的超参，由调用方提供。
type EmbeddingParams struct {
	VectorSize int
	Window     int
	Epochs     int
	Negative   int
	Seed       int64
}

// Corpus 是训练语料：每个句子是一个 token 序列（一次合成的“会话”）。
type Corpus [][]string

// Embeddings 是训练产出的 token -> 向量映射。
type Embeddings interface {
	Vector(token string) ([]float64, bool)
	Dimension() int
}

// EmbeddingProvider 是向量训练的领域接口（外部协作方）。
//
// 设计原则：
//   - 定义在领域层（core），由 model 包实现（RPC 训练服务 / 离线向量文件）
//   - 训练算法本身是黑盒，核心只负责构造语料与消费向量
type EmbeddingProvider interface {
	Name() string
	Train(ctx context.Context, corpus Corpus, params EmbeddingParams) (Embeddings, error)
}

// ItemToken 返回物品在语料中的 token。
func ItemToken(itemID int64) string {
	return "ITEM_" + strconv.FormatInt(itemID, 10)
}
