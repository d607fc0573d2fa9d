package model

import (
	"context"

	"github.com/rushteam/hybridrec/core"
)

// Word2VecModel 是训练产出的词向量表（token -> vector）。
//
// 核心思想：
//   - 用户的合成会话被视为“句子”，物品 token（ITEM_<id>）被视为“词”
//   - 在同一会话中频繁共现的物品，向量在空间中更接近
//
// 工程特征：
//   - 预加载词向量表，O(1) 查找
//   - 训练本身由外部服务完成，这里只负责承载与查询
type Word2VecModel struct {
	// WordVectors 词向量表：token -> vector
	WordVectors map[string][]float64

	// Dim 向量维度
	Dim int
}

var _ core.Embeddings = (*Word2VecModel)(nil)

// NewWord2VecModel 创建一个新的 Word2Vec 模型；dimension <= 0 时从第一个向量推断。
func NewWord2VecModel(wordVectors map[string][]float64, dimension int) *Word2VecModel {
	if dimension <= 0 && len(wordVectors) > 0 {
		for _, vec := range wordVectors {
			dimension = len(vec)
			break
		}
	}
	return &Word2VecModel{
		WordVectors: wordVectors,
		Dim:         dimension,
	}
}

// Name 返回模型名称。
func (m *Word2VecModel) Name() string {
	return "word2vec"
}

// Vector 返回 token 的向量；不存在或维度不一致时返回 false。
func (m *Word2VecModel) Vector(token string) ([]float64, bool) {
	vec, ok := m.WordVectors[token]
	if !ok || len(vec) != m.Dim {
		return nil, false
	}
	return vec, true
}

// Dimension 返回向量维度。
func (m *Word2VecModel) Dimension() int {
	return m.Dim
}

// Word2VecLoader 是 Word2Vec 模型加载器接口。
// 支持从不同来源加载模型（文件、HTTP 等）。
type Word2VecLoader interface {
	// Load 加载 Word2Vec 模型
	Load(ctx context.Context, source string) (*Word2VecModel, error)
}
