package model

import (
	"gonum.org/v1/gonum/floats"

	"github.com/rushteam/hybridrec/core"
)

// ItemMatrix 是单位化后的物品向量表。未出现在词表中的物品为零向量，
// 因此与任何用户的余弦相似度都为 0。
type ItemMatrix struct {
	dim  int
	vecs map[int64][]float64
	zero []float64
}

// NewItemMatrix 按 v / (‖v‖ + eps) 单位化 items 的向量。
func NewItemMatrix(emb core.Embeddings, items []int64) *ItemMatrix {
	dim := emb.Dimension()
	m := &ItemMatrix{
		dim:  dim,
		vecs: make(map[int64][]float64, len(items)),
		zero: make([]float64, dim),
	}
	for _, id := range items {
		v, ok := emb.Vector(core.ItemToken(id))
		if !ok {
			continue
		}
		m.vecs[id] = normalized(v)
	}
	return m
}

func normalized(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	floats.Scale(1/(floats.Norm(out, 2)+core.Epsilon), out)
	return out
}

// Dim 返回向量维度。
func (m *ItemMatrix) Dim() int { return m.dim }

// Len 返回有向量的物品数。
func (m *ItemMatrix) Len() int { return len(m.vecs) }

// Vector 返回物品的单位向量，未知物品返回零向量（只读）。
func (m *ItemMatrix) Vector(id int64) []float64 {
	if v, ok := m.vecs[id]; ok {
		return v
	}
	return m.zero
}

// UserVector 返回 Σ w·item_vec 的单位化结果。
func (m *ItemMatrix) UserVector(rows []core.Interaction) []float64 {
	u := make([]float64, m.dim)
	for _, it := range rows {
		v, ok := m.vecs[it.ItemID]
		if !ok {
			continue
		}
		floats.AddScaled(u, it.Weight, v)
	}
	floats.Scale(1/(floats.Norm(u, 2)+core.Epsilon), u)
	return u
}

// Cosine 返回用户单位向量与物品单位向量的点积。
func (m *ItemMatrix) Cosine(user []float64, id int64) float64 {
	v, ok := m.vecs[id]
	if !ok || len(user) != len(v) {
		return 0
	}
	return floats.Dot(user, v)
}
