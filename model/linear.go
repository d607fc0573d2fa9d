package model

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// 混合打分使用的特征名。
const (
	FeatureEmbed  = "embed"  // 用户向量与物品向量的余弦
	FeaturePop    = "pop"    // 归一化流行度
	FeatureCollab = "collab" // 归一化显式分
)

// Weights 是混合打分的三路权重。
type Weights struct {
	Embed  float64 `json:"w_embed" koanf:"embed"`
	Collab float64 `json:"w_collab" koanf:"collab"`
	Pop    float64 `json:"w_pop" koanf:"pop"`
}

// Model 返回对应的线性模型。
func (w Weights) Model() *LinearModel {
	return &LinearModel{Weights: map[string]float64{
		FeatureEmbed:  w.Embed,
		FeatureCollab: w.Collab,
		FeaturePop:    w.Pop,
	}}
}

// LinearModel 是不带激活函数的线性打分：score = Bias + Σ Weight_i · Feature_i。
// 缺失的特征视为 0。
type LinearModel struct {
	Bias    float64            // 偏置项
	Weights map[string]float64 // 特征权重
}

var _ RankModel = (*LinearModel)(nil)

// LoadWeights 从 JSON 文件读取权重（{"w_embed":..,"w_collab":..,"w_pop":..}）。
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("read file: %w", err)
	}
	var w Weights
	if err := json.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("unmarshal weights: %w", err)
	}
	return w, nil
}

func (m *LinearModel) Name() string { return "linear" }

func (m *LinearModel) Predict(features map[string]float64) (float64, error) {
	score := m.Bias
	for k, v := range features {
		if w, ok := m.Weights[k]; ok {
			score += w * v
		}
	}
	return score, nil
}
