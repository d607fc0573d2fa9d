package model

// RankModel 是排序阶段的最小抽象：输入特征，输出一个可比较的分数。
// 混合打分使用 LinearModel；也可以替换为其他本地或远程模型。
type RankModel interface {
	Name() string
	Predict(features map[string]float64) (float64, error)
}
