package utils

// Label 是推荐链路中的一等公民：可解释、可追踪、可透传。
// Value 与 Source 的语义由业务自定义；这里只提供标准化的合并规则。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / rank / rerank / serve ...
}

// 链路中约定的 label key。
const (
	LabelRecallSource = "recall_source" // 候选来自哪个召回池
	LabelRecallOrder  = "recall_order"  // 召回池序号
	LabelRankModel    = "rank_model"
	LabelMasked       = "masked"      // 已见物品被掩码
	LabelPriority     = "priority"    // 阈值优先组：high / low
	LabelPicked       = "rerank_pass" // 多样性重排在第几轮选中
	LabelFallback     = "fallback"    // 回退原因
)

// NewLabel 构造 Label。
func NewLabel(value, source string) Label {
	return Label{Value: value, Source: source}
}

// MergeLabel 用于合并同名 Label，遵循“保留历史、可追踪”的默认策略。
// - Value: 以 '|' 累积
// - Source: 以 ',' 累积
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "":
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}
