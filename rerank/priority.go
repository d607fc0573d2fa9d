package rerank

import (
	"context"
	"fmt"
	"sync"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/dsl"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// DefaultThreshold 是 0-100 分数的优先阈值。
const DefaultThreshold = 70.0

// PriorityNode 把命中规则的物品稳定地提到前面，其余保持原相对顺序。
//
// 默认规则为 item.score >= Threshold（nil 时取 DefaultThreshold，0 表示全部优先）；
// 设置 Rule 时改用 CEL 表达式判断，例如：
//
//	item.score >= 70.0 && item.meta.brand != "UNKNOWN"
type PriorityNode struct {
	Threshold *float64
	Rule      string

	once sync.Once
	prg  *dsl.Program
	err  error
}

func (n *PriorityNode) Name() string        { return "rerank.priority" }
func (n *PriorityNode) Kind() pipeline.Kind { return pipeline.KindReRank }

func (n *PriorityNode) program() (*dsl.Program, error) {
	n.once.Do(func() {
		if n.Rule != "" {
			n.prg, n.err = dsl.Compile(n.Rule)
		}
	})
	return n.prg, n.err
}

func (n *PriorityNode) match(it *core.Item, rctx *core.RecommendContext) (bool, error) {
	prg, err := n.program()
	if err != nil {
		return false, err
	}
	if prg == nil {
		th := DefaultThreshold
		if n.Threshold != nil {
			th = *n.Threshold
		}
		return it.Score >= th, nil
	}
	return prg.Match(it, rctx)
}

func (n *PriorityNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	high := make([]*core.Item, 0, len(items))
	low := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		ok, err := n.match(it, rctx)
		if err != nil {
			return nil, fmt.Errorf("priority rule: %w", err)
		}
		if ok {
			it.PutLabel(utils.LabelPriority, utils.NewLabel("high", "rerank"))
			high = append(high, it)
		} else {
			it.PutLabel(utils.LabelPriority, utils.NewLabel("low", "rerank"))
			low = append(low, it)
		}
	}
	return append(high, low...), nil
}
