package pipeline

import (
	"context"
	"fmt"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/metrics"
)

// Pipeline 把推荐逻辑拆成可组合的 Node 链：候选 → 打分 → 掩码 → 截断 → 重排。
type Pipeline struct {
	Nodes []Node
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		done := metrics.ObserveStage(node.Name())
		next, err := node.Process(ctx, rctx, cur)
		done()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		cur = next
	}
	return cur, nil
}
