package filter

import (
	"context"
	"math"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// 过滤模式
const (
	ModeDrop = "drop" // 移除被过滤的物品（默认）
	ModeMask = "mask" // 保留物品，但把分数置为 -Inf，后续 TopK 不会选中
)

// FilterNode 是过滤 Node，可以组合多个过滤器进行过滤。
// 如果任何一个过滤器返回 true，该物品就会被过滤掉（或在 mask 模式下被掩码）。
type FilterNode struct {
	Filters []Filter
	Mode    string
}

func (n *FilterNode) Name() string {
	return "filter.node"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}

	out := make([]*core.Item, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}

		reason := ""
		for _, f := range n.Filters {
			ok, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				// 过滤器错误时记录但不中断流程
				log := logging.Component("filter")
				log.Warn().Err(err).Str("filter", f.Name()).Int64("item", item.ID).Msg("filter failed, item kept")
				continue
			}
			if ok {
				reason = f.Name()
				break
			}
		}

		if reason == "" {
			out = append(out, item)
			continue
		}
		if n.Mode == ModeMask {
			item.Score = math.Inf(-1)
			item.PutLabel(utils.LabelMasked, utils.NewLabel("true", reason))
			out = append(out, item)
			continue
		}
		item.PutLabel("filtered", utils.NewLabel("true", reason))
	}

	return out, nil
}
