package recall

import (
	"context"

	"github.com/rushteam/hybridrec/core"
)

// Source 表示一个可复用的召回源（类目热门/类目长尾/共现邻居/全局长尾/...）。
// 你可以把它理解为“可并发 fan-out 的策略单元”。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

func toItems(ids []int64) []*core.Item {
	out := make([]*core.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, core.NewItem(id))
	}
	return out
}
