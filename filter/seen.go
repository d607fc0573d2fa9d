package filter

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rushteam/hybridrec/core"
)

// seenParamKey 是 rctx.Params 中缓存已见集合的 key，同一请求只读取一次存储。
const seenParamKey = "filter.seen"

// SeenStore 提供用户已交互物品集合。
type SeenStore interface {
	Seen(ctx context.Context, userID int64) (mapset.Set[int64], error)
}

// SeenFunc 把函数适配为 SeenStore（例如 index.Snapshot.Seen）。
type SeenFunc func(userID int64) mapset.Set[int64]

func (f SeenFunc) Seen(_ context.Context, userID int64) (mapset.Set[int64], error) {
	return f(userID), nil
}

// SeenFilter 过滤用户已交互过的物品。
// 评估时 Store 返回 train 中的物品，在线生成时返回全量日志中的物品。
type SeenFilter struct {
	Store SeenStore
}

func (f *SeenFilter) Name() string {
	return "filter.seen"
}

func (f *SeenFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil || rctx == nil || f.Store == nil {
		return false, nil
	}
	seen, err := f.seen(ctx, rctx)
	if err != nil {
		return false, err
	}
	return seen.Contains(item.ID), nil
}

func (f *SeenFilter) seen(ctx context.Context, rctx *core.RecommendContext) (mapset.Set[int64], error) {
	if cached, ok := rctx.Params[seenParamKey].(mapset.Set[int64]); ok {
		return cached, nil
	}
	set, err := f.Store.Seen(ctx, rctx.UserID)
	if err != nil {
		return nil, err
	}
	if set == nil {
		set = mapset.NewThreadUnsafeSet[int64]()
	}
	if rctx.Params == nil {
		rctx.Params = make(map[string]any)
	}
	rctx.Params[seenParamKey] = set
	return set, nil
}
