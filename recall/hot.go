package recall

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/pipeline"
)

// Hot 是全局热门召回源，GLOBAL 场景下把全局流行度 Top N 并入候选。
//   - 如果 Store 实现了 KeyValueStore，优先使用 ZRange（由 PublishHot 写入的有序集合）
//   - 否则从普通 key 读取 JSON 数组
//   - Store 为空或读取失败时，使用内存中的 Popularity 排序
//
// Hot 同时实现了 Source 和 Node 接口，可以直接在 Pipeline 中使用
type Hot struct {
	Store core.Store
	Key   string // 存储 key，例如 "hot:items"
	Pop   *index.Popularity
	N     int
}

func (r *Hot) Name() string        { return "recall.hot" }
func (r *Hot) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (r *Hot) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

// Recall 实现 Source 接口
func (r *Hot) Recall(
	ctx context.Context,
	_ *core.RecommendContext,
) ([]*core.Item, error) {
	if r.N <= 0 {
		return nil, nil
	}
	ids := r.fromStore(ctx)

	// Fallback：内存流行度
	if len(ids) == 0 && r.Pop != nil {
		global := r.Pop.Global()
		ids = global[:min(r.N, len(global))]
	}
	return toItems(ids), nil
}

func (r *Hot) fromStore(ctx context.Context) []int64 {
	if r.Store == nil || r.Key == "" {
		return nil
	}
	if kv, ok := r.Store.(core.KeyValueStore); ok {
		members, err := kv.ZRange(ctx, r.Key, 0, int64(r.N-1))
		if err != nil || len(members) == 0 {
			return nil
		}
		ids := make([]int64, 0, len(members))
		for _, m := range members {
			if id, err := strconv.ParseInt(m, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
		return ids
	}
	data, err := r.Store.Get(ctx, r.Key)
	if err != nil {
		return nil
	}
	var parsed []int64
	if json.Unmarshal(data, &parsed) != nil {
		return nil
	}
	return parsed[:min(r.N, len(parsed))]
}

// PublishHot 把全局流行度 Top N 写入有序集合，供在线 Hot 召回读取。
func PublishHot(ctx context.Context, kv core.KeyValueStore, key string, pop *index.Popularity, n int) error {
	global := pop.Global()
	for _, id := range global[:min(n, len(global))] {
		if err := kv.ZAdd(ctx, key, pop.Score(id), strconv.FormatInt(id, 10)); err != nil {
			return fmt.Errorf("publish hot items: %w", err)
		}
	}
	return nil
}
