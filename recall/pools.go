package recall

import (
	"context"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/pkg/sampling"
)

// CategoryLevel 区分根类目与叶子类目。
type CategoryLevel int

const (
	LevelTop CategoryLevel = iota
	LevelFine
)

func (l CategoryLevel) String() string {
	if l == LevelFine {
		return "fine"
	}
	return "top"
}

// CategoryPool 按用户偏好类目召回：Tail=false 时取每个类目热门列表的前缀，
// Tail=true 时从每个类目的长尾池无放回抽样。
// 每个类目分配 per = max(1, Quota/len(categories)) 个名额；空类目贡献为 0。
type CategoryPool struct {
	Pop   *index.Popularity
	Level CategoryLevel
	Tail  bool
	Quota int
	Salt  int64 // 随机源派生 key，区分同一用户的不同召回池
}

func (r *CategoryPool) Name() string {
	if r.Tail {
		return "recall." + r.Level.String() + "_tail"
	}
	return "recall." + r.Level.String() + "_popular"
}

func (r *CategoryPool) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	profile := rctx.GetUserProfile()
	cats := profile.TopCategories
	if r.Level == LevelFine {
		cats = profile.FineCategories
	}
	if len(cats) == 0 || r.Quota <= 0 {
		return nil, nil
	}

	per := max(1, r.Quota/len(cats))
	rng := sampling.New(rctx.Seed, rctx.UserID, r.Salt)
	var ids []int64
	for _, cat := range cats {
		if r.Tail {
			ids = append(ids, sampling.Choice(rng, r.tail(cat), per)...)
			continue
		}
		head := r.head(cat)
		ids = append(ids, head[:min(per, len(head))]...)
	}
	return toItems(ids), nil
}

func (r *CategoryPool) head(cat int64) []int64 {
	if r.Level == LevelFine {
		return r.Pop.FineCategoryHead(cat)
	}
	return r.Pop.TopCategoryHead(cat)
}

func (r *CategoryPool) tail(cat int64) []int64 {
	if r.Level == LevelFine {
		return r.Pop.FineCategoryTail(cat)
	}
	return r.Pop.TopCategoryTail(cat)
}

// GlobalTail 从全局长尾（按流行度排序后去掉头部 Frac）均匀抽取 Quota 个物品。
type GlobalTail struct {
	Pop   *index.Popularity
	Frac  float64
	Quota int
	Salt  int64
}

func (r *GlobalTail) Name() string { return "recall.global_tail" }

func (r *GlobalTail) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Quota <= 0 {
		return nil, nil
	}
	rng := sampling.New(rctx.Seed, rctx.UserID, r.Salt)
	return toItems(sampling.Choice(rng, r.Pop.GlobalTail(r.Frac), r.Quota)), nil
}

// Neighbor 是共现邻居召回：取用户前 BaseItems 个高权重物品，
// 每个物品取前 PerItem 个邻居，去重后超过 Quota 时无放回抽样到 Quota。
type Neighbor struct {
	Graph     map[int64][]int64
	BaseItems int
	PerItem   int
	Quota     int
	Salt      int64
}

func (r *Neighbor) Name() string { return "recall.neighbor" }

func (r *Neighbor) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	profile := rctx.GetUserProfile()
	if len(profile.TopItems) == 0 || r.Quota <= 0 {
		return nil, nil
	}

	base := profile.TopItems[:min(r.BaseItems, len(profile.TopItems))]
	seen := make(map[int64]struct{})
	var ids []int64
	for _, item := range base {
		nb := r.Graph[item]
		for _, j := range nb[:min(r.PerItem, len(nb))] {
			if _, ok := seen[j]; ok {
				continue
			}
			seen[j] = struct{}{}
			ids = append(ids, j)
		}
	}
	sortIDs(ids)
	if len(ids) > r.Quota {
		rng := sampling.New(rctx.Seed, rctx.UserID, r.Salt)
		ids = sampling.Choice(rng, ids, r.Quota)
	}
	return toItems(ids), nil
}
