// Package service 是在线推荐服务：读取离线持久化的排名，用多样性采样器
// 返回 k 个物品；未登录或没有排名的用户随机返回目录中的物品。
package service

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/metrics"
	"github.com/rushteam/hybridrec/rerank"
)

// 响应类型
const (
	TypePersonalized = "personalized"
	TypeFallback     = "fallback"
)

// DefaultK 是默认返回条数。
const DefaultK = 10

// CatalogFunc 返回当前物品目录；可能为 nil（尚未加载）。
type CatalogFunc func() *core.Catalog

// Item 是返回给前端的一条推荐。Score 只对个性化结果有意义。
type Item struct {
	ItemID int64   `json:"item_id"`
	Score  float64 `json:"score,omitempty"`
	Name   string  `json:"name,omitempty"`
	Brand  string  `json:"brand,omitempty"`
	Price  float64 `json:"price,omitempty"`
}

// Response 是一次推荐的结果。
type Response struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id,omitempty"`
	Items  []Item `json:"items"`
}

// Recommender 组合持久化排名、目录与采样器。并发安全。
type Recommender struct {
	Store   core.RecommendationStore
	Catalog CatalogFunc
	Sampler rerank.Sampler

	// RankLimit 是读取的持久化排名条数，覆盖采样器的头部与尾部。
	RankLimit int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRecommender 使用默认采样器与基于时间的随机源。
func NewRecommender(s core.RecommendationStore, catalog CatalogFunc) *Recommender {
	sampler := rerank.DefaultSampler()
	return &Recommender{
		Store:     s,
		Catalog:   catalog,
		Sampler:   sampler,
		RankLimit: sampler.HeadSize + sampler.TailSize,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSeed 固定随机源，用于测试与复现。
func (r *Recommender) WithSeed(seed int64) *Recommender {
	r.mu.Lock()
	r.rng = rand.New(rand.NewSource(seed))
	r.mu.Unlock()
	return r
}

// requestRand 为单次请求派生独立随机源，避免多个请求共享 *rand.Rand。
func (r *Recommender) requestRand() *rand.Rand {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return rand.New(rand.NewSource(r.rng.Int63()))
}

// Recommend 返回用户的 k 个推荐。userID 为 0 表示未登录。
// 读取排名失败时记录日志并回退，不向调用方返回错误；只有 ctx 取消时返回错误。
func (r *Recommender) Recommend(ctx context.Context, userID int64, k int) (*Response, error) {
	start := time.Now()
	defer func() { metrics.ServeDuration.Observe(time.Since(start).Seconds()) }()

	if k <= 0 {
		k = DefaultK
	}
	catalog := r.catalog()
	rng := r.requestRand()

	var ranked []core.Recommendation
	if userID != 0 {
		rows, err := r.Store.List(ctx, userID, r.RankLimit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log := logging.Component("service")
			log.Warn().Err(err).Int64("user", userID).Msg("read recommendations failed, falling back")
		}
		ranked = rows
	}

	if len(ranked) == 0 {
		metrics.ServeRequestsTotal.WithLabelValues(TypeFallback).Inc()
		ids := rerank.Uniform(rng, catalog.IDs(), k)
		return &Response{Type: TypeFallback, UserID: userID, Items: r.items(catalog, ids, nil)}, nil
	}

	ids := make([]int64, len(ranked))
	scores := make(map[int64]float64, len(ranked))
	for i, row := range ranked {
		ids[i] = row.ItemID
		scores[row.ItemID] = row.Score
	}
	picked := r.Sampler.Sample(rng, ids, catalog.IDs(), k)
	metrics.ServeRequestsTotal.WithLabelValues(TypePersonalized).Inc()
	return &Response{Type: TypePersonalized, UserID: userID, Items: r.items(catalog, picked, scores)}, nil
}

func (r *Recommender) catalog() *core.Catalog {
	if r.Catalog == nil {
		return nil
	}
	return r.Catalog()
}

func (r *Recommender) items(catalog *core.Catalog, ids []int64, scores map[int64]float64) []Item {
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		it := Item{ItemID: id, Score: scores[id]}
		if p, ok := catalog.Get(id); ok {
			it.Name = p.Name
			it.Brand = p.Brand
			it.Price = p.Price
		}
		out = append(out, it)
	}
	return out
}

