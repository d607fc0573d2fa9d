package main

import (
	"context"
	"fmt"

	"github.com/rushteam/hybridrec/config"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/eval"
	"github.com/rushteam/hybridrec/ingest"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/store"
)

func loadDataset(ctx context.Context, cfg *config.AppConfig) (*ingest.Dataset, error) {
	switch cfg.Input.Source {
	case "sql":
		db, err := store.OpenSQL(cfg.Input.SQL)
		if err != nil {
			return nil, err
		}
		src := ingest.NewSQLSource(db)
		src.Tables = cfg.Input.Tables
		return src.Load(ctx, cfg.BetaExplicit)
	default:
		return ingest.LoadFiles(ctx, cfg.Input.Files, cfg.BetaExplicit)
	}
}

// output 是推荐结果后端；KV 为空表示后端不支持热门榜单。
type output struct {
	Recommendations core.RecommendationStore
	KV              core.KeyValueStore
	close           func() error
}

func (o *output) Close() error {
	if o.close == nil {
		return nil
	}
	return o.close()
}

func openOutput(ctx context.Context, cfg *config.AppConfig) (*output, error) {
	oc := cfg.Output
	switch oc.Backend {
	case "redis":
		rs, err := store.NewRedisStore(ctx, oc.Redis)
		if err != nil {
			return nil, err
		}
		recs := store.NewKVRecommendations(rs, oc.KeyPrefix)
		recs.TTL = oc.TTL
		return &output{Recommendations: recs, KV: rs, close: rs.Close}, nil
	case "sql":
		db, err := store.OpenSQL(oc.SQL)
		if err != nil {
			return nil, err
		}
		recs, err := store.NewSQLRecommendations(db)
		if err != nil {
			return nil, err
		}
		return &output{Recommendations: recs, close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		}}, nil
	default:
		ms := store.NewMemoryStore()
		recs := store.NewKVRecommendations(ms, oc.KeyPrefix)
		return &output{Recommendations: recs, KV: ms, close: ms.Close}, nil
	}
}

type weightsCache struct {
	*eval.WeightsCache
	store *store.BadgerStore
}

func (c *weightsCache) Close() error { return c.store.Close() }

// openWeightsCache 打开 Badger 缓存；cache.dir 为空时使用内存模式（仅本次运行有效）。
func openWeightsCache(cfg *config.AppConfig) (*weightsCache, error) {
	bs, err := store.OpenBadgerStore(cfg.Cache.Dir)
	if err != nil {
		return nil, fmt.Errorf("weights cache: %w", err)
	}
	return &weightsCache{WeightsCache: eval.NewWeightsCache(bs), store: bs}, nil
}

func newProvider(cfg *config.AppConfig) core.EmbeddingProvider {
	ec := cfg.Embedding
	if ec.Provider == "file" {
		return &model.FileProvider{Path: ec.Path}
	}
	return model.NewRPCTrainer(ec.Endpoint, ec.Timeout, ec.MaxFailures)
}
