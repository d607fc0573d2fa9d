package builders

import (
	"fmt"
	"time"

	"github.com/rushteam/hybridrec/config"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/filter"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/conv"
	"github.com/rushteam/hybridrec/rank"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/rerank"
)

func init() {
	config.Register("recall.candidates", BuildCandidatesNode)
	config.Register("recall.fanout", BuildFanoutNode)
	config.Register("recall.hot", BuildHotNode)
	config.Register("rank.hybrid", BuildHybridNode)
	config.Register("rank.topk", BuildTopKNode)
	config.Register("filter", BuildFilterNode)
	config.Register("rerank.scale", BuildScaleNode)
	config.Register("rerank.priority", BuildPriorityNode)
	config.Register("rerank.diversity", BuildDiversityNode)
	config.Register("rerank.topn", BuildTopNNode)
}

func snapshot(res pipeline.Resources) (*index.Snapshot, error) {
	return pipeline.Lookup[*index.Snapshot](res, config.ResourceSnapshot)
}

// BuildCandidatesNode 构建候选生成；有 candidates 依赖时 target / scenario / mix 以它为准，
// 让离线评估与批量生成使用同一组候选参数。
func BuildCandidatesNode(res pipeline.Resources, cfg map[string]any) (pipeline.Node, error) {
	snap, err := snapshot(res)
	if err != nil {
		return nil, err
	}
	g := recall.NewCandidateGenerator(snap.Popularity, snap.Neighbors)
	if cc, err := pipeline.Lookup[config.CandidatesConfig](res, config.ResourceCandidates); err == nil {
		g.Target = cc.Target
		g.Scenario = cc.Scenario
		g.Mix = cc.Mix
	}
	g.Target = conv.ConfigGetInt(cfg, "target", g.Target)
	g.Scenario = conv.ConfigGet(cfg, "scenario", g.Scenario)
	g.KeepFrac = conv.ConfigGetFloat64(cfg, "keep_frac", g.KeepFrac)
	g.GlobalTailFrac = conv.ConfigGetFloat64(cfg, "global_tail_frac", g.GlobalTailFrac)
	g.NeighborBase = conv.ConfigGetInt(cfg, "neighbor_base", g.NeighborBase)
	g.NeighborPerItem = conv.ConfigGetInt(cfg, "neighbor_per_item", g.NeighborPerItem)
	g.MaxConcurrent = conv.ConfigGetInt(cfg, "max_concurrent", g.MaxConcurrent)
	if mix, ok := cfg["mix"].(map[string]any); ok {
		g.Mix = recall.Mix{
			TopPopular:  conv.ConfigGetFloat64(mix, "top_popular", g.Mix.TopPopular),
			TopTail:     conv.ConfigGetFloat64(mix, "top_tail", g.Mix.TopTail),
			FinePopular: conv.ConfigGetFloat64(mix, "fine_popular", g.Mix.FinePopular),
			FineTail:    conv.ConfigGetFloat64(mix, "fine_tail", g.Mix.FineTail),
			Neighbors:   conv.ConfigGetFloat64(mix, "neighbors", g.Mix.Neighbors),
			GlobalTail:  conv.ConfigGetFloat64(mix, "global_tail", g.Mix.GlobalTail),
		}
	}
	if g.Target <= 0 {
		return nil, fmt.Errorf("target must be positive, got %d", g.Target)
	}
	return g, nil
}

// BuildFanoutNode 按 sources 列表组装召回池：
//
//	sources:
//	  - {type: category, level: top|fine, tail: false, quota: 360}
//	  - {type: neighbor, base_items: 8, per_item: 25, quota: 300}
//	  - {type: global_tail, frac: 0.4, quota: 60}
//	  - {type: hot, key: "hot:items", n: 100}
func BuildFanoutNode(res pipeline.Resources, cfg map[string]any) (pipeline.Node, error) {
	snap, err := snapshot(res)
	if err != nil {
		return nil, err
	}
	raw, ok := cfg["sources"].([]any)
	if !ok {
		return nil, fmt.Errorf("sources not found or invalid")
	}
	sources := make([]recall.Source, 0, len(raw))
	for i, sc := range raw {
		m, ok := sc.(map[string]any)
		if !ok {
			continue
		}
		salt := int64(i + 1)
		switch t := conv.ConfigGet(m, "type", ""); t {
		case "category":
			level := recall.LevelTop
			if conv.ConfigGet(m, "level", "top") == "fine" {
				level = recall.LevelFine
			}
			sources = append(sources, &recall.CategoryPool{
				Pop:   snap.Popularity,
				Level: level,
				Tail:  conv.ConfigGet(m, "tail", false),
				Quota: conv.ConfigGetInt(m, "quota", 0),
				Salt:  salt,
			})
		case "neighbor":
			sources = append(sources, &recall.Neighbor{
				Graph:     snap.Neighbors,
				BaseItems: conv.ConfigGetInt(m, "base_items", 8),
				PerItem:   conv.ConfigGetInt(m, "per_item", 25),
				Quota:     conv.ConfigGetInt(m, "quota", 0),
				Salt:      salt,
			})
		case "global_tail":
			sources = append(sources, &recall.GlobalTail{
				Pop:   snap.Popularity,
				Frac:  conv.ConfigGetFloat64(m, "frac", index.DefaultGlobalTailFrac),
				Quota: conv.ConfigGetInt(m, "quota", 0),
				Salt:  salt,
			})
		case "hot":
			hot, err := BuildHotNode(res, m)
			if err != nil {
				return nil, err
			}
			sources = append(sources, hot.(*recall.Hot))
		default:
			return nil, fmt.Errorf("unknown source type: %s", t)
		}
	}
	fanout := &recall.Fanout{
		Sources:       sources,
		Dedup:         conv.ConfigGet(cfg, "dedup", true),
		MergeStrategy: conv.ConfigGet(cfg, "merge_strategy", recall.MergeFirst),
	}
	if sec := conv.ConfigGetInt64(cfg, "timeout", 0); sec > 0 {
		fanout.Timeout = time.Duration(sec) * time.Second
	}
	if n := conv.ConfigGetInt64(cfg, "max_concurrent", 0); n > 0 {
		fanout.MaxConcurrent = int(n)
	}
	return fanout, nil
}

// BuildHotNode 构建全局热门召回；Store 依赖可选，没有时使用快照中的流行度。
func BuildHotNode(res pipeline.Resources, cfg map[string]any) (pipeline.Node, error) {
	snap, err := snapshot(res)
	if err != nil {
		return nil, err
	}
	hot := &recall.Hot{
		Pop: snap.Popularity,
		Key: conv.ConfigGet(cfg, "key", ""),
		N:   conv.ConfigGetInt(cfg, "n", 100),
	}
	if s, err := pipeline.Lookup[core.Store](res, config.ResourceStore); err == nil {
		hot.Store = s
	}
	return hot, nil
}

// BuildHybridNode 构建混合打分；权重取自依赖 weights，可被配置中的 w_embed / w_collab / w_pop 覆盖。
func BuildHybridNode(res pipeline.Resources, cfg map[string]any) (pipeline.Node, error) {
	snap, err := snapshot(res)
	if err != nil {
		return nil, err
	}
	scorer, err := pipeline.Lookup[*rank.HybridScorer](res, config.ResourceScorer)
	if err != nil {
		return nil, err
	}
	w, _ := pipeline.Lookup[model.Weights](res, config.ResourceWeights)
	w.Embed = conv.ConfigGetFloat64(cfg, "w_embed", w.Embed)
	w.Collab = conv.ConfigGetFloat64(cfg, "w_collab", w.Collab)
	w.Pop = conv.ConfigGetFloat64(cfg, "w_pop", w.Pop)
	return &rank.HybridNode{
		Scorer:  scorer,
		Model:   w.Model(),
		Visible: func(user int64) []core.Interaction { return snap.Visible[user] },
	}, nil
}

func BuildTopKNode(_ pipeline.Resources, cfg map[string]any) (pipeline.Node, error) {
	k := conv.ConfigGetInt(cfg, "k", rerank.DefaultScaleTopM)
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	return &rank.TopKNode{K: k}, nil
}

// BuildFilterNode 构建过滤节点：
//
//	filters:
//	  - {type: seen, source: snapshot|store, key_prefix: "user:seen"}
//	mode: mask
func BuildFilterNode(res pipeline.Resources, cfg map[string]any) (pipeline.Node, error) {
	raw, _ := cfg["filters"].([]any)
	filters := make([]filter.Filter, 0, len(raw))
	for _, fc := range raw {
		m, ok := fc.(map[string]any)
		if !ok {
			continue
		}
		switch t := conv.ConfigGet(m, "type", ""); t {
		case "seen":
			var seen filter.SeenStore
			switch src := conv.ConfigGet(m, "source", "snapshot"); src {
			case "store":
				s, err := pipeline.Lookup[core.Store](res, config.ResourceStore)
				if err != nil {
					return nil, err
				}
				seen = filter.NewStoreAdapter(s, conv.ConfigGet(m, "key_prefix", ""))
			case "snapshot":
				snap, err := snapshot(res)
				if err != nil {
					return nil, err
				}
				seen = filter.SeenFunc(snap.Seen)
			default:
				return nil, fmt.Errorf("unknown seen source: %s", src)
			}
			filters = append(filters, &filter.SeenFilter{Store: seen})
		default:
			return nil, fmt.Errorf("unknown filter type: %s", t)
		}
	}
	mode := conv.ConfigGet(cfg, "mode", filter.ModeDrop)
	if mode != filter.ModeDrop && mode != filter.ModeMask {
		return nil, fmt.Errorf("unknown filter mode: %s", mode)
	}
	return &filter.FilterNode{Filters: filters, Mode: mode}, nil
}

func BuildScaleNode(_ pipeline.Resources, cfg map[string]any) (pipeline.Node, error) {
	return &rerank.ScaleNode{TopM: conv.ConfigGetInt(cfg, "top_m", rerank.DefaultScaleTopM)}, nil
}

// BuildPriorityNode 构建阈值优先；未配置 threshold 时用默认阈值，显式的 0 表示全部优先。
func BuildPriorityNode(_ pipeline.Resources, cfg map[string]any) (pipeline.Node, error) {
	n := &rerank.PriorityNode{Rule: conv.ConfigGet(cfg, "rule", "")}
	if _, ok := cfg["threshold"]; ok {
		th := conv.ConfigGetFloat64(cfg, "threshold", rerank.DefaultThreshold)
		n.Threshold = &th
	}
	return n, nil
}

func BuildDiversityNode(res pipeline.Resources, cfg map[string]any) (pipeline.Node, error) {
	snap, err := snapshot(res)
	if err != nil {
		return nil, err
	}
	d := rerank.NewDiversity(snap.Catalog)
	d.N = conv.ConfigGetInt(cfg, "n", d.N)
	d.TopCap = conv.ConfigGetInt(cfg, "top_cap", d.TopCap)
	d.FineCap = conv.ConfigGetInt(cfg, "fine_cap", d.FineCap)
	d.BrandCap = conv.ConfigGetInt(cfg, "brand_cap", d.BrandCap)
	return d, nil
}

func BuildTopNNode(_ pipeline.Resources, cfg map[string]any) (pipeline.Node, error) {
	return &rerank.TopNNode{N: conv.ConfigGetInt(cfg, "n", 0)}, nil
}
