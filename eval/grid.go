package eval

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rushteam/hybridrec/dataset"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/metrics"
)

// Grid 是权重网格，遍历顺序为 Embed → Collab → Pop（外层到内层）。
type Grid struct {
	Embed  []float64 `json:"w_embed" koanf:"embed"`
	Collab []float64 `json:"w_collab" koanf:"collab"`
	Pop    []float64 `json:"w_pop" koanf:"pop"`
}

func DefaultGrid() Grid {
	return Grid{
		Embed:  []float64{0.4, 0.6, 0.8},
		Collab: []float64{0.2, 0.4, 0.6},
		Pop:    []float64{0.0, 0.2, 0.4},
	}
}

func (g Grid) Combos() []model.Weights {
	out := make([]model.Weights, 0, len(g.Embed)*len(g.Collab)*len(g.Pop))
	for _, e := range g.Embed {
		for _, c := range g.Collab {
			for _, p := range g.Pop {
				out = append(out, model.Weights{Embed: e, Collab: c, Pop: p})
			}
		}
	}
	return out
}

// GridResult 是选中的权重及其验证集指标，也是缓存的内容。
type GridResult struct {
	model.Weights
	Objective float64 `json:"obj"`
	Metrics   Metrics `json:"m"`
}

// GridSearch 在验证集抽样用户上遍历权重网格，目标为 HR@K + Recall@K + 0.3·NDCG@K。
// 目标相同时保留先遇到的组合。Cache 非空时按指纹读写结果。
type GridSearch struct {
	Grid   Grid
	K      int
	Sample int
	Cache  *WeightsCache
}

func NewGridSearch(cache *WeightsCache) *GridSearch {
	return &GridSearch{Grid: DefaultGrid(), K: 10, Sample: 1200, Cache: cache}
}

// Fingerprint 组合网格配置与调用方提供的输入描述。
func (s *GridSearch) Fingerprint(inputs any) (string, error) {
	return Fingerprint(struct {
		Grid   Grid `json:"grid"`
		K      int  `json:"k"`
		Sample int  `json:"sample"`
		Inputs any  `json:"inputs"`
	}{s.Grid, s.K, s.Sample, inputs})
}

// Run 返回最优权重；fingerprint 为空时不使用缓存。
func (s *GridSearch) Run(ctx context.Context, ev *Evaluator, gt dataset.GroundTruth, fingerprint string) (GridResult, error) {
	log := logging.Component("eval")
	defer metrics.ObserveStage("grid_search")()

	if fingerprint != "" {
		cached, ok, err := s.Cache.Load(ctx, fingerprint)
		if err != nil {
			log.Warn().Err(err).Msg("weights cache unreadable, searching again")
		} else if ok {
			log.Info().Str("fingerprint", fingerprint).Float64("obj", cached.Objective).
				Object("weights", weightsLog(cached.Weights)).Msg("loaded best weights from cache")
			metrics.GridObjective.Set(cached.Objective)
			return cached, nil
		}
	}

	combos := s.Grid.Combos()
	if len(combos) == 0 {
		return GridResult{}, fmt.Errorf("grid search: empty grid")
	}
	prepared, err := ev.Prepare(ctx, gt, s.Sample)
	if err != nil {
		return GridResult{}, fmt.Errorf("grid search: %w", err)
	}

	var best GridResult
	found := false
	for _, w := range combos {
		m := prepared.Evaluate(w, s.K)[0]
		obj := m.Objective()
		log.Info().Object("weights", weightsLog(w)).Object("metrics", m).Float64("obj", obj).Msg("grid row")
		if !found || obj > best.Objective {
			best = GridResult{Weights: w, Objective: obj, Metrics: m}
			found = true
		}
	}

	log.Info().Object("weights", weightsLog(best.Weights)).Float64("obj", best.Objective).Msg("chosen best weights")
	metrics.GridObjective.Set(best.Objective)

	if fingerprint != "" {
		if err := s.Cache.Save(ctx, fingerprint, best); err != nil {
			log.Warn().Err(err).Msg("weights cache not saved")
		}
	}
	return best, nil
}

type weightsLog model.Weights

func (w weightsLog) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("embed", w.Embed).Float64("collab", w.Collab).Float64("pop", w.Pop)
}
