package eval

import (
	"context"
	"fmt"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/dataset"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/metrics"
	"github.com/rushteam/hybridrec/rank"
)

// WindowSearch 用少量 epoch 为每个候选窗口训练向量，在验证集抽样用户上按
// HR@K + Recall@K 选出最优窗口，再用 FinalEpochs 训练最终模型。同分时保留先遇到的窗口。
type WindowSearch struct {
	Provider core.EmbeddingProvider

	Windows     []int
	VectorSize  int
	Epochs      int
	FinalEpochs int
	Negative    int
	Seed        int64

	K       int
	Sample  int
	Weights model.Weights
}

func NewWindowSearch(provider core.EmbeddingProvider, seed int64) *WindowSearch {
	return &WindowSearch{
		Provider:    provider,
		Windows:     []int{10, 15, 20},
		VectorSize:  128,
		Epochs:      20,
		FinalEpochs: 90,
		Negative:    15,
		Seed:        seed,
		K:           10,
		Sample:      800,
		Weights:     model.Weights{Embed: 0.6, Collab: 0.4, Pop: 0},
	}
}

// WindowResult 是窗口搜索的产出：最优窗口与最终训练的物品向量矩阵。
type WindowResult struct {
	Window     int
	Score      float64
	Embeddings core.Embeddings
	Items      *model.ItemMatrix
}

func (s *WindowSearch) params(window, epochs int) core.EmbeddingParams {
	return core.EmbeddingParams{
		VectorSize: s.VectorSize,
		Window:     window,
		Epochs:     epochs,
		Negative:   s.Negative,
		Seed:       s.Seed,
	}
}

// Run 执行窗口搜索与最终训练。ev.Scorer 只提供流行度，向量部分由每个窗口的模型替换。
// 单个窗口训练失败会被跳过；全部失败或最终训练失败时返回错误。
func (s *WindowSearch) Run(ctx context.Context, ev *Evaluator, gt dataset.GroundTruth, corpus core.Corpus, items []int64) (WindowResult, error) {
	log := logging.Component("eval")
	defer metrics.ObserveStage("window_search")()

	best := WindowResult{Window: -1}
	for _, win := range s.Windows {
		emb, err := s.Provider.Train(ctx, corpus, s.params(win, s.Epochs))
		if err != nil {
			if ctx.Err() != nil {
				return WindowResult{}, ctx.Err()
			}
			log.Warn().Err(err).Int("window", win).Msg("window training failed, skipped")
			continue
		}
		matrix := model.NewItemMatrix(emb, items)
		scorer := &rank.HybridScorer{Items: matrix, Pop: ev.Scorer.Pop, Collab: ev.Scorer.Collab}
		m, err := ev.WithScorer(scorer).Evaluate(ctx, s.Weights, gt, s.K, s.Sample)
		if err != nil {
			return WindowResult{}, fmt.Errorf("window %d: %w", win, err)
		}
		score := m.HitRate + m.Recall
		log.Info().Int("window", win).Object("metrics", m).Float64("score", score).Msg("window row")
		if best.Window < 0 || score > best.Score {
			best = WindowResult{Window: win, Score: score}
		}
	}
	if best.Window < 0 {
		return WindowResult{}, fmt.Errorf("window search: no window trained: %w", model.ErrTrainerUnavailable)
	}
	log.Info().Int("window", best.Window).Float64("score", best.Score).Msg("best window")

	emb, err := s.Provider.Train(ctx, corpus, s.params(best.Window, s.FinalEpochs))
	if err != nil {
		return WindowResult{}, fmt.Errorf("final training: %w", err)
	}
	best.Embeddings = emb
	best.Items = model.NewItemMatrix(emb, items)
	return best, nil
}
