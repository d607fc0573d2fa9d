package rank

import (
	"context"
	"math"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// HybridScorer 计算混合打分的三路特征：
//
//	score = w_embed·cos(u,i) + w_pop·pop(i) + w_collab·collab(u,i)
//
// collab(u,i) 来自外部打分表 Collab（按用户最大值归一化），表中没有的物品为 0。
type HybridScorer struct {
	Items  *model.ItemMatrix
	Pop    *index.Popularity
	Collab core.CollabScores
}

// UserFeatures 是某个用户在一组候选上的特征矩阵（按候选顺序）。
// 同一用户在网格搜索中只计算一次特征，再按不同权重组合。
type UserFeatures struct {
	IDs    []int64
	Embed  []float64
	Pop    []float64
	Collab []float64
	Masked []bool
}

// Features 计算候选特征：用户向量取自 visible，collab 取自打分表；seen 中的物品被标记为掩码。
func (s *HybridScorer) Features(userID int64, visible []core.Interaction, candidates []int64, seen mapset.Set[int64]) *UserFeatures {
	n := len(candidates)
	f := &UserFeatures{
		IDs:    candidates,
		Embed:  make([]float64, n),
		Pop:    make([]float64, n),
		Collab: make([]float64, n),
		Masked: make([]bool, n),
	}
	user := s.Items.UserVector(visible)
	collab := s.Collab.User(userID)
	for i, id := range candidates {
		f.Embed[i] = s.Items.Cosine(user, id)
		f.Pop[i] = s.Pop.Score(id)
		f.Collab[i] = collab[id]
		if seen != nil && seen.Contains(id) {
			f.Masked[i] = true
		}
	}
	return f
}

// Scores 按权重组合特征，掩码位置为 -Inf。
func (f *UserFeatures) Scores(w model.Weights) []float64 {
	out := make([]float64, len(f.IDs))
	for i := range f.IDs {
		if f.Masked[i] {
			out[i] = math.Inf(-1)
			continue
		}
		out[i] = w.Embed*f.Embed[i] + w.Pop*f.Pop[i] + w.Collab*f.Collab[i]
	}
	return out
}

// AllMasked 表示候选全部被掩码（用户看过所有候选）。
func (f *UserFeatures) AllMasked() bool {
	for _, m := range f.Masked {
		if !m {
			return false
		}
	}
	return true
}

// VisibleFunc 返回用户可见的交互（评估时为 train，服务时为全量）。
type VisibleFunc func(userID int64) []core.Interaction

// HybridNode 是混合打分的排序 Node。
//   - 写入 Features：embed / pop / collab
//   - 写入 labels：rank_model
//   - 更新 item.Score 并按分数降序排序（同分按 ID 升序）
type HybridNode struct {
	Scorer  *HybridScorer
	Model   model.RankModel
	Visible VisibleFunc
}

func (n *HybridNode) Name() string        { return "rank.hybrid" }
func (n *HybridNode) Kind() pipeline.Kind { return pipeline.KindRank }

func (n *HybridNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if n.Model == nil || len(items) == 0 {
		return items, nil
	}

	var visible []core.Interaction
	if n.Visible != nil {
		visible = n.Visible(rctx.UserID)
	}
	f := n.Scorer.Features(rctx.UserID, visible, core.ItemIDs(items), nil)

	i := 0
	for _, it := range items {
		if it == nil {
			continue
		}
		it.Features[model.FeatureEmbed] = f.Embed[i]
		it.Features[model.FeaturePop] = f.Pop[i]
		it.Features[model.FeatureCollab] = f.Collab[i]
		i++

		score, err := n.Model.Predict(it.Features)
		if err != nil {
			return nil, err
		}
		it.Score = score
		it.PutLabel(utils.LabelRankModel, utils.NewLabel(n.Model.Name(), "rank"))
	}

	SortItems(items)
	return items, nil
}

// SortItems 按分数降序、ID 升序排序；nil 排在最后。
func SortItems(items []*core.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i] == nil {
			return false
		}
		if items[j] == nil {
			return true
		}
		return less(items[i].Score, items[i].ID, items[j].Score, items[j].ID)
	})
}

// less 是排序用的全序：分数高者在前，同分时 ID 小者在前，-Inf 总在最后。
func less(si float64, idi int64, sj float64, idj int64) bool {
	if si != sj {
		return si > sj
	}
	return idi < idj
}
