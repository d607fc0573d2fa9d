// Package eval 提供离线评估：HR / Recall / NDCG、权重网格搜索与窗口搜索。
package eval

import (
	"context"
	"math/rand"
	"runtime"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/hybridrec/dataset"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/pkg/sampling"
	"github.com/rushteam/hybridrec/rank"
)

// Evaluator 在固定候选集上评估混合打分。
// 用户向量与已看掩码都只来自 Split.Train，collab 来自打分器的外部打分表，候选集在评估期间不变。
type Evaluator struct {
	Scorer     *rank.HybridScorer
	Split      *dataset.Split
	Candidates map[int64][]int64
	Seed       int64
	Workers    int
}

// WithScorer 返回一个换了打分器的浅拷贝（窗口搜索中每个窗口一个向量模型）。
func (e *Evaluator) WithScorer(s *rank.HybridScorer) *Evaluator {
	cp := *e
	cp.Scorer = s
	return &cp
}

// Users 返回参与评估的用户：真值用户按 ID 升序，sample > 0 且用户更多时用 Seed 确定性抽样。
func (e *Evaluator) Users(gt dataset.GroundTruth, sample int) []int64 {
	users := gt.Users()
	if sample > 0 && len(users) > sample {
		users = sampling.Choice(rand.New(rand.NewSource(e.Seed)), users, sample)
	}
	return users
}

type userCase struct {
	features *rank.UserFeatures
	truth    mapset.Set[int64]
}

// Prepared 是预先计算好特征的评估集，同一批用户可以在多组权重下反复评估。
type Prepared struct {
	cases []userCase
}

// Prepare 并行计算抽样用户的候选特征；候选集为空的用户被跳过。
func (e *Evaluator) Prepare(ctx context.Context, gt dataset.GroundTruth, sample int) (*Prepared, error) {
	users := e.Users(gt, sample)
	cases := make([]*userCase, len(users))

	workers := e.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, u := range users {
		cands := e.Candidates[u]
		if len(cands) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cases[i] = &userCase{
				features: e.Scorer.Features(u, e.Split.Train[u], cands, e.Split.Seen(u)),
				truth:    gt[u],
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p := &Prepared{cases: make([]userCase, 0, len(cases))}
	for _, c := range cases {
		if c != nil {
			p.cases = append(p.cases, *c)
		}
	}
	return p, nil
}

// Users 返回实际参与评估（候选非空）的用户数。
func (p *Prepared) Users() int { return len(p.cases) }

// Evaluate 计算给定权重下每个 k 的平均指标（按用户顺序累加，结果与并发无关）。
func (p *Prepared) Evaluate(w model.Weights, ks ...int) []Metrics {
	maxK := 0
	for _, k := range ks {
		maxK = max(maxK, k)
	}
	out := make([]Metrics, len(ks))
	for i, k := range ks {
		out[i] = Metrics{K: k, Users: len(p.cases)}
	}
	if len(p.cases) == 0 {
		return out
	}

	for _, c := range p.cases {
		f := c.features
		idx := rank.TopK(f.IDs, f.Scores(w), maxK)
		top := make([]int64, len(idx))
		for j, x := range idx {
			top[j] = f.IDs[x]
		}
		for i, k := range ks {
			out[i].HitRate += HitRate(top, c.truth, k)
			out[i].Recall += Recall(top, c.truth, k)
			out[i].NDCG += NDCG(top, c.truth, k)
		}
	}
	n := float64(len(p.cases))
	for i := range out {
		out[i].HitRate /= n
		out[i].Recall /= n
		out[i].NDCG /= n
	}
	return out
}

// Evaluate 在 gt 上评估一组权重。
func (e *Evaluator) Evaluate(ctx context.Context, w model.Weights, gt dataset.GroundTruth, k, sample int) (Metrics, error) {
	p, err := e.Prepare(ctx, gt, sample)
	if err != nil {
		return Metrics{}, err
	}
	return p.Evaluate(w, k)[0], nil
}
