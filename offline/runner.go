// Package offline 串起离线批任务：切分 → 索引 → 共现 → 候选 → 向量窗口搜索 →
// 权重网格搜索 → 最终评估 → 全量快照 → 逐用户生成并持久化推荐结果。
package offline

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/hybridrec/config"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/dataset"
	"github.com/rushteam/hybridrec/eval"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/ingest"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/pipeline"
	"github.com/rushteam/hybridrec/pkg/logging"
	"github.com/rushteam/hybridrec/pkg/metrics"
	"github.com/rushteam/hybridrec/rank"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/rerank"

	_ "github.com/rushteam/hybridrec/config/builders"
)

// DefaultWindow 是跳过窗口搜索时使用的窗口。
const DefaultWindow = 15

// Runner 执行一次完整的离线批任务。Cache / Hot / Holder 可为空。
type Runner struct {
	Config   *config.AppConfig
	Provider core.EmbeddingProvider
	Output   core.RecommendationStore

	Cache  *eval.WeightsCache
	Hot    core.KeyValueStore
	Holder *index.Holder
}

// Report 是一次运行的摘要。
type Report struct {
	RunID     string
	Window    int
	Weights   model.Weights
	Val       []eval.Metrics
	Test      []eval.Metrics
	Users     int
	Rows      int
	Fallbacks int
	Duration  time.Duration
}

func (r *Runner) workers() int {
	if r.Config.Workers > 0 {
		return r.Config.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Run 对 ds 执行离线流程，成功时整体替换推荐结果并发布新的服务快照。
func (r *Runner) Run(ctx context.Context, ds *ingest.Dataset) (*Report, error) {
	cfg := r.Config
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	log := logging.Component("offline").With().Str("run_id", report.RunID).Logger()
	log.Info().Int("interactions", len(ds.Interactions)).Int("products", ds.Catalog.Len()).Int("collab_scores", ds.Collab.Len()).Msg("offline run started")

	if len(ds.Interactions) == 0 {
		return nil, core.NewDomainError(core.ModuleOffline, core.ErrorCodeInvalidInput, "offline: no interactions")
	}

	done := metrics.ObserveStage("split")
	splitter := dataset.Splitter{KTest: cfg.Split.KTest, KVal: cfg.Split.KVal, MinTrain: cfg.Split.MinTrain}
	split := splitter.Split(ds.Interactions)
	universe := dataset.Universe(ds.Interactions)
	done()
	train, val, test := split.Stats()
	log.Info().Int("train", train).Int("val", val).Int("test", test).Int("items", len(universe)).Msg("split done")

	// 评估阶段只看 train
	evalSnap, err := r.buildSnapshot(ctx, split.Train, universe, ds.Catalog)
	if err != nil {
		return nil, err
	}
	valGT := split.GroundTruth(dataset.PartVal)
	testGT := split.GroundTruth(dataset.PartTest)

	candidates, err := r.candidates(ctx, evalSnap, evalUsers(valGT, testGT))
	if err != nil {
		return nil, fmt.Errorf("candidates: %w", err)
	}
	recall.Coverage(candidates, valGT, dataset.PartVal.String()).Log()
	recall.Coverage(candidates, testGT, dataset.PartTest.String()).Log()

	ev := &eval.Evaluator{
		Scorer:     &rank.HybridScorer{Pop: evalSnap.Popularity, Collab: ds.Collab},
		Split:      split,
		Candidates: candidates,
		Seed:       cfg.Seed,
		Workers:    r.workers(),
	}

	done = metrics.ObserveStage("corpus")
	corpus := model.DefaultCorpusBuilder(cfg.Seed).Build(split.Train, universe)
	done()
	log.Info().Int("sentences", len(corpus)).Msg("corpus built")

	items, window, err := r.embed(ctx, ev, valGT, corpus, universe)
	if err != nil {
		return nil, err
	}
	report.Window = window
	ev = ev.WithScorer(&rank.HybridScorer{Items: items, Pop: evalSnap.Popularity, Collab: ds.Collab})

	weights, err := r.weights(ctx, ev, valGT, ds, window)
	if err != nil {
		return nil, err
	}
	report.Weights = weights

	if report.Val, err = r.confirm(ctx, ev, valGT, weights, dataset.PartVal); err != nil {
		return nil, err
	}
	if report.Test, err = r.confirm(ctx, ev, testGT, weights, dataset.PartTest); err != nil {
		return nil, err
	}

	// 服务快照基于全量日志
	all := dataset.GroupByUser(ds.Interactions)
	snap, err := r.buildSnapshot(ctx, all, universe, ds.Catalog)
	if err != nil {
		return nil, err
	}
	scorer := &rank.HybridScorer{Items: items, Pop: snap.Popularity, Collab: ds.Collab}

	rows, fallbacks, err := r.generate(ctx, snap, scorer, weights)
	if err != nil {
		return nil, err
	}
	report.Users = len(all)
	report.Rows = len(rows)
	report.Fallbacks = fallbacks

	done = metrics.ObserveStage("persist")
	err = r.Output.Replace(ctx, rows)
	done()
	if err != nil {
		return nil, fmt.Errorf("persist recommendations: %w", err)
	}
	if r.Hot != nil && cfg.Output.HotKey != "" {
		if err := recall.PublishHot(ctx, r.Hot, cfg.Output.HotKey, snap.Popularity, cfg.Output.HotN); err != nil {
			log.Warn().Err(err).Msg("hot items not published")
		}
	}
	if r.Holder != nil {
		r.Holder.Swap(snap)
	}

	report.Duration = time.Since(start)
	log.Info().
		Int("users", report.Users).
		Int("rows", report.Rows).
		Int("fallbacks", report.Fallbacks).
		Int("window", report.Window).
		Dur("duration", report.Duration).
		Msg("offline run finished")
	return report, nil
}

// buildSnapshot 从可见交互构建流行度、画像与邻居图。
func (r *Runner) buildSnapshot(ctx context.Context, visible map[int64][]core.Interaction, universe []int64, catalog *core.Catalog) (*index.Snapshot, error) {
	done := metrics.ObserveStage("index")
	pop := index.BuildPopularity(visible, universe, catalog, index.DefaultTailFrac)
	profiles := index.BuildProfiles(visible, catalog, index.DefaultProfileConfig())
	done()

	miner := recall.DefaultCooccurrenceMiner(r.Config.Seed)
	miner.Workers = r.workers()
	neighbors, _, err := miner.Mine(ctx, visible, universe)
	if err != nil {
		return nil, fmt.Errorf("mine co-occurrence: %w", err)
	}
	return &index.Snapshot{
		Catalog:    catalog,
		Popularity: pop,
		Profiles:   profiles,
		Neighbors:  neighbors,
		Visible:    visible,
	}, nil
}

func (r *Runner) generator(snap *index.Snapshot) *recall.CandidateGenerator {
	g := recall.NewCandidateGenerator(snap.Popularity, snap.Neighbors)
	g.Target = r.Config.Candidates.Target
	g.Mix = r.Config.Candidates.Mix
	g.Scenario = r.Config.Candidates.Scenario
	return g
}

// candidates 并行为 users 生成候选；单个用户失败时记录并跳过。
func (r *Runner) candidates(ctx context.Context, snap *index.Snapshot, users []int64) (map[int64][]int64, error) {
	defer metrics.ObserveStage("candidates")()
	log := logging.Component("offline")
	gen := r.generator(snap)

	out := make([][]int64, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, u := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rctx := &core.RecommendContext{UserID: u, User: snap.Profile(u), Seed: r.Config.Seed}
			ids, err := gen.Generate(gctx, rctx)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn().Err(err).Int64("user", u).Msg("candidate generation failed, user skipped")
				return nil
			}
			metrics.CandidateSetSize.Observe(float64(len(ids)))
			out[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cands := make(map[int64][]int64, len(users))
	total := 0
	for i, u := range users {
		if len(out[i]) > 0 {
			cands[u] = out[i]
			total += len(out[i])
		}
	}
	avg := 0.0
	if len(cands) > 0 {
		avg = float64(total) / float64(len(cands))
	}
	log.Info().Int("users", len(cands)).Float64("avg_candidates", avg).Msg("candidates built")
	return cands, nil
}

// embed 执行窗口搜索（或直接用配置的窗口训练），返回最终物品向量矩阵与窗口。
func (r *Runner) embed(ctx context.Context, ev *eval.Evaluator, gt dataset.GroundTruth, corpus core.Corpus, universe []int64) (*model.ItemMatrix, int, error) {
	cfg := r.Config.Eval
	ws := eval.NewWindowSearch(r.Provider, r.Config.Seed)
	ws.Windows = cfg.Windows
	ws.Sample = cfg.WindowSample

	if cfg.SkipSearch {
		window := cfg.Window
		if window <= 0 {
			window = DefaultWindow
		}
		ws.Windows = []int{window}
	}
	res, err := ws.Run(ctx, ev, gt, corpus, universe)
	if err != nil {
		return nil, 0, fmt.Errorf("embedding: %w", err)
	}
	return res.Items, res.Window, nil
}

// weightsInputs 是权重缓存指纹的输入描述：数据规模、窗口、种子与候选配置。
type weightsInputs struct {
	Interactions int                     `json:"interactions"`
	Items        int                     `json:"items"`
	WeightSum    float64                 `json:"weight_sum"`
	CollabRows   int                     `json:"collab_rows"`
	Window       int                     `json:"window"`
	Seed         int64                   `json:"seed"`
	Candidates   config.CandidatesConfig `json:"candidates"`
	Split        config.SplitConfig      `json:"split"`
}

func (r *Runner) weights(ctx context.Context, ev *eval.Evaluator, gt dataset.GroundTruth, ds *ingest.Dataset, window int) (model.Weights, error) {
	cfg := r.Config.Eval
	if cfg.SkipSearch {
		return cfg.Weights, nil
	}
	gs := eval.NewGridSearch(r.Cache)
	gs.Grid = cfg.Grid
	gs.Sample = cfg.GridSample

	fp := ""
	if r.Cache != nil {
		in := weightsInputs{
			Interactions: len(ds.Interactions),
			Items:        ds.Catalog.Len(),
			CollabRows:   ds.Collab.Len(),
			Window:       window,
			Seed:         r.Config.Seed,
			Candidates:   r.Config.Candidates,
			Split:        r.Config.Split,
		}
		for _, it := range ds.Interactions {
			in.WeightSum += it.Weight
		}
		var err error
		if fp, err = gs.Fingerprint(in); err != nil {
			return model.Weights{}, fmt.Errorf("weights fingerprint: %w", err)
		}
	}
	res, err := gs.Run(ctx, ev, gt, fp)
	if err != nil {
		return model.Weights{}, err
	}
	return res.Weights, nil
}

// confirm 在完整分区上按每个 K 复核选中的权重。
func (r *Runner) confirm(ctx context.Context, ev *eval.Evaluator, gt dataset.GroundTruth, w model.Weights, part dataset.Part) ([]eval.Metrics, error) {
	prepared, err := ev.Prepare(ctx, gt, 0)
	if err != nil {
		return nil, fmt.Errorf("confirm %s: %w", part, err)
	}
	ks := r.Config.Eval.Ks
	if len(ks) == 0 {
		ks = eval.DefaultKs
	}
	ms := prepared.Evaluate(w, ks...)
	log := logging.Component("eval")
	for _, m := range ms {
		m.Record(part.String())
		log.Info().Str("split", part.String()).Object("metrics", m).Msg("final metrics")
	}
	return ms, nil
}

// resources 是批量生成流水线的依赖；候选参数与评估阶段共用 Config.Candidates。
func (r *Runner) resources(snap *index.Snapshot, scorer *rank.HybridScorer, w model.Weights) pipeline.Resources {
	res := pipeline.Resources{
		config.ResourceSnapshot:   snap,
		config.ResourceScorer:     scorer,
		config.ResourceWeights:    w,
		config.ResourceCandidates: r.Config.Candidates,
	}
	if r.Hot != nil {
		res[config.ResourceStore] = r.Hot
	}
	return res
}

// generate 对全部用户运行推荐流水线，返回待持久化的行与回退用户数。
func (r *Runner) generate(ctx context.Context, snap *index.Snapshot, scorer *rank.HybridScorer, w model.Weights) ([]core.Recommendation, int, error) {
	defer metrics.ObserveStage("generate")()
	log := logging.Component("offline")

	pcfg, err := config.LoadPipeline(r.Config.Pipeline)
	if err != nil {
		return nil, 0, fmt.Errorf("load pipeline: %w", err)
	}
	p, err := pcfg.BuildPipeline(config.DefaultFactory(), r.resources(snap, scorer, w))
	if err != nil {
		return nil, 0, fmt.Errorf("build pipeline: %w", err)
	}

	users := dataset.SortedUsers(snap.Visible)
	perUser := make([][]core.Recommendation, len(users))
	var (
		mu        sync.Mutex
		fallbacks int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers())
	for i, u := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rctx := &core.RecommendContext{UserID: u, User: snap.Profile(u), Seed: r.Config.Seed}
			out, err := p.Run(gctx, rctx, nil)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Warn().Err(err).Int64("user", u).Msg("pipeline failed, using popularity fallback")
				out = nil
			}
			if len(out) == 0 {
				out = PopularityFallback(snap, u, rerank.DefaultTopN)
				mu.Lock()
				fallbacks++
				mu.Unlock()
			}
			perUser[i] = Rows(u, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	var rows []core.Recommendation
	for _, list := range perUser {
		rows = append(rows, list...)
	}
	return rows, fallbacks, nil
}

// evalUsers 返回各真值分区用户的并集（升序）。
func evalUsers(gts ...dataset.GroundTruth) []int64 {
	set := mapset.NewThreadUnsafeSet[int64]()
	for _, gt := range gts {
		for u := range gt {
			set.Add(u)
		}
	}
	users := set.ToSlice()
	slices.Sort(users)
	return users
}
