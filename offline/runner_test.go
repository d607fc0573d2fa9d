package offline

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/rushteam/hybridrec/config"
	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/dataset"
	"github.com/rushteam/hybridrec/eval"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/ingest"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/rank"
	"github.com/rushteam/hybridrec/recall"
	"github.com/rushteam/hybridrec/store"
)

type fakeProvider struct {
	calls atomic.Int32
	fail  bool
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Train(_ context.Context, corpus core.Corpus, _ core.EmbeddingParams) (core.Embeddings, error) {
	p.calls.Add(1)
	if p.fail {
		return nil, errors.New("trainer down")
	}
	vectors := make(map[string][]float64)
	for _, sentence := range corpus {
		for _, tok := range sentence {
			if _, ok := vectors[tok]; ok {
				continue
			}
			h := float64(len(vectors))
			vectors[tok] = []float64{math.Cos(h), math.Sin(h)}
		}
	}
	return &model.Word2VecModel{WordVectors: vectors, Dim: 2}, nil
}

func testDataset() *ingest.Dataset {
	tree := core.NewCategoryTree()
	tree.Add(1, -1, "laptop")
	tree.Add(2, -1, "monitor")
	tree.Add(11, 1, "gaming")
	tree.Add(21, 2, "4k")
	brands := []string{"LG", "ASUS", "Dell", "HP", "MSI"}
	var products []core.Product
	for id := int64(1); id <= 40; id++ {
		fine := int64(11)
		if id > 20 {
			fine = 21
		}
		products = append(products, core.Product{ID: id, FineCategory: fine, TopCategory: -1, Brand: brands[id%5]})
	}

	var rows []core.Interaction
	for u := int64(1); u <= 20; u++ {
		for j := int64(0); j < 12; j++ {
			item := (u*7+j*3)%40 + 1
			rows = append(rows, core.NewInteraction(u, item, float64(j+1), float64(j%4), core.DefaultBetaExplicit))
		}
	}
	// 外部打分表覆盖部分未看过的物品
	var scores []ingest.ScoreRecord
	for u := int64(1); u <= 20; u++ {
		for k := int64(0); k < 5; k++ {
			scores = append(scores, ingest.ScoreRecord{UserID: u, ItemID: (u*11+k)%40 + 1, Score: float64(k + 1)})
		}
	}
	return &ingest.Dataset{
		Interactions: rows,
		Catalog:      core.NewCatalog(products, tree),
		Collab:       ingest.CollabTable(scores),
	}
}

func testConfig() *config.AppConfig {
	cfg := config.DefaultAppConfig()
	cfg.Workers = 2
	cfg.Candidates.Target = 30
	cfg.Eval.Windows = []int{10, 15}
	cfg.Eval.WindowSample = 0
	cfg.Eval.GridSample = 0
	return cfg
}

func TestRunnerRun(t *testing.T) {
	kv := store.NewMemoryStore()
	defer kv.Close()
	out := store.NewKVRecommendations(kv, "")
	provider := &fakeProvider{}
	holder := index.NewHolder(nil)
	ds := testDataset()

	r := &Runner{
		Config:   testConfig(),
		Provider: provider,
		Output:   out,
		Cache:    eval.NewWeightsCache(kv),
		Hot:      kv,
		Holder:   holder,
	}
	report, err := r.Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.RunID == "" {
		t.Error("empty run id")
	}
	// 两个窗口 + 最终训练
	if got := provider.calls.Load(); got != 3 {
		t.Errorf("provider calls = %d, want 3", got)
	}
	if report.Users != 20 {
		t.Errorf("users = %d, want 20", report.Users)
	}
	if len(report.Val) != 2 || report.Val[0].K != 10 || report.Val[1].K != 50 {
		t.Errorf("val metrics = %+v", report.Val)
	}

	snap := holder.Load()
	if snap == nil {
		t.Fatal("snapshot not published")
	}
	total := 0
	for u := int64(1); u <= 20; u++ {
		recs, err := out.List(context.Background(), u, 0)
		if err != nil {
			t.Fatalf("List(%d): %v", u, err)
		}
		if len(recs) == 0 || len(recs) > 10 {
			t.Errorf("user %d: %d rows", u, len(recs))
		}
		seen := snap.Seen(u)
		for i, rec := range recs {
			if rec.Rank != i+1 {
				t.Errorf("user %d row %d rank = %d", u, i, rec.Rank)
			}
			if seen.Contains(rec.ItemID) {
				t.Errorf("user %d: seen item %d persisted", u, rec.ItemID)
			}
			if rec.Score < 0 || rec.Score > 100 {
				t.Errorf("user %d: score %v", u, rec.Score)
			}
		}
		total += len(recs)
	}
	if total != report.Rows {
		t.Errorf("rows = %d, listed %d", report.Rows, total)
	}

	hot, err := kv.ZRange(context.Background(), "hot:items", 0, -1)
	if err != nil || len(hot) == 0 {
		t.Errorf("hot items not published: %v %v", hot, err)
	}

	// 第二次运行命中权重缓存，结果一致
	again, err := r.Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if again.Weights != report.Weights || again.Window != report.Window {
		t.Errorf("second run = %+v/%d, first = %+v/%d", again.Weights, again.Window, report.Weights, report.Window)
	}
}

func TestRunnerSkipSearch(t *testing.T) {
	cfg := testConfig()
	cfg.Eval.SkipSearch = true
	cfg.Eval.Window = 20
	cfg.Eval.Weights = model.Weights{Embed: 0.8, Collab: 0.2}
	provider := &fakeProvider{}
	r := &Runner{Config: cfg, Provider: provider, Output: store.NewKVRecommendations(store.NewMemoryStore(), "")}

	report, err := r.Run(context.Background(), testDataset())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Window != 20 || report.Weights != cfg.Eval.Weights {
		t.Errorf("report = %+v", report)
	}
	if got := provider.calls.Load(); got != 2 {
		t.Errorf("provider calls = %d, want 2", got)
	}
}

func TestRunnerErrors(t *testing.T) {
	tests := []struct {
		name   string
		ds     *ingest.Dataset
		fail   bool
		verify func(t *testing.T, err error)
	}{
		{
			name: "no interactions",
			ds:   &ingest.Dataset{Catalog: core.NewCatalog(nil, nil)},
			verify: func(t *testing.T, err error) {
				if !core.IsInvalidInput(err) {
					t.Errorf("err = %v, want invalid input", err)
				}
			},
		},
		{
			name: "trainer unavailable",
			ds:   testDataset(),
			fail: true,
			verify: func(t *testing.T, err error) {
				if !core.IsUnavailable(err) {
					t.Errorf("err = %v, want unavailable", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Runner{
				Config:   testConfig(),
				Provider: &fakeProvider{fail: tt.fail},
				Output:   store.NewKVRecommendations(store.NewMemoryStore(), ""),
			}
			_, err := r.Run(context.Background(), tt.ds)
			if err == nil {
				t.Fatal("expected error")
			}
			tt.verify(t, err)
		})
	}
}

func TestPopularityFallback(t *testing.T) {
	ds := testDataset()
	r := &Runner{Config: testConfig()}
	visible := map[int64][]core.Interaction{}
	for _, it := range ds.Interactions {
		visible[it.UserID] = append(visible[it.UserID], it)
	}
	snap, err := r.buildSnapshot(context.Background(), visible, ds.Catalog.IDs(), ds.Catalog)
	if err != nil {
		t.Fatalf("buildSnapshot: %v", err)
	}

	items := PopularityFallback(snap, 1, 10)
	if len(items) != 10 {
		t.Fatalf("got %d items", len(items))
	}
	seen := snap.Seen(1)
	for i, it := range items {
		if seen.Contains(it.ID) {
			t.Errorf("seen item %d in fallback", it.ID)
		}
		if i > 0 && it.Score > items[i-1].Score {
			t.Errorf("fallback not ordered by popularity at %d", i)
		}
	}
	if s := items[0].Score; s != 100 && s != 50 {
		t.Errorf("top fallback score = %v, want 100 (or 50 when flat)", s)
	}

	rows := Rows(1, append(items[:2:2], nil))
	if len(rows) != 2 || rows[1].Rank != 2 || rows[0].UserID != 1 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestGenerationUsesRunCandidates(t *testing.T) {
	cfg := testConfig()
	cfg.Candidates.Scenario = recall.ScenarioGlobal
	r := &Runner{Config: cfg}
	ds := testDataset()
	universe := dataset.Universe(ds.Interactions)
	snap := &index.Snapshot{
		Catalog:    ds.Catalog,
		Popularity: index.BuildPopularity(dataset.GroupByUser(ds.Interactions), universe, ds.Catalog, index.DefaultTailFrac),
	}

	pcfg, err := config.LoadPipeline(cfg.Pipeline)
	if err != nil {
		t.Fatalf("LoadPipeline: %v", err)
	}
	p, err := pcfg.BuildPipeline(config.DefaultFactory(), r.resources(snap, &rank.HybridScorer{Pop: snap.Popularity}, model.Weights{Embed: 1}))
	if err != nil {
		t.Fatalf("BuildPipeline: %v", err)
	}
	g, ok := p.Nodes[0].(*recall.CandidateGenerator)
	if !ok {
		t.Fatalf("first node = %T", p.Nodes[0])
	}
	if g.Target != 30 || g.Scenario != recall.ScenarioGlobal {
		t.Fatalf("generator target %d scenario %q, want 30 %q", g.Target, g.Scenario, recall.ScenarioGlobal)
	}
}
