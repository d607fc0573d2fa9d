package eval

import (
	"context"
	"errors"
	"math"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/dataset"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/model"
	"github.com/rushteam/hybridrec/rank"
	"github.com/rushteam/hybridrec/store"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMetrics(t *testing.T) {
	gt := mapset.NewSet[int64](2, 9)
	tests := []struct {
		name             string
		top              []int64
		gt               mapset.Set[int64]
		k                int
		hr, recall, ndcg float64
	}{
		{name: "empty truth", top: []int64{1, 2}, gt: mapset.NewSet[int64](), k: 10},
		{name: "nil truth", top: []int64{1, 2}, gt: nil, k: 10},
		{name: "miss", top: []int64{1, 3}, gt: gt, k: 10},
		{
			name: "hit at rank 2", top: []int64{1, 2, 3}, gt: gt, k: 10,
			hr: 1, recall: 0.5, ndcg: (1 / math.Log2(3)) / (1 + 1/math.Log2(3)),
		},
		{
			name: "perfect", top: []int64{9, 2}, gt: gt, k: 2,
			hr: 1, recall: 1, ndcg: 1,
		},
		{name: "hit beyond k", top: []int64{1, 3, 2}, gt: gt, k: 2},
		{
			name: "idcg capped by k", top: []int64{2}, gt: gt, k: 1,
			hr: 1, recall: 0.5, ndcg: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HitRate(tt.top, tt.gt, tt.k); got != tt.hr {
				t.Errorf("HitRate = %v, want %v", got, tt.hr)
			}
			if got := Recall(tt.top, tt.gt, tt.k); !approx(got, tt.recall) {
				t.Errorf("Recall = %v, want %v", got, tt.recall)
			}
			if got := NDCG(tt.top, tt.gt, tt.k); !approx(got, tt.ndcg) {
				t.Errorf("NDCG = %v, want %v", got, tt.ndcg)
			}
		})
	}
}

func TestNDCGOrderSensitive(t *testing.T) {
	gt := mapset.NewSet[int64](5)
	early := NDCG([]int64{5, 1, 2}, gt, 3)
	late := NDCG([]int64{1, 2, 5}, gt, 3)
	if early <= late {
		t.Fatalf("early hit %v should beat late hit %v", early, late)
	}
	if HitRate([]int64{5, 1, 2}, gt, 3) != HitRate([]int64{1, 2, 5}, gt, 3) {
		t.Fatal("hit rate must not depend on order")
	}
}

func TestObjective(t *testing.T) {
	m := Metrics{HitRate: 1, Recall: 0.5, NDCG: 0.5}
	if !approx(m.Objective(), 1.65) {
		t.Fatalf("objective = %v", m.Objective())
	}
}

func rows(user int64, items ...int64) []core.Interaction {
	out := make([]core.Interaction, len(items))
	for i, id := range items {
		out[i] = core.Interaction{UserID: user, ItemID: id, Implicit: 1, Weight: 1}
	}
	return out
}

// scenario: 用户 1 看过物品 1，验证集为物品 2；用户 2 看过物品 3，验证集为物品 5（不在候选中）。
func scenario(vectors map[string][]float64) (*Evaluator, dataset.GroundTruth, []int64) {
	split := &dataset.Split{
		Train: map[int64][]core.Interaction{1: rows(1, 1), 2: rows(2, 3)},
		Val:   map[int64][]core.Interaction{1: rows(1, 2), 2: rows(2, 5)},
		Test:  map[int64][]core.Interaction{},
	}
	universe := []int64{1, 2, 3, 4, 5}
	pop := index.BuildPopularity(split.Train, universe, nil, index.DefaultTailFrac)
	emb := model.NewWord2VecModel(vectors, 2)
	ev := &Evaluator{
		Scorer: &rank.HybridScorer{Items: model.NewItemMatrix(emb, universe), Pop: pop},
		Split:  split,
		Candidates: map[int64][]int64{
			1: {1, 2, 3, 4},
			2: {1, 2, 3, 4},
			3: nil,
		},
		Seed:    42,
		Workers: 2,
	}
	return ev, split.GroundTruth(dataset.PartVal), universe
}

func goodVectors() map[string][]float64 {
	return map[string][]float64{
		core.ItemToken(1): {1, 0},
		core.ItemToken(2): {1, 0.1},
		core.ItemToken(3): {0, 1},
		core.ItemToken(4): {0, 1},
		core.ItemToken(5): {0, 1},
	}
}

func badVectors() map[string][]float64 {
	return map[string][]float64{
		core.ItemToken(1): {1, 0},
		core.ItemToken(2): {0, 1},
		core.ItemToken(3): {1, 0},
		core.ItemToken(4): {1, 0},
		core.ItemToken(5): {1, 0},
	}
}

func TestEvaluatorCollabWeight(t *testing.T) {
	ev, gt, _ := scenario(badVectors())
	// 外部打分表把用户 1 的验证物品排在前面，向量则把它排在最后
	ev.Scorer.Collab = core.CollabScores{1: {2: 1, 1: 0.8}}

	tests := []struct {
		name string
		w    model.Weights
		hr   float64
	}{
		{name: "collab off", w: model.Weights{Embed: 0.5}, hr: 0},
		{name: "collab on", w: model.Weights{Embed: 0.5, Collab: 1}, hr: 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ev.Evaluate(context.Background(), tt.w, gt, 1, 0)
			if err != nil {
				t.Fatal(err)
			}
			if !approx(m.HitRate, tt.hr) {
				t.Fatalf("HR@1 = %v, want %v", m.HitRate, tt.hr)
			}
		})
	}
}

func TestEvaluator(t *testing.T) {
	ev, gt, _ := scenario(goodVectors())
	w := model.Weights{Embed: 1}

	m, err := ev.Evaluate(context.Background(), w, gt, 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if m.Users != 2 {
		t.Fatalf("users = %d, want 2", m.Users)
	}
	if !approx(m.HitRate, 0.5) || !approx(m.Recall, 0.5) || !approx(m.NDCG, 0.5) {
		t.Fatalf("metrics = %+v", m)
	}

	p, err := ev.Prepare(context.Background(), gt, 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, m := range p.Evaluate(w, 1, 10) {
		if m.HitRate < 0 || m.HitRate > 1 {
			t.Fatalf("hit rate out of range: %+v", m)
		}
	}
}

func TestEvaluatorSamplingDeterministic(t *testing.T) {
	gt := dataset.GroundTruth{}
	for u := int64(1); u <= 50; u++ {
		gt[u] = mapset.NewSet[int64](u)
	}
	ev := &Evaluator{Seed: 7}
	a := ev.Users(gt, 10)
	b := ev.Users(gt, 10)
	if len(a) != 10 {
		t.Fatalf("len = %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sampling not deterministic: %v vs %v", a, b)
		}
	}
	if len(ev.Users(gt, 0)) != 50 {
		t.Fatal("sample 0 should keep every user")
	}
}

func TestGridSearch(t *testing.T) {
	ctx := context.Background()
	ev, gt, _ := scenario(goodVectors())
	mem := store.NewMemoryStore()
	defer mem.Close()

	s := NewGridSearch(NewWeightsCache(mem))
	s.K = 1
	fp, err := s.Fingerprint(map[string]int{"users": 2})
	if err != nil {
		t.Fatal(err)
	}

	best, err := s.Run(ctx, ev, gt, fp)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := ev.Prepare(ctx, gt, s.Sample)
	for _, w := range s.Grid.Combos() {
		if obj := p.Evaluate(w, s.K)[0].Objective(); obj > best.Objective+1e-12 {
			t.Fatalf("combo %+v has objective %v > chosen %v", w, obj, best.Objective)
		}
	}

	cached, ok, err := s.Cache.Load(ctx, fp)
	if err != nil || !ok {
		t.Fatalf("cache miss after run: %v", err)
	}
	if cached.Weights != best.Weights || !approx(cached.Objective, best.Objective) {
		t.Fatalf("cached %+v, want %+v", cached, best)
	}

	// 缓存命中时不再评估：换一个不可用的评估器也能返回同样的结果
	again, err := s.Run(ctx, &Evaluator{}, gt, fp)
	if err != nil {
		t.Fatal(err)
	}
	if again.Weights != best.Weights {
		t.Fatalf("reload = %+v, want %+v", again.Weights, best.Weights)
	}
}

func TestGridSearchFirstBestWins(t *testing.T) {
	ev, gt, _ := scenario(goodVectors())
	s := &GridSearch{
		Grid: Grid{Embed: []float64{1, 2, 3}, Collab: []float64{0}, Pop: []float64{0}},
		K:    1,
	}
	best, err := s.Run(context.Background(), ev, gt, "")
	if err != nil {
		t.Fatal(err)
	}
	if best.Embed != 1 {
		t.Fatalf("tie should keep first combo, got %+v", best.Weights)
	}
}

func TestGridCombos(t *testing.T) {
	combos := DefaultGrid().Combos()
	if len(combos) != 27 {
		t.Fatalf("len = %d, want 27", len(combos))
	}
	first, second := combos[0], combos[1]
	if first != (model.Weights{Embed: 0.4, Collab: 0.2, Pop: 0}) || second.Pop != 0.2 {
		t.Fatalf("unexpected order: %+v %+v", first, second)
	}
}

func TestFingerprintStable(t *testing.T) {
	a, _ := Fingerprint(map[string]any{"x": 1, "y": []int{1, 2}})
	b, _ := Fingerprint(map[string]any{"y": []int{1, 2}, "x": 1})
	c, _ := Fingerprint(map[string]any{"x": 2, "y": []int{1, 2}})
	if a != b || a == c {
		t.Fatalf("fingerprints: %s %s %s", a, b, c)
	}
}

type fakeProvider struct {
	vectors map[int]map[string][]float64
	fail    map[int]bool
	calls   []core.EmbeddingParams
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Train(_ context.Context, _ core.Corpus, params core.EmbeddingParams) (core.Embeddings, error) {
	p.calls = append(p.calls, params)
	if p.fail[params.Window] {
		return nil, errors.New("trainer down")
	}
	return model.NewWord2VecModel(p.vectors[params.Window], 2), nil
}

func TestWindowSearch(t *testing.T) {
	ev, gt, universe := scenario(badVectors())
	provider := &fakeProvider{
		vectors: map[int]map[string][]float64{10: badVectors(), 15: goodVectors(), 20: badVectors()},
	}
	s := NewWindowSearch(provider, 42)
	s.K = 1
	s.Weights = model.Weights{Embed: 1}

	res, err := s.Run(context.Background(), ev, gt, nil, universe)
	if err != nil {
		t.Fatal(err)
	}
	if res.Window != 15 {
		t.Fatalf("window = %d, want 15", res.Window)
	}
	if len(provider.calls) != 4 {
		t.Fatalf("train calls = %d, want 3 windows + final", len(provider.calls))
	}
	final := provider.calls[3]
	if final.Window != 15 || final.Epochs != 90 || final.VectorSize != 128 || final.Negative != 15 {
		t.Fatalf("final params = %+v", final)
	}
	if res.Items == nil || res.Items.Len() == 0 {
		t.Fatal("final item matrix missing")
	}
}

func TestWindowSearchAllFail(t *testing.T) {
	ev, gt, universe := scenario(goodVectors())
	provider := &fakeProvider{fail: map[int]bool{10: true, 15: true, 20: true}}
	_, err := NewWindowSearch(provider, 1).Run(context.Background(), ev, gt, nil, universe)
	if !core.IsUnavailable(err) {
		t.Fatalf("err = %v, want unavailable", err)
	}
}
