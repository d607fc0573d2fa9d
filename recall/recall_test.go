package recall

import (
	"context"
	"errors"
	"testing"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/dataset"
	"github.com/rushteam/hybridrec/index"
	"github.com/rushteam/hybridrec/pkg/sampling"
	"github.com/rushteam/hybridrec/pkg/utils"
)

// newTestPop 构造 n 个物品，流行度随 ID 递增；根类目 1..3，叶子类目 10..15。
func newTestPop(n int) *index.Popularity {
	tree := core.NewCategoryTree()
	for c := int64(1); c <= 3; c++ {
		tree.Add(c, -1, "")
	}
	for f := int64(10); f < 16; f++ {
		tree.Add(f, (f%3)+1, "")
	}
	products := make([]core.Product, 0, n)
	rows := make([]core.Interaction, 0, n)
	universe := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		id := int64(i)
		products = append(products, core.Product{ID: id, FineCategory: 10 + id%6, TopCategory: -1})
		rows = append(rows, core.Interaction{UserID: 1, ItemID: id, Weight: float64(i)})
		universe = append(universe, id)
	}
	catalog := core.NewCatalog(products, tree)
	return index.BuildPopularity(map[int64][]core.Interaction{1: rows}, universe, catalog, index.DefaultTailFrac)
}

func assertSortedUnique(t *testing.T, ids []int64) {
	t.Helper()
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not strictly ascending at %d: %d <= %d", i, ids[i], ids[i-1])
		}
	}
}

func idRange(from, to int) []int64 {
	out := make([]int64, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, int64(i))
	}
	return out
}

func TestAssemble(t *testing.T) {
	tests := []struct {
		name     string
		universe int
		union    []int64
		verify   func(t *testing.T, got []int64)
	}{
		{
			name:     "pads with most popular",
			universe: 2000,
			union:    idRange(1, 1000),
			verify: func(t *testing.T, got []int64) {
				if len(got) != 1200 {
					t.Fatalf("len = %d, want 1200", len(got))
				}
				in := map[int64]bool{}
				for _, id := range got {
					in[id] = true
				}
				for i := int64(1); i <= 1000; i++ {
					if !in[i] {
						t.Fatalf("union item %d dropped", i)
					}
				}
				for i := int64(1801); i <= 2000; i++ {
					if !in[i] {
						t.Fatalf("popular item %d not padded", i)
					}
				}
			},
		},
		{
			name:     "trims keeping popular head",
			universe: 3000,
			union:    idRange(1, 2500),
			verify: func(t *testing.T, got []int64) {
				if len(got) != 1200 {
					t.Fatalf("len = %d, want 1200", len(got))
				}
				in := map[int64]bool{}
				for _, id := range got {
					in[id] = true
				}
				// 并集内流行度最高的 960 个：2500..1541
				for i := int64(1541); i <= 2500; i++ {
					if !in[i] {
						t.Fatalf("head item %d dropped", i)
					}
				}
			},
		},
		{
			name:     "small universe",
			universe: 500,
			union:    nil,
			verify: func(t *testing.T, got []int64) {
				if len(got) != 500 {
					t.Fatalf("len = %d, want 500", len(got))
				}
			},
		},
		{
			name:     "duplicates removed",
			universe: 2000,
			union:    []int64{5, 5, 5, 7},
			verify: func(t *testing.T, got []int64) {
				if len(got) != 1200 {
					t.Fatalf("len = %d, want 1200", len(got))
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewCandidateGenerator(newTestPop(tt.universe), nil)
			got := g.Assemble(tt.union, sampling.New(42))
			assertSortedUnique(t, got)
			tt.verify(t, got)
		})
	}
}

func TestGenerate(t *testing.T) {
	pop := newTestPop(3000)
	graph := map[int64][]int64{1: {2, 3, 4}, 2: {1, 5}}
	g := NewCandidateGenerator(pop, graph)

	profile := core.NewUserProfile(9)
	profile.TopCategories = []int64{1, 2, 3}
	profile.FineCategories = []int64{10, 11}
	profile.TopItems = []int64{1, 2}
	rctx := &core.RecommendContext{UserID: 9, User: profile, Seed: 42}

	got, err := g.Generate(context.Background(), rctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(got) != 1200 {
		t.Fatalf("len = %d, want 1200", len(got))
	}
	assertSortedUnique(t, got)

	again, err := g.Generate(context.Background(), rctx)
	if err != nil {
		t.Fatalf("Generate again: %v", err)
	}
	for i := range got {
		if got[i] != again[i] {
			t.Fatal("same seed produced different candidates")
		}
	}

	// 冷启动用户退化为流行度/全局池，仍然填满 T
	cold, err := g.Generate(context.Background(), &core.RecommendContext{UserID: 10, Seed: 42})
	if err != nil {
		t.Fatalf("Generate cold: %v", err)
	}
	if len(cold) != 1200 {
		t.Fatalf("cold len = %d, want 1200", len(cold))
	}
}

func TestGenerateLabelsPadding(t *testing.T) {
	g := NewCandidateGenerator(newTestPop(50), nil)
	g.Target = 10
	items, err := g.Process(context.Background(), &core.RecommendContext{UserID: 1, Seed: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 10 {
		t.Fatalf("len = %d", len(items))
	}
	for _, it := range items {
		if _, ok := it.Labels[utils.LabelRecallSource]; !ok {
			t.Fatalf("item %d has no recall source", it.ID)
		}
	}
}

func TestCategoryPoolAllocation(t *testing.T) {
	pop := newTestPop(300)
	profile := core.NewUserProfile(1)
	profile.TopCategories = []int64{1, 2, 3}
	rctx := &core.RecommendContext{UserID: 1, User: profile, Seed: 42}

	head := &CategoryPool{Pop: pop, Level: LevelTop, Quota: 30}
	items, err := head.Recall(context.Background(), rctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 30 {
		t.Fatalf("head len = %d, want 3×10", len(items))
	}
	if items[0].ID != pop.TopCategoryHead(1)[0] {
		t.Fatalf("head should start with the most popular item of the first category")
	}

	// quota 小于类目数时每个类目至少 1 个
	tail := &CategoryPool{Pop: pop, Level: LevelTop, Tail: true, Quota: 2}
	items, err = tail.Recall(context.Background(), rctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("tail len = %d, want 3", len(items))
	}

	empty := &CategoryPool{Pop: pop, Level: LevelFine, Quota: 30}
	items, _ = empty.Recall(context.Background(), rctx)
	if len(items) != 0 {
		t.Fatalf("no fine categories should recall nothing, got %d", len(items))
	}
}

func TestNeighborPool(t *testing.T) {
	graph := map[int64][]int64{
		1: {10, 11, 12},
		2: {11, 13},
		3: {99},
	}
	profile := core.NewUserProfile(1)
	profile.TopItems = []int64{1, 2, 3}
	rctx := &core.RecommendContext{UserID: 1, User: profile, Seed: 42}

	r := &Neighbor{Graph: graph, BaseItems: 2, PerItem: 2, Quota: 10}
	items, err := r.Recall(context.Background(), rctx)
	if err != nil {
		t.Fatal(err)
	}
	got := core.ItemIDs(items)
	want := []int64{10, 11, 13}
	if len(got) != len(want) {
		t.Fatalf("neighbors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("neighbors = %v, want %v", got, want)
		}
	}

	r.Quota = 2
	items, _ = r.Recall(context.Background(), rctx)
	if len(items) != 2 {
		t.Fatalf("sampled neighbors = %d, want 2", len(items))
	}
}

type stubSource struct {
	name string
	ids  []int64
	err  error
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Recall(context.Context, *core.RecommendContext) ([]*core.Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	return toItems(s.ids), nil
}

func TestFanout(t *testing.T) {
	sources := []Source{
		&stubSource{name: "a", ids: []int64{1, 2}},
		&stubSource{name: "broken", err: errors.New("boom")},
		&stubSource{name: "b", ids: []int64{2, 3}},
	}
	tests := []struct {
		strategy string
		dedup    bool
		want     []int64
	}{
		{strategy: MergeFirst, dedup: true, want: []int64{1, 2, 3}},
		{strategy: MergeUnion, dedup: true, want: []int64{1, 2, 2, 3}},
		{strategy: MergePriority, dedup: true, want: []int64{1, 2, 3}},
		{strategy: MergeFirst, dedup: false, want: []int64{1, 2, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			fan := &Fanout{Sources: sources, Dedup: tt.dedup, MergeStrategy: tt.strategy, MaxConcurrent: 2}
			items, err := fan.Process(context.Background(), &core.RecommendContext{}, nil)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			got := core.ItemIDs(items)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}

	fan := &Fanout{Sources: sources, Dedup: true, MergeStrategy: MergePriority}
	items, _ := fan.Process(context.Background(), &core.RecommendContext{}, nil)
	if lbl := items[1].Labels[utils.LabelRecallSource]; lbl.Value != "a|b" {
		t.Fatalf("merged source label = %q, want a|b", lbl.Value)
	}
}

func TestCooccurrenceMiner(t *testing.T) {
	train := map[int64][]core.Interaction{
		1: {{UserID: 1, ItemID: 1, Weight: 3}, {UserID: 1, ItemID: 2, Weight: 2}, {UserID: 1, ItemID: 3, Weight: 1}},
		2: {{UserID: 2, ItemID: 1, Weight: 1}, {UserID: 2, ItemID: 4, Weight: 1}},
		3: {{UserID: 3, ItemID: 5, Weight: 1}},
	}
	universe := []int64{1, 2, 3, 4, 5}

	m := DefaultCooccurrenceMiner(42)
	graph, stats, err := m.Mine(context.Background(), train, universe)
	if err != nil {
		t.Fatalf("Mine: %v", err)
	}
	// 物品 1 与 2、3（用户 1）及 4（用户 2）共现
	if nb := graph[1]; len(nb) != 3 {
		t.Fatalf("neighbors(1) = %v", nb)
	}
	for item, nb := range graph {
		if len(nb) > m.TopK {
			t.Fatalf("item %d has %d neighbors", item, len(nb))
		}
		for _, j := range nb {
			if j == item {
				t.Fatalf("item %d lists itself", item)
			}
		}
	}
	if _, ok := graph[5]; ok {
		t.Fatal("single-item users must not create neighbors")
	}
	if stats.WithNeighbors != 4 || stats.Items != 5 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCooccurrenceMinerIsDeterministicAcrossWorkers(t *testing.T) {
	train := make(map[int64][]core.Interaction)
	for u := int64(1); u <= 30; u++ {
		for i := int64(0); i < 20; i++ {
			item := (u*7 + i*13) % 97
			train[u] = append(train[u], core.Interaction{UserID: u, ItemID: item, Weight: float64(i % 5)})
		}
	}
	serial := &CooccurrenceMiner{MaxItems: 40, Partners: 6, TopK: 60, Seed: 42, Workers: 1}
	parallel := &CooccurrenceMiner{MaxItems: 40, Partners: 6, TopK: 60, Seed: 42, Workers: 8}
	a, _, err := serial.Mine(context.Background(), train, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := parallel.Mine(context.Background(), train, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != len(b) {
		t.Fatalf("graph sizes differ: %d vs %d", len(a), len(b))
	}
	for item, nb := range a {
		other := b[item]
		if len(nb) != len(other) {
			t.Fatalf("item %d: %v vs %v", item, nb, other)
		}
		for i := range nb {
			if nb[i] != other[i] {
				t.Fatalf("item %d: %v vs %v", item, nb, other)
			}
		}
	}
}

func TestCoverage(t *testing.T) {
	gt := map[int64][]core.Interaction{
		1: {{UserID: 1, ItemID: 10}, {UserID: 1, ItemID: 11}},
		2: {{UserID: 2, ItemID: 20}},
		3: {{UserID: 3, ItemID: 30}},
	}
	cands := map[int64][]int64{
		1: {10, 12},
		2: {21},
	}
	r := Coverage(cands, dataset.NewGroundTruth(gt), "val")
	if r.HitItems != 1 || r.TotalItems != 3 {
		t.Fatalf("items = %d/%d, want 1/3", r.HitItems, r.TotalItems)
	}
	if r.HitUsers != 1 || r.Users != 3 {
		t.Fatalf("users = %d/%d, want 1/3", r.HitUsers, r.Users)
	}
	if c := r.UserCoverage(); c < 0.333 || c > 0.334 {
		t.Fatalf("user coverage = %v", c)
	}
}
