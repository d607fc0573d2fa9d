package index

import (
	"testing"

	"github.com/rushteam/hybridrec/core"
)

func testCatalog() *core.Catalog {
	tree := core.NewCategoryTree()
	tree.Add(1, -1, "laptop")
	tree.Add(2, -1, "monitor")
	tree.Add(11, 1, "gaming")
	tree.Add(12, 1, "office")
	tree.Add(21, 2, "4k")
	return core.NewCatalog([]core.Product{
		{ID: 100, FineCategory: 11, TopCategory: -1, Brand: "ASUS"},
		{ID: 101, FineCategory: 11, TopCategory: -1, Brand: "MSI"},
		{ID: 102, FineCategory: 12, TopCategory: -1, Brand: "LG"},
		{ID: 103, FineCategory: 12, TopCategory: -1},
		{ID: 200, FineCategory: 21, TopCategory: -1, Brand: "Dell"},
		{ID: 300, FineCategory: -1, TopCategory: -1, Brand: "HP"},
	}, tree)
}

func TestBuildPopularity(t *testing.T) {
	train := map[int64][]core.Interaction{
		1: {
			{UserID: 1, ItemID: 100, Weight: 4},
			{UserID: 1, ItemID: 101, Weight: 1},
		},
		2: {
			{UserID: 2, ItemID: 100, Weight: 4},
			{UserID: 2, ItemID: 102, Weight: 2},
			{UserID: 2, ItemID: 300, Weight: 2},
		},
	}
	universe := []int64{300, 103, 102, 101, 100, 200}
	p := BuildPopularity(train, universe, testCatalog(), DefaultTailFrac)

	if got := p.Score(100); got < 0.999 || got > 1 {
		t.Fatalf("pop(100) = %v, want ~1", got)
	}
	if got := p.Score(200); got != 0 {
		t.Fatalf("pop(200) = %v, want 0", got)
	}
	if got := p.Universe(); got[0] != 100 || got[len(got)-1] != 300 {
		t.Fatalf("universe not ascending: %v", got)
	}

	wantGlobal := []int64{100, 102, 300, 101, 103, 200}
	for i, id := range p.Global() {
		if id != wantGlobal[i] {
			t.Fatalf("global = %v, want %v", p.Global(), wantGlobal)
		}
	}
	// global[int(6·0.4):] = global[2:]
	if tail := p.GlobalTail(DefaultGlobalTailFrac); len(tail) != 4 || tail[0] != 300 {
		t.Fatalf("global tail = %v", tail)
	}

	// 根类目 1 下四个物品，cut = int(4·0.4) = 1
	if head := p.TopCategoryHead(1); len(head) != 4 || head[0] != 100 {
		t.Fatalf("top head = %v", head)
	}
	if tail := p.TopCategoryTail(1); len(tail) != 3 || tail[0] != 102 {
		t.Fatalf("top tail = %v", tail)
	}
	if p.TopCategoryHead(core.UnknownCategory) != nil {
		t.Fatal("sentinel category must not have a pool")
	}
	if got := p.FineCategoryTail(21); len(got) != 1 || got[0] != 200 {
		t.Fatalf("single item tail = %v", got)
	}
}

func TestTailSlice(t *testing.T) {
	tests := []struct {
		name string
		n    int
		frac float64
		want int
	}{
		{name: "empty", n: 0, frac: 0.6, want: 0},
		{name: "one", n: 1, frac: 0.6, want: 1},
		{name: "ten", n: 10, frac: 0.6, want: 6},
		{name: "zero frac keeps last", n: 5, frac: 0, want: 1},
		{name: "full frac", n: 5, frac: 1, want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := make([]int64, tt.n)
			if got := len(TailSlice(ids, tt.frac)); got != tt.want {
				t.Fatalf("len = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildProfile(t *testing.T) {
	rows := []core.Interaction{
		{UserID: 1, ItemID: 100, Weight: 1},
		{UserID: 1, ItemID: 102, Weight: 3},
		{UserID: 1, ItemID: 103, Weight: 3},
		{UserID: 1, ItemID: 200, Weight: 5},
		{UserID: 1, ItemID: 300, Weight: 9},
		{UserID: 1, ItemID: 100, Weight: 0.5},
	}
	p := BuildProfile(1, rows, testCatalog(), ProfileConfig{TopCategories: 1, FineCategories: 2, TopItems: 3})

	// 根类目 1: 1+3+3+0.5 = 7.5 > 根类目 2: 5；物品 300 是哨兵类目，不计入
	if len(p.TopCategories) != 1 || p.TopCategories[0] != 1 {
		t.Fatalf("top categories = %v", p.TopCategories)
	}
	if len(p.FineCategories) != 2 || p.FineCategories[0] != 12 || p.FineCategories[1] != 21 {
		t.Fatalf("fine categories = %v", p.FineCategories)
	}
	want := []int64{300, 200, 102}
	for i, id := range p.TopItems {
		if id != want[i] {
			t.Fatalf("top items = %v, want %v", p.TopItems, want)
		}
	}
	if p.IsEmpty() {
		t.Fatal("profile should not be empty")
	}
}

func TestTopItemsDedupes(t *testing.T) {
	rows := []core.Interaction{
		{ItemID: 5, Weight: 1},
		{ItemID: 5, Weight: 4},
		{ItemID: 6, Weight: 2},
	}
	items, weights := TopItems(rows, 10)
	if len(items) != 2 || items[0] != 5 || weights[0] != 4 {
		t.Fatalf("items = %v weights = %v", items, weights)
	}
}

func TestHolderSwap(t *testing.T) {
	h := NewHolder(nil)
	if h.Load() != nil {
		t.Fatal("empty holder should load nil")
	}
	first := &Snapshot{Profiles: map[int64]*core.UserProfile{}}
	if old := h.Swap(first); old != nil {
		t.Fatal("first swap should return nil")
	}
	second := &Snapshot{}
	if old := h.Swap(second); old != first {
		t.Fatal("swap should return previous snapshot")
	}
	if h.Load() != second || second.BuiltAt.IsZero() {
		t.Fatal("holder should publish the new snapshot with a build time")
	}
	if p := second.Profile(9); p.UserID != 9 || !p.IsEmpty() {
		t.Fatalf("missing profile = %+v", p)
	}
}
