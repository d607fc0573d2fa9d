package filter

import (
	"context"
	"errors"
	"math"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/utils"
	"github.com/rushteam/hybridrec/store"
)

type failingStore struct{}

func (failingStore) Seen(context.Context, int64) (mapset.Set[int64], error) {
	return nil, errors.New("boom")
}

func newItems(ids ...int64) []*core.Item {
	out := make([]*core.Item, len(ids))
	for i, id := range ids {
		out[i] = core.NewItem(id)
		out[i].Score = 1
	}
	return out
}

func TestFilterNode(t *testing.T) {
	seen := SeenFunc(func(int64) mapset.Set[int64] { return mapset.NewSet[int64](2, 4) })
	tests := []struct {
		name   string
		node   *FilterNode
		verify func(t *testing.T, out []*core.Item)
	}{
		{
			name: "drop",
			node: &FilterNode{Filters: []Filter{&SeenFilter{Store: seen}}},
			verify: func(t *testing.T, out []*core.Item) {
				got := core.ItemIDs(out)
				if len(got) != 2 || got[0] != 1 || got[1] != 3 {
					t.Fatalf("got %v, want [1 3]", got)
				}
			},
		},
		{
			name: "mask",
			node: &FilterNode{Filters: []Filter{&SeenFilter{Store: seen}}, Mode: ModeMask},
			verify: func(t *testing.T, out []*core.Item) {
				if len(out) != 4 {
					t.Fatalf("mask mode must keep every item, got %d", len(out))
				}
				for _, it := range out {
					masked := math.IsInf(it.Score, -1)
					if masked != (it.ID == 2 || it.ID == 4) {
						t.Fatalf("item %d masked = %v", it.ID, masked)
					}
					if masked && it.Labels[utils.LabelMasked].Source != "filter.seen" {
						t.Fatalf("missing mask label on %d", it.ID)
					}
				}
			},
		},
		{
			name: "filter error keeps item",
			node: &FilterNode{Filters: []Filter{&SeenFilter{Store: failingStore{}}}},
			verify: func(t *testing.T, out []*core.Item) {
				if len(out) != 4 {
					t.Fatalf("got %d items, want 4", len(out))
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rctx := &core.RecommendContext{UserID: 1}
			out, err := tt.node.Process(context.Background(), rctx, newItems(1, 2, 3, 4))
			if err != nil {
				t.Fatal(err)
			}
			tt.verify(t, out)
		})
	}
}

func TestSeenFilterCachesPerRequest(t *testing.T) {
	calls := 0
	f := &SeenFilter{Store: SeenFunc(func(int64) mapset.Set[int64] {
		calls++
		return mapset.NewSet[int64](1)
	})}
	rctx := &core.RecommendContext{UserID: 9}
	for _, it := range newItems(1, 2, 3) {
		if _, err := f.ShouldFilter(context.Background(), rctx, it); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 1 {
		t.Fatalf("store read %d times, want 1", calls)
	}
}

func TestStoreAdapter(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	defer mem.Close()
	a := NewStoreAdapter(mem, "")

	empty, err := a.Seen(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if empty.Cardinality() != 0 {
		t.Fatalf("missing key should give empty set, got %v", empty)
	}

	if err := a.Record(ctx, 5, []int64{10, 11}); err != nil {
		t.Fatal(err)
	}
	got, err := a.Seen(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Contains(10, 11) || got.Cardinality() != 2 {
		t.Fatalf("got %v", got)
	}
	if _, err := mem.Get(ctx, "user:seen:5"); err != nil {
		t.Fatalf("expected key user:seen:5: %v", err)
	}
}
