package sampling

import (
	"testing"
)

func TestDeriveIsDeterministic(t *testing.T) {
	if Derive(42, 7, 1) != Derive(42, 7, 1) {
		t.Fatal("same inputs must derive the same seed")
	}
	if Derive(42, 7, 1) == Derive(42, 7, 2) {
		t.Fatal("different keys should derive different seeds")
	}
	if Derive(42, 1, 7) == Derive(42, 7, 1) {
		t.Fatal("key order should matter")
	}
}

func TestChoice(t *testing.T) {
	arr := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	got := Choice(New(42), arr, 4)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	seen := map[int64]bool{}
	for _, v := range got {
		if seen[v] {
			t.Fatalf("duplicate %d in %v", v, got)
		}
		seen[v] = true
	}
	if arr[0] != 1 || arr[9] != 10 {
		t.Fatal("input must not be modified")
	}
	if all := Choice(New(1), arr, 20); len(all) != len(arr) {
		t.Fatalf("oversized choice len = %d", len(all))
	}
	if Choice(New(1), arr, 0) != nil {
		t.Fatal("size 0 must return nil")
	}

	again := Choice(New(42), arr, 4)
	for i := range got {
		if got[i] != again[i] {
			t.Fatalf("seeded choice not reproducible: %v vs %v", got, again)
		}
	}
}

func TestWeightedWithoutReplacement(t *testing.T) {
	tests := []struct {
		name    string
		weights []float64
		k       int
		verify  func(t *testing.T, got []int)
	}{
		{
			name:    "unique indices",
			weights: []float64{5, 1, 1, 1, 1},
			k:       5,
			verify: func(t *testing.T, got []int) {
				if len(got) != 5 {
					t.Fatalf("len = %d", len(got))
				}
				seen := map[int]bool{}
				for _, i := range got {
					if seen[i] {
						t.Fatalf("duplicate index %d", i)
					}
					seen[i] = true
				}
			},
		},
		{
			name:    "all non-positive falls back to uniform",
			weights: []float64{0, -1, 0},
			k:       2,
			verify: func(t *testing.T, got []int) {
				if len(got) != 2 {
					t.Fatalf("len = %d, want 2", len(got))
				}
			},
		},
		{
			name:    "zero weight drawn last",
			weights: []float64{0, 1},
			k:       1,
			verify: func(t *testing.T, got []int) {
				if got[0] != 1 {
					t.Fatalf("picked %d, want 1", got[0])
				}
			},
		},
		{
			name:    "k larger than n",
			weights: []float64{1, 2},
			k:       5,
			verify: func(t *testing.T, got []int) {
				if len(got) != 2 {
					t.Fatalf("len = %d, want 2", len(got))
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.verify(t, WeightedWithoutReplacement(New(42), tt.weights, tt.k))
		})
	}
}

func TestRankWeightsDecay(t *testing.T) {
	w := RankWeights(3, 0.8)
	if w[0] != 1 {
		t.Fatalf("rank 1 weight = %v, want 1", w[0])
	}
	if !(w[0] > w[1] && w[1] > w[2]) {
		t.Fatalf("weights not decreasing: %v", w)
	}
}
