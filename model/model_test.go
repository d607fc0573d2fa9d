package model

import (
	"bytes"
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"

	"github.com/rushteam/hybridrec/core"
)

func TestRepeatCount(t *testing.T) {
	b := DefaultCorpusBuilder(42)
	tests := []struct {
		weight float64
		want   int
	}{
		{weight: -5, want: 1},
		{weight: 0, want: 1},
		{weight: 1, want: 2},   // 1 + 2·ln2 = 2.38
		{weight: 10, want: 5},  // 1 + 2·ln11 = 5.79
		{weight: 1e6, want: 8}, // 截断到 8
	}
	for _, tt := range tests {
		if got := b.RepeatCount(tt.weight); got != tt.want {
			t.Errorf("RepeatCount(%v) = %d, want %d", tt.weight, got, tt.want)
		}
	}
}

func TestCorpusBuilder(t *testing.T) {
	train := map[int64][]core.Interaction{
		1: {{UserID: 1, ItemID: 10, Weight: 3}, {UserID: 1, ItemID: 11, Weight: 1}, {UserID: 1, ItemID: 12, Weight: 0}},
		// 单物品，跳过
		2: {{UserID: 2, ItemID: 10, Weight: 2}},
		// 全部非正，均匀抽样
		3: {{UserID: 3, ItemID: 11, Weight: 0}, {UserID: 3, ItemID: 12, Weight: -1}},
		// 仅一个非零概率，跳过
		4: {{UserID: 4, ItemID: 10, Weight: 5}, {UserID: 4, ItemID: 13, Weight: 0}},
	}
	universe := []int64{10, 11, 12, 13}
	b := DefaultCorpusBuilder(42)
	corpus := b.Build(train, universe)

	// 用户 1 与用户 3 各 10 个会话 + 4 个单 token 句子
	if len(corpus) != 24 {
		t.Fatalf("corpus size = %d, want 24", len(corpus))
	}
	for _, sent := range corpus[:20] {
		if len(sent) < 2 {
			t.Fatalf("session sentence too short: %v", sent)
		}
	}
	for i, id := range universe {
		sent := corpus[20+i]
		if len(sent) != 1 || sent[0] != core.ItemToken(id) {
			t.Fatalf("singleton sentence %d = %v", i, sent)
		}
	}
	// 用户 1：L = min(20, 3, 2) = 2，零权重物品不会被抽中
	for _, sent := range corpus[:10] {
		for _, tok := range sent {
			if tok == "ITEM_12" {
				t.Fatalf("zero-probability item sampled: %v", sent)
			}
		}
	}

	again := b.Build(train, universe)
	for i := range corpus {
		if strings.Join(corpus[i], ",") != strings.Join(again[i], ",") {
			t.Fatal("corpus not reproducible under the same seed")
		}
	}
}

func TestItemMatrix(t *testing.T) {
	emb := NewWord2VecModel(map[string][]float64{
		"ITEM_1": {3, 4},
		"ITEM_2": {0, 2},
	}, 2)
	m := NewItemMatrix(emb, []int64{1, 2, 3})

	v := m.Vector(1)
	if math.Abs(v[0]-0.6) > 1e-9 || math.Abs(v[1]-0.8) > 1e-9 {
		t.Fatalf("normalized vector = %v", v)
	}
	if z := m.Vector(3); z[0] != 0 || z[1] != 0 {
		t.Fatalf("unknown item should be zero, got %v", z)
	}

	u := m.UserVector([]core.Interaction{{ItemID: 2, Weight: 5}, {ItemID: 3, Weight: 9}})
	if math.Abs(u[1]-1) > 1e-9 {
		t.Fatalf("user vector = %v", u)
	}
	if got := m.Cosine(u, 2); math.Abs(got-1) > 1e-9 {
		t.Fatalf("cos = %v, want 1", got)
	}
	if got := m.Cosine(u, 3); got != 0 {
		t.Fatalf("cos(unknown) = %v, want 0", got)
	}

	empty := m.UserVector(nil)
	if empty[0] != 0 || empty[1] != 0 {
		t.Fatalf("empty user vector = %v", empty)
	}
}

func TestLinearModel(t *testing.T) {
	m := Weights{Embed: 0.6, Collab: 0.4, Pop: 0.2}.Model()
	got, err := m.Predict(map[string]float64{FeatureEmbed: 1, FeatureCollab: 0.5, FeaturePop: 0.5, "other": 100})
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-0.9) > 1e-12 {
		t.Fatalf("score = %v, want 0.9", got)
	}
}

func TestWord2VecTextRoundTrip(t *testing.T) {
	emb := NewWord2VecModel(map[string][]float64{
		"ITEM_1": {0.5, -1},
		"ITEM_2": {2, 0.25},
	}, 2)
	var buf bytes.Buffer
	if err := WriteWord2VecText(&buf, emb, []string{"ITEM_1", "ITEM_2", "ITEM_9"}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "2 2\n") {
		t.Fatalf("missing header: %q", buf.String())
	}
	got, err := ReadWord2VecText(context.Background(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := got.Vector("ITEM_2")
	if !ok || v[0] != 2 || v[1] != 0.25 {
		t.Fatalf("ITEM_2 = %v, %v", v, ok)
	}

	if _, err := ReadWord2VecText(context.Background(), strings.NewReader("ITEM_1 1 2\nITEM_2 1\n")); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestRPCTrainer(t *testing.T) {
	var gotReq trainRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(trainResponse{
			Dimension: 2,
			Vectors:   map[string][]float64{"ITEM_1": {1, 0}},
		})
	}))
	defer srv.Close()

	tr := NewRPCTrainer(srv.URL, 0, 0)
	emb, err := tr.Train(context.Background(), core.Corpus{{"ITEM_1", "ITEM_1"}}, core.EmbeddingParams{VectorSize: 2, Window: 15, Epochs: 20, Negative: 15, Seed: 42})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if emb.Dimension() != 2 {
		t.Fatalf("dim = %d", emb.Dimension())
	}
	if gotReq.Params.Window != 15 || len(gotReq.Corpus) != 1 {
		t.Fatalf("request = %+v", gotReq)
	}
}

func TestRPCTrainerOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := NewRPCTrainer(srv.URL, 0, 2)
	params := core.EmbeddingParams{VectorSize: 2}
	for i := 0; i < 2; i++ {
		if _, err := tr.Train(context.Background(), nil, params); err == nil {
			t.Fatal("expected rpc error")
		}
	}
	_, err := tr.Train(context.Background(), nil, params)
	if !core.IsUnavailable(err) {
		t.Fatalf("err = %v, want UNAVAILABLE", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("server calls = %d, want 2", calls.Load())
	}
}
