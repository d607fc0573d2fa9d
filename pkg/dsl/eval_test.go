package dsl

import (
	"testing"

	"github.com/rushteam/hybridrec/core"
	"github.com/rushteam/hybridrec/pkg/utils"
)

func TestProgramMatch(t *testing.T) {
	it := core.NewItem(42)
	it.Score = 75
	it.Meta["brand"] = "LG"
	it.PutLabel(utils.LabelRecallSource, utils.NewLabel("recall.hot", "recall"))
	rctx := &core.RecommendContext{UserID: 7, Scene: "global"}

	tests := []struct {
		expr    string
		want    bool
		wantErr bool
	}{
		{expr: "", want: true},
		{expr: "item.score >= 70.0", want: true},
		{expr: "item.score >= 80.0", want: false},
		{expr: `item.meta.brand == "LG"`, want: true},
		{expr: `label.recall_source.contains("hot")`, want: true},
		{expr: `"missing" in label`, want: false},
		{expr: `rctx.scene == "global" && rctx.user_id == 7`, want: true},
		{expr: "label.missing == 1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			p, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			got, err := p.Match(it, rctx)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected eval error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	for _, expr := range []string{"item.score >=", "1 + 2"} {
		if _, err := Compile(expr); err == nil {
			t.Fatalf("%q: expected error", expr)
		}
	}
}

func TestEvalOneShot(t *testing.T) {
	it := core.NewItem(1)
	it.Score = 0.8
	ok, err := NewEval(it, nil).Evaluate("item.score > 0.7")
	if err != nil || !ok {
		t.Fatalf("got %v, %v", ok, err)
	}
}
