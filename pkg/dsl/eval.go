package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/hybridrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("item", cel.DynType),
			cel.Variable("label", cel.DynType),
			cel.Variable("rctx", cel.DynType),
		)
	})
	return celEnv, celEnvErr
}

// Program 是编译好的布尔规则，可并发复用。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：item.score >= 70.0
//   - 元信息：item.meta.brand == "LG"
//   - 标签：label.recall_source.contains("hot")
//   - 上下文：rctx.scene == "global" && item.score > 50.0
//
// 访问不存在的 key 会报错，存在性请用 `"key" in label`。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；空表达式恒为 true。
func Compile(expr string) (*Program, error) {
	p := &Program{expr: expr}
	if expr == "" {
		return p, nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType && ast.OutputType() != cel.DynType {
		return nil, fmt.Errorf("compile %q: expression must return bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	p.prg = prg
	return p, nil
}

// MustCompile 同 Compile，失败时 panic。仅用于常量表达式。
func MustCompile(expr string) *Program {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Program) String() string { return p.expr }

// Match 对单个物品求值。
func (p *Program) Match(item *core.Item, rctx *core.RecommendContext) (bool, error) {
	if p == nil || p.prg == nil {
		return true, nil
	}
	out, _, err := p.prg.Eval(buildInput(item, rctx))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: expression must return bool, got %T", p.expr, out.Value())
	}
	return result, nil
}

// Eval 是单物品的一次性求值器，每次 Evaluate 都会重新编译表达式。
// 高频路径请使用 Compile 得到的 Program。
type Eval struct {
	item *core.Item
	rctx *core.RecommendContext
}

func NewEval(item *core.Item, rctx *core.RecommendContext) *Eval {
	return &Eval{item: item, rctx: rctx}
}

// Evaluate 解析并执行 DSL 表达式，返回布尔结果。
func (e *Eval) Evaluate(expr string) (bool, error) {
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return p.Match(e.item, e.rctx)
}

// buildInput 构建 CEL 表达式的输入数据
func buildInput(it *core.Item, rctx *core.RecommendContext) map[string]any {
	labels := make(map[string]any)
	label := make(map[string]any)
	item := map[string]any{}
	if it != nil {
		for k, v := range it.Labels {
			labels[k] = map[string]any{
				"value":  v.Value,
				"source": v.Source,
			}
			// label.recall_source 直接返回 value
			label[k] = v.Value
		}
		item = map[string]any{
			"id":       it.ID,
			"score":    it.Score,
			"features": it.Features,
			"meta":     it.Meta,
			"labels":   labels,
		}
	}

	ctx := map[string]any{}
	if rctx != nil {
		ctx = map[string]any{
			"user_id": rctx.UserID,
			"scene":   rctx.Scene,
			"seed":    rctx.Seed,
			"params":  rctx.Params,
		}
	}

	return map[string]any{
		"item":  item,
		"label": label,
		"rctx":  ctx,
	}
}
