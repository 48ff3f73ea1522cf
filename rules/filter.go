// Package rules 提供基于 CEL (Common Expression Language) 的预测结果过滤。
// 业务可用一条表达式在推理出口处裁剪候选，例如排除部门或设置概率下限。
package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/nextcart/pkg/conv"
)

// Filter 是编译后的预测过滤规则，线程安全，可跨请求复用。
//
// 可用变量：
//   - probability / score: 模型打分（double）
//   - product_id: 外部商品 ID（string）
//   - name / aisle / department: 商品元数据（string，缺失时为空串）
//
// 示例：
//   - `probability >= 0.01` → 过滤长尾候选
//   - `department != "alcohol"` → 业务合规过滤
//   - `aisle.contains("frozen") && score > 0.05` → 组合条件
type Filter struct {
	expr string
	prg  cel.Program
}

// NewFilter 编译一条过滤表达式。表达式必须产出布尔值。
func NewFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("probability", cel.DoubleType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("product_id", cel.StringType),
		cel.Variable("name", cel.StringType),
		cel.Variable("aisle", cel.StringType),
		cel.Variable("department", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile rule %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %q must evaluate to bool, got %s", expr, ast.OutputType())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build cel program: %w", err)
	}
	return &Filter{expr: expr, prg: prg}, nil
}

// Expr 返回原始表达式（用于日志/观测）。
func (f *Filter) Expr() string { return f.expr }

// Keep 判断一个候选是否保留。求值失败时保守放行并返回错误。
// 数值变量（probability/score）在求值前统一换算为 float64，
// 调用方传 int/float32 等数值类型不会触发 CEL 的类型错误。
func (f *Filter) Keep(vars map[string]any) (bool, error) {
	out, _, err := f.prg.Eval(normalize(vars))
	if err != nil {
		return true, fmt.Errorf("eval rule %q: %w", f.expr, err)
	}
	keep, ok := out.Value().(bool)
	if !ok {
		return true, fmt.Errorf("rule %q returned non-bool %T", f.expr, out.Value())
	}
	return keep, nil
}

// normalize 把声明为 double 的变量换算为 float64，其余原样透传。
func normalize(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		switch k {
		case "probability", "score":
			if fv, ok := conv.ToFloat64(v); ok {
				out[k] = fv
				continue
			}
		}
		out[k] = v
	}
	return out
}
