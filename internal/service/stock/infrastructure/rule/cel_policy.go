// internal/service/stock/infrastructure/rule/cel_policy.go
package rule

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"stockgate/internal/service/stock/domain"
)

// CELOrderPolicy 是 port.OrderPolicy 的实现，用 CEL 表达式描述下单规则。
// 可用变量：item_id、quantity、requester_id（均为 int）。
type CELOrderPolicy struct {
	expression string
	program    cel.Program
}

// NewCELOrderPolicy 编译表达式，语法错误或返回类型不是 bool 时报错
func NewCELOrderPolicy(expression string) (*CELOrderPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("item_id", cel.IntType),
		cel.Variable("quantity", cel.IntType),
		cel.Variable("requester_id", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel env: %w", err)
	}

	ast, iss := env.Compile(expression)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("invalid order policy %q: %w", expression, iss.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("order policy %q must evaluate to bool, got %v", expression, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build cel program: %w", err)
	}
	return &CELOrderPolicy{expression: expression, program: program}, nil
}

// Allow 对一次下单请求求值
func (p *CELOrderPolicy) Allow(item domain.ItemID, quantity, requesterID int64) (bool, error) {
	out, _, err := p.program.Eval(map[string]any{
		"item_id":      int64(item),
		"quantity":     quantity,
		"requester_id": requesterID,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate order policy: %w", err)
	}
	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("order policy returned %T", out.Value())
	}
	return allowed, nil
}

func (p *CELOrderPolicy) String() string {
	return p.expression
}
