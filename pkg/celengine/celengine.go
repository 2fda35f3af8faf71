package celengine

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"go.uber.org/fx"
)

var Module = fx.Module("celengine", fx.Provide(New))

// Variables available to package eligibility expressions.
const (
	VarTier        = "tier"
	VarMultiplier  = "multiplier"
	VarHoldingsUSD = "holdings_usd"
	VarWallet      = "wallet"
)

// Engine compiles and evaluates boolean eligibility expressions such as
// `tier in ["GOLD", "PLATINUM"] || holdings_usd >= 1000.0`.
// Compiled programs are cached by expression text.
type Engine struct {
	env      *cel.Env
	programs sync.Map
}

func New() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarTier, cel.StringType),
		cel.Variable(VarMultiplier, cel.IntType),
		cel.Variable(VarHoldingsUSD, cel.DoubleType),
		cel.Variable(VarWallet, cel.StringType),
	)
	if err != nil {
		return nil, err
	}
	return &Engine{env: env}, nil
}

func (e *Engine) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

func (e *Engine) Evaluate(expr string, attrs map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(attrs)
	if err != nil {
		return false, err
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}
	return b, nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	if v, ok := e.programs.Load(expr); ok {
		return v.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.programs.Store(expr, prg)
	return prg, nil
}
