package eval

import (
	"github.com/shopspring/decimal"
	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

func evalBinary(e *ast.BinaryOp, env *Env) (value.Value, error) {
	// AND/OR implement three-valued logic rather than simple NULL
	// propagation: FALSE AND NULL is FALSE, not NULL (spec.md §4.4).
	switch e.Op {
	case ast.OpAnd:
		return evalAnd(e, env)
	case ast.OpOr:
		return evalOr(e, env)
	}

	l, err := Eval(e.Left, env)
	if err != nil {
		return value.Value{}, err
	}
	r, err := Eval(e.Right, env)
	if err != nil {
		return value.Value{}, err
	}

	switch e.Op {
	case ast.OpEq, ast.OpNotEq, ast.OpLt, ast.OpLtEq, ast.OpGt, ast.OpGtEq:
		return evalComparison(e.Op, l, r)
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv, ast.OpMod:
		return evalArithmetic(e.Op, l, r)
	case ast.OpConcat:
		return evalConcat(l, r)
	default:
		return value.Value{}, yamlerr.NotImplemented("binary operator %d", e.Op)
	}
}

func evalAnd(e *ast.BinaryOp, env *Env) (value.Value, error) {
	l, err := Eval(e.Left, env)
	if err != nil {
		return value.Value{}, err
	}
	if l.Kind == value.Boolean && !l.Bool {
		return value.NewBoolean(false), nil
	}
	r, err := Eval(e.Right, env)
	if err != nil {
		return value.Value{}, err
	}
	if r.Kind == value.Boolean && !r.Bool {
		return value.NewBoolean(false), nil
	}
	if l.IsNull() || r.IsNull() {
		return value.NewNull(), nil
	}
	return value.NewBoolean(l.Bool && r.Bool), nil
}

func evalOr(e *ast.BinaryOp, env *Env) (value.Value, error) {
	l, err := Eval(e.Left, env)
	if err != nil {
		return value.Value{}, err
	}
	if l.Kind == value.Boolean && l.Bool {
		return value.NewBoolean(true), nil
	}
	r, err := Eval(e.Right, env)
	if err != nil {
		return value.Value{}, err
	}
	if r.Kind == value.Boolean && r.Bool {
		return value.NewBoolean(true), nil
	}
	if l.IsNull() || r.IsNull() {
		return value.NewNull(), nil
	}
	return value.NewBoolean(l.Bool || r.Bool), nil
}

func evalComparison(op ast.BinOp, l, r value.Value) (value.Value, error) {
	if l.IsNull() || r.IsNull() {
		return value.NewNull(), nil
	}
	ord, ok := l.Compare(r)
	if !ok {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "cannot compare %s and %s", l.Kind, r.Kind)
	}
	var result bool
	switch op {
	case ast.OpEq:
		result = ord == value.Equal
	case ast.OpNotEq:
		result = ord != value.Equal
	case ast.OpLt:
		result = ord == value.Less
	case ast.OpLtEq:
		result = ord != value.Greater
	case ast.OpGt:
		result = ord == value.Greater
	case ast.OpGtEq:
		result = ord != value.Less
	}
	return value.NewBoolean(result), nil
}

func evalArithmetic(op ast.BinOp, l, r value.Value) (value.Value, error) {
	if l.IsNull() || r.IsNull() {
		return value.NewNull(), nil
	}
	if !isArithmeticOperand(l) || !isArithmeticOperand(r) {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "arithmetic requires numeric operands, got %s and %s", l.Kind, r.Kind)
	}

	if l.Kind == value.Decimal || r.Kind == value.Decimal {
		return decimalArithmetic(op, toDecimalValue(l), toDecimalValue(r))
	}
	if l.Kind == value.Double || r.Kind == value.Double {
		return floatArithmetic(op, toFloat(l), toFloat(r))
	}
	if l.Kind == value.Float || r.Kind == value.Float {
		return floatArithmetic(op, toFloat(l), toFloat(r))
	}
	return integerArithmetic(op, l.I64, r.I64)
}

func isArithmeticOperand(v value.Value) bool {
	switch v.Kind {
	case value.Integer, value.Float, value.Double, value.Decimal:
		return true
	default:
		return false
	}
}

func toFloat(v value.Value) float64 {
	switch v.Kind {
	case value.Integer:
		return float64(v.I64)
	case value.Float:
		return float64(v.F32)
	case value.Double:
		return v.F64
	default:
		return 0
	}
}

func toDecimalValue(v value.Value) decimal.Decimal {
	switch v.Kind {
	case value.Integer:
		return decimal.NewFromInt(v.I64)
	case value.Float:
		return decimal.NewFromFloat(float64(v.F32))
	case value.Double:
		return decimal.NewFromFloat(v.F64)
	case value.Decimal:
		return v.Dec
	default:
		return decimal.Zero
	}
}

func integerArithmetic(op ast.BinOp, a, b int64) (value.Value, error) {
	switch op {
	case ast.OpAdd:
		return value.NewInteger(a + b), nil
	case ast.OpSub:
		return value.NewInteger(a - b), nil
	case ast.OpMul:
		return value.NewInteger(a * b), nil
	case ast.OpDiv:
		if b == 0 {
			return value.Value{}, yamlerr.New(yamlerr.KindArithmetic, "division by zero")
		}
		return value.NewInteger(a / b), nil
	case ast.OpMod:
		if b == 0 {
			return value.Value{}, yamlerr.New(yamlerr.KindArithmetic, "division by zero")
		}
		return value.NewInteger(a % b), nil
	default:
		return value.Value{}, yamlerr.NotImplemented("arithmetic operator %d", op)
	}
}

func floatArithmetic(op ast.BinOp, a, b float64) (value.Value, error) {
	switch op {
	case ast.OpAdd:
		return value.NewDouble(a + b), nil
	case ast.OpSub:
		return value.NewDouble(a - b), nil
	case ast.OpMul:
		return value.NewDouble(a * b), nil
	case ast.OpDiv:
		if b == 0 {
			return value.Value{}, yamlerr.New(yamlerr.KindArithmetic, "division by zero")
		}
		return value.NewDouble(a / b), nil
	case ast.OpMod:
		if b == 0 {
			return value.Value{}, yamlerr.New(yamlerr.KindArithmetic, "division by zero")
		}
		return value.NewDouble(float64(int64(a) % int64(b))), nil
	default:
		return value.Value{}, yamlerr.NotImplemented("arithmetic operator %d", op)
	}
}

func decimalArithmetic(op ast.BinOp, a, b decimal.Decimal) (value.Value, error) {
	switch op {
	case ast.OpAdd:
		return value.NewDecimal(a.Add(b)), nil
	case ast.OpSub:
		return value.NewDecimal(a.Sub(b)), nil
	case ast.OpMul:
		return value.NewDecimal(a.Mul(b)), nil
	case ast.OpDiv:
		if b.IsZero() {
			return value.Value{}, yamlerr.New(yamlerr.KindArithmetic, "division by zero")
		}
		return value.NewDecimal(a.Div(b)), nil
	case ast.OpMod:
		if b.IsZero() {
			return value.Value{}, yamlerr.New(yamlerr.KindArithmetic, "division by zero")
		}
		return value.NewDecimal(a.Mod(b)), nil
	default:
		return value.Value{}, yamlerr.NotImplemented("arithmetic operator %d", op)
	}
}

// evalConcat implements `||`: numeric operands are stringified, any NULL
// operand yields NULL, and Date/Time/Timestamp concatenation (which
// PostgreSQL itself rejects in a dialect-strict mode) is an explicit
// error per spec.md §4.4.
func evalConcat(l, r value.Value) (value.Value, error) {
	if l.IsNull() || r.IsNull() {
		return value.NewNull(), nil
	}
	if !concatable(l) || !concatable(r) {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "cannot concatenate %s and %s", l.Kind, r.Kind)
	}
	return value.NewText(concatString(l) + concatString(r)), nil
}

func concatable(v value.Value) bool {
	switch v.Kind {
	case value.Text, value.Integer, value.Float, value.Double, value.Decimal, value.Boolean, value.UUID:
		return true
	default:
		return false
	}
}

func concatString(v value.Value) string {
	if v.Kind == value.Text {
		return v.Str
	}
	return v.String()
}
