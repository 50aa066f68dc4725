package eval

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/yamldb/yamldb/internal/sqlparse/ast"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

var (
	upperCaser = cases.Upper(language.Und)
	lowerCaser = cases.Lower(language.Und)
)

// AggregateFuncs names the functions that require per-group accumulated
// state and therefore can never be evaluated by plain Eval; exec
// precomputes their Value per (group, call-site) and stashes it in
// Env.AggValues keyed by the *ast.FuncCall node itself.
var AggregateFuncs = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
}

// WindowFuncs names the functions that only make sense under OVER(...)
// and are likewise precomputed by exec per output row.
var WindowFuncs = map[string]bool{
	"ROW_NUMBER": true, "RANK": true, "DENSE_RANK": true, "LAG": true, "LEAD": true,
}

func evalFuncCall(e *ast.FuncCall, env *Env) (value.Value, error) {
	name := strings.ToUpper(e.Name)

	if AggregateFuncs[name] {
		if v, ok := env.AggValues[e]; ok {
			return v, nil
		}
		return value.Value{}, yamlerr.New(yamlerr.KindInternal, "aggregate %s evaluated outside of grouping context", name)
	}
	if WindowFuncs[name] || e.Over != nil {
		if v, ok := env.WindowValues[e]; ok {
			return v, nil
		}
		return value.Value{}, yamlerr.New(yamlerr.KindInternal, "window function %s evaluated outside of window pass", name)
	}

	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		v, err := Eval(a, env)
		if err != nil {
			return value.Value{}, err
		}
		args[i] = v
	}

	switch name {
	case "LEFT":
		return strFunc2(args, stringLeft)
	case "RIGHT":
		return strFunc2(args, stringRight)
	case "POSITION":
		return position(args)
	case "LTRIM":
		return strFunc1(args, func(s string) string { return strings.TrimLeft(s, " ") })
	case "RTRIM":
		return strFunc1(args, func(s string) string { return strings.TrimRight(s, " ") })
	case "TRIM":
		return strFunc1(args, strings.TrimSpace)
	case "LENGTH":
		return length(args)
	case "UPPER":
		return strFunc1(args, upperCaser.String)
	case "LOWER":
		return strFunc1(args, lowerCaser.String)
	case "CONCAT":
		return concatFunc(args)
	case "SUBSTRING":
		return substring(args)
	case "ROUND":
		return roundFunc(args)
	case "CEIL", "CEILING":
		return ceilFloor(args, true)
	case "FLOOR":
		return ceilFloor(args, false)
	case "ABS":
		return absFunc(args)
	case "MOD":
		return modFunc(args)
	case "CURRENT_DATE":
		return value.NewDate(truncDate(env.now())), nil
	case "CURRENT_TIMESTAMP", "NOW":
		return value.NewTimestamp(env.now().Truncate(time.Second)), nil
	case "DATE":
		return dateFunc(args)
	case "YEAR":
		return dateParts(args, func(t time.Time) value.Value { return value.NewInteger(int64(t.Year())) })
	case "MONTH":
		return dateParts(args, func(t time.Time) value.Value { return value.NewInteger(int64(t.Month())) })
	case "DAY":
		return dateParts(args, func(t time.Time) value.Value { return value.NewInteger(int64(t.Day())) })
	case "EXTRACT":
		return extractFunc(args)
	case "DATE_FORMAT":
		return dateFormat(args)
	case "DATE_ADD":
		return dateAddSub(args, 1)
	case "DATE_SUB":
		return dateAddSub(args, -1)
	case "DATEADD":
		return dateaddStyle(args, 1)
	case "DATEDIFF":
		return datediff(args)
	case "ADD_MONTHS":
		return addMonths(args)
	case "LAST_DAY":
		return lastDay(args)
	case "COALESCE":
		return coalesce(args)
	case "NULLIF":
		return nullIf(args)
	case "IFNULL":
		return ifNull(args)
	case "IF":
		return ifFunc(args)
	default:
		return value.Value{}, yamlerr.NotImplemented("function %s", e.Name)
	}
}

func anyNull(args []value.Value) bool {
	for _, a := range args {
		if a.IsNull() {
			return true
		}
	}
	return false
}

func asText(v value.Value) (string, error) {
	if v.Kind != value.Text {
		return "", yamlerr.New(yamlerr.KindType, "expected text argument, got %s", v.Kind)
	}
	return v.Str, nil
}

func asInt(v value.Value) (int64, error) {
	switch v.Kind {
	case value.Integer:
		return v.I64, nil
	case value.Float:
		return int64(v.F32), nil
	case value.Double:
		return int64(v.F64), nil
	case value.Decimal:
		return v.Dec.IntPart(), nil
	default:
		return 0, yamlerr.New(yamlerr.KindType, "expected numeric argument, got %s", v.Kind)
	}
}

func strFunc1(args []value.Value, f func(string) string) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	s, err := asText(args[0])
	if err != nil {
		return value.Value{}, err
	}
	return value.NewText(f(s)), nil
}

func strFunc2(args []value.Value, f func(string, int) string) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	s, err := asText(args[0])
	if err != nil {
		return value.Value{}, err
	}
	n, err := asInt(args[1])
	if err != nil {
		return value.Value{}, err
	}
	return value.NewText(f(s, int(n))), nil
}

func stringLeft(s string, n int) string {
	r := []rune(s)
	if n <= 0 {
		return ""
	}
	if n > len(r) {
		n = len(r)
	}
	return string(r[:n])
}

func stringRight(s string, n int) string {
	r := []rune(s)
	if n <= 0 {
		return ""
	}
	if n > len(r) {
		n = len(r)
	}
	return string(r[len(r)-n:])
}

// position implements POSITION(needle, haystack), 1-based, 0 if absent,
// 1 for an empty needle (spec.md §4.4 "SQL standard").
func position(args []value.Value) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	needle, err := asText(args[0])
	if err != nil {
		return value.Value{}, err
	}
	haystack, err := asText(args[1])
	if err != nil {
		return value.Value{}, err
	}
	if needle == "" {
		return value.NewInteger(1), nil
	}
	idx := strings.Index(haystack, needle)
	if idx < 0 {
		return value.NewInteger(0), nil
	}
	// Convert byte index to a rune (1-based) index.
	return value.NewInteger(int64(utf8.RuneCountInString(haystack[:idx]) + 1)), nil
}

func length(args []value.Value) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	s, err := asText(args[0])
	if err != nil {
		return value.Value{}, err
	}
	return value.NewInteger(int64(utf8.RuneCountInString(s))), nil
}

func concatFunc(args []value.Value) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	var b strings.Builder
	for _, a := range args {
		b.WriteString(concatString(a))
	}
	return value.NewText(b.String()), nil
}

func substring(args []value.Value) (value.Value, error) {
	if len(args) < 2 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "SUBSTRING requires at least 2 arguments")
	}
	if anyNull(args) {
		return value.NewNull(), nil
	}
	s, err := asText(args[0])
	if err != nil {
		return value.Value{}, err
	}
	start, err := asInt(args[1])
	if err != nil {
		return value.Value{}, err
	}
	r := []rune(s)
	from := int(start) - 1
	length := len(r)
	if len(args) >= 3 {
		n, err := asInt(args[2])
		if err != nil {
			return value.Value{}, err
		}
		length = int(n)
	}
	if from < 0 {
		length += from
		from = 0
	}
	if from >= len(r) || length <= 0 {
		return value.NewText(""), nil
	}
	end := from + length
	if end > len(r) {
		end = len(r)
	}
	return value.NewText(string(r[from:end])), nil
}

// roundFunc implements ROUND(x[,d]) with half-away-from-zero rounding,
// which is what shopspring/decimal.Decimal.Round already does.
func roundFunc(args []value.Value) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	d, err := asDecimalArg(args[0])
	if err != nil {
		return value.Value{}, err
	}
	places := int32(0)
	if len(args) >= 2 {
		n, err := asInt(args[1])
		if err != nil {
			return value.Value{}, err
		}
		places = int32(n)
	}
	return castBackLike(args[0], d.Round(places))
}

func ceilFloor(args []value.Value, ceil bool) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	d, err := asDecimalArg(args[0])
	if err != nil {
		return value.Value{}, err
	}
	var rounded = d
	if ceil {
		rounded = d.Ceil()
	} else {
		rounded = d.Floor()
	}
	return castBackLike(args[0], rounded)
}

func absFunc(args []value.Value) (value.Value, error) {
	if anyNull(args) {
		return value.NewNull(), nil
	}
	d, err := asDecimalArg(args[0])
	if err != nil {
		return value.Value{}, err
	}
	return castBackLike(args[0], d.Abs())
}

func modFunc(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "MOD requires 2 arguments")
	}
	if anyNull(args) {
		return value.NewNull(), nil
	}
	a, err := asInt(args[0])
	if err != nil {
		return value.Value{}, err
	}
	b, err := asInt(args[1])
	if err != nil {
		return value.Value{}, err
	}
	if b == 0 {
		return value.Value{}, yamlerr.New(yamlerr.KindArithmetic, "division by zero")
	}
	return value.NewInteger(a % b), nil
}

func coalesce(args []value.Value) (value.Value, error) {
	for _, a := range args {
		if !a.IsNull() {
			return a, nil
		}
	}
	return value.NewNull(), nil
}

func nullIf(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "NULLIF requires 2 arguments")
	}
	if args[0].IsNull() || args[1].IsNull() {
		return args[0], nil
	}
	ord, ok := args[0].Compare(args[1])
	if ok && ord == value.Equal {
		return value.NewNull(), nil
	}
	return args[0], nil
}

func ifNull(args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "IFNULL requires 2 arguments")
	}
	if args[0].IsNull() {
		return args[1], nil
	}
	return args[0], nil
}

func ifFunc(args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.Value{}, yamlerr.New(yamlerr.KindType, "IF requires 3 arguments")
	}
	if IsFilterTrue(args[0]) {
		return args[1], nil
	}
	return args[2], nil
}

// asDecimalArg promotes any numeric Value to decimal.Decimal for ROUND/
// CEIL/FLOOR/ABS, which operate uniformly regardless of the input's
// storage kind.
func asDecimalArg(v value.Value) (decimal.Decimal, error) {
	switch v.Kind {
	case value.Integer:
		return decimal.NewFromInt(v.I64), nil
	case value.Float:
		return decimal.NewFromFloat(float64(v.F32)), nil
	case value.Double:
		return decimal.NewFromFloat(v.F64), nil
	case value.Decimal:
		return v.Dec, nil
	default:
		return decimal.Zero, yamlerr.New(yamlerr.KindType, "expected numeric argument, got %s", v.Kind)
	}
}

// castBackLike returns result re-wrapped in the same Value Kind as the
// original argument, so ROUND(int) stays an Integer and ROUND(double)
// stays a Double.
func castBackLike(orig value.Value, result decimal.Decimal) (value.Value, error) {
	switch orig.Kind {
	case value.Integer:
		return value.NewInteger(result.IntPart()), nil
	case value.Float:
		f, _ := result.Float64()
		return value.NewFloat(float32(f)), nil
	case value.Double:
		f, _ := result.Float64()
		return value.NewDouble(f), nil
	default:
		return value.NewDecimal(result), nil
	}
}
