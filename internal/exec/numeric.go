package exec

import (
	"github.com/shopspring/decimal"
	"github.com/yamldb/yamldb/internal/value"
	"github.com/yamldb/yamldb/internal/yamlerr"
)

func decimalFromInt(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func toFloatForAvg(v value.Value) float64 {
	switch v.Kind {
	case value.Integer:
		return float64(v.I64)
	case value.Float:
		return float64(v.F32)
	case value.Double:
		return v.F64
	case value.Decimal:
		f, _ := v.Dec.Float64()
		return f
	default:
		return 0
	}
}

// addNumeric folds b into running total a for SUM, promoting to the
// widest variant present (Decimal > Double > Float > Integer) so SUM
// preserves Decimal precision per spec.md §4.4.
func addNumeric(a, b value.Value) (value.Value, error) {
	if a.Kind == value.Decimal || b.Kind == value.Decimal {
		return value.NewDecimal(toDecimal(a).Add(toDecimal(b))), nil
	}
	if a.Kind == value.Double || b.Kind == value.Double {
		return value.NewDouble(toFloatForAvg(a) + toFloatForAvg(b)), nil
	}
	if a.Kind == value.Float || b.Kind == value.Float {
		return value.NewFloat(float32(toFloatForAvg(a) + toFloatForAvg(b))), nil
	}
	if a.Kind == value.Integer && b.Kind == value.Integer {
		return value.NewInteger(a.I64 + b.I64), nil
	}
	return value.Value{}, yamlerr.New(yamlerr.KindType, "cannot sum %s and %s", a.Kind, b.Kind)
}

func toDecimal(v value.Value) decimal.Decimal {
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
