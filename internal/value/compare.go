package value

import (
	"math"

	"github.com/shopspring/decimal"
)

// Ordering mirrors the three-way result of Compare without pulling in
// cmp.Ordering, since pre-1.21 call sites (and the protocol layer) just
// want -1/0/1.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// Compare implements the total order described in spec.md §3: Null sorts
// below everything (including itself it's Equal-to-Null), numeric
// variants cross-compare via promotion, and NaN is equal to itself so
// that Value can be used as a deduplication/group key.
//
// ok is false only when the two variants are fundamentally incomparable
// (e.g. Text vs Boolean); callers treat that case as "doesn't match" for
// ORDER BY/comparison operators.
func (v Value) Compare(o Value) (ord Ordering, ok bool) {
	if v.Kind == Null && o.Kind == Null {
		return Equal, true
	}
	if v.Kind == Null {
		return Less, true
	}
	if o.Kind == Null {
		return Greater, true
	}

	if isNumeric(v.Kind) && isNumeric(o.Kind) {
		return compareNumeric(v, o), true
	}

	if v.Kind != o.Kind {
		return Equal, false
	}

	switch v.Kind {
	case Text:
		return compareOrdered(v.Str, o.Str), true
	case Boolean:
		return compareOrdered(boolToInt(v.Bool), boolToInt(o.Bool)), true
	case Timestamp, Date, Time:
		switch {
		case v.Time.Before(o.Time):
			return Less, true
		case v.Time.After(o.Time):
			return Greater, true
		default:
			return Equal, true
		}
	case UUID:
		return compareOrdered(v.UUID.String(), o.UUID.String()), true
	case Json:
		return compareOrdered(string(v.Json), string(o.Json)), true
	default:
		return Equal, false
	}
}

func isNumeric(k Kind) bool {
	return k == Integer || k == Float || k == Double || k == Decimal
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func compareOrdered[T int | string](a, b T) Ordering {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}

// compareNumeric promotes both sides to decimal.Decimal when either side
// is Decimal (to avoid float rounding surprises against exact values),
// otherwise promotes to float64. NaN compares equal to itself and greater
// than everything else non-NaN, matching the Hash contract that lets NaN
// key a map.
func compareNumeric(a, b Value) Ordering {
	if a.Kind == Decimal || b.Kind == Decimal {
		da := toDecimal(a)
		db := toDecimal(b)
		c := da.Cmp(db)
		switch {
		case c < 0:
			return Less
		case c > 0:
			return Greater
		default:
			return Equal
		}
	}

	af := toFloat64(a)
	bf := toFloat64(b)
	aNaN, bNaN := math.IsNaN(af), math.IsNaN(bf)
	switch {
	case aNaN && bNaN:
		return Equal
	case aNaN:
		return Greater
	case bNaN:
		return Less
	case af < bf:
		return Less
	case af > bf:
		return Greater
	default:
		return Equal
	}
}

func toFloat64(v Value) float64 {
	switch v.Kind {
	case Integer:
		return float64(v.I64)
	case Float:
		return float64(v.F32)
	case Double:
		return v.F64
	default:
		return 0
	}
}

func toDecimal(v Value) decimal.Decimal {
	switch v.Kind {
	case Integer:
		return decimal.NewFromInt(v.I64)
	case Float:
		return decimal.NewFromFloat(float64(v.F32))
	case Double:
		return decimal.NewFromFloat(v.F64)
	case Decimal:
		return v.Dec
	default:
		return decimal.Zero
	}
}
