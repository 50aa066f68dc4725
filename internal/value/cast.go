package value

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cast implements the CAST(expr AS type) rules from spec.md §4.1: NULL
// casts to NULL regardless of target type, and every other conversion is
// either a well-defined narrowing/widening or a typed error.
func Cast(v Value, t SqlType) (Value, error) {
	if v.IsNull() {
		return NewNull(), nil
	}

	switch t.Kind {
	case TInteger, TBigInt:
		return castToInteger(v)
	case TFloat:
		f, err := castToFloat64(v)
		if err != nil {
			return Value{}, err
		}
		return NewFloat(float32(f)), nil
	case TDouble:
		f, err := castToFloat64(v)
		if err != nil {
			return Value{}, err
		}
		return NewDouble(f), nil
	case TDecimal:
		return castToDecimal(v)
	case TChar, TVarchar, TText:
		return NewText(v.String()), nil
	case TBoolean:
		return castToBoolean(v)
	case TDate:
		return castToDate(v)
	case TTimestamp:
		return castToTimestamp(v)
	case TTime:
		return castToTime(v)
	case TUuid:
		return castToUUID(v)
	case TJson:
		return NewJson([]byte(v.String())), nil
	default:
		return Value{}, fmt.Errorf("cannot cast to %s", t)
	}
}

func castToInteger(v Value) (Value, error) {
	switch v.Kind {
	case Integer:
		return v, nil
	case Float:
		return NewInteger(int64(v.F32)), nil
	case Double:
		return NewInteger(int64(v.F64)), nil
	case Decimal:
		return NewInteger(v.Dec.IntPart()), nil
	case Boolean:
		if v.Bool {
			return NewInteger(1), nil
		}
		return NewInteger(0), nil
	case Text:
		s := strings.TrimSpace(v.Str)
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return NewInteger(int64(f)), nil
		}
		return Value{}, fmt.Errorf("cannot cast %q to INTEGER", v.Str)
	default:
		return Value{}, fmt.Errorf("cannot cast %s to INTEGER", v.Kind)
	}
}

func castToFloat64(v Value) (float64, error) {
	switch v.Kind {
	case Integer:
		return float64(v.I64), nil
	case Float:
		return float64(v.F32), nil
	case Double:
		return v.F64, nil
	case Decimal:
		f, _ := v.Dec.Float64()
		return f, nil
	case Boolean:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	case Text:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot cast %q to a floating-point number", v.Str)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot cast %s to a floating-point number", v.Kind)
	}
}

func castToDecimal(v Value) (Value, error) {
	switch v.Kind {
	case Integer:
		return NewDecimal(decimal.NewFromInt(v.I64)), nil
	case Float:
		return NewDecimal(decimal.NewFromFloat(float64(v.F32))), nil
	case Double:
		return NewDecimal(decimal.NewFromFloat(v.F64)), nil
	case Decimal:
		return v, nil
	case Text:
		d, err := decimal.NewFromString(strings.TrimSpace(v.Str))
		if err != nil {
			return Value{}, fmt.Errorf("cannot cast %q to DECIMAL", v.Str)
		}
		return NewDecimal(d), nil
	default:
		return Value{}, fmt.Errorf("cannot cast %s to DECIMAL", v.Kind)
	}
}

func castToBoolean(v Value) (Value, error) {
	switch v.Kind {
	case Boolean:
		return v, nil
	case Integer:
		return NewBoolean(v.I64 != 0), nil
	case Text:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true":
			return NewBoolean(true), nil
		case "false":
			return NewBoolean(false), nil
		case "1":
			return NewBoolean(true), nil
		case "0":
			return NewBoolean(false), nil
		default:
			return Value{}, fmt.Errorf("cannot cast %q to BOOLEAN", v.Str)
		}
	default:
		return Value{}, fmt.Errorf("cannot cast %s to BOOLEAN", v.Kind)
	}
}

func castToDate(v Value) (Value, error) {
	switch v.Kind {
	case Date:
		return v, nil
	case Timestamp:
		return NewDate(truncToDate(v.Time)), nil
	case Text:
		t, err := time.Parse("2006-01-02", strings.TrimSpace(v.Str))
		if err != nil {
			return Value{}, fmt.Errorf("cannot cast %q to DATE, expected YYYY-MM-DD", v.Str)
		}
		return NewDate(t), nil
	default:
		return Value{}, fmt.Errorf("cannot cast %s to DATE", v.Kind)
	}
}

func truncToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func castToTimestamp(v Value) (Value, error) {
	switch v.Kind {
	case Timestamp:
		return v, nil
	case Date:
		return NewTimestamp(v.Time), nil
	case Text:
		s := strings.TrimSpace(v.Str)
		for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return NewTimestamp(t), nil
			}
		}
		return Value{}, fmt.Errorf("cannot cast %q to TIMESTAMP", v.Str)
	default:
		return Value{}, fmt.Errorf("cannot cast %s to TIMESTAMP", v.Kind)
	}
}

func castToTime(v Value) (Value, error) {
	switch v.Kind {
	case Time:
		return v, nil
	case Text:
		t, err := time.Parse("15:04:05", strings.TrimSpace(v.Str))
		if err != nil {
			return Value{}, fmt.Errorf("cannot cast %q to TIME, expected HH:MM:SS", v.Str)
		}
		return NewTime(t), nil
	default:
		return Value{}, fmt.Errorf("cannot cast %s to TIME", v.Kind)
	}
}

func castToUUID(v Value) (Value, error) {
	switch v.Kind {
	case UUID:
		return v, nil
	case Text:
		u, err := uuid.Parse(strings.TrimSpace(v.Str))
		if err != nil {
			return Value{}, fmt.Errorf("cannot cast %q to UUID", v.Str)
		}
		return NewUUID(u), nil
	default:
		return Value{}, fmt.Errorf("cannot cast %s to UUID", v.Kind)
	}
}

func (k Kind) String() string {
	switch k {
	case Null:
		return "NULL"
	case Integer:
		return "INTEGER"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case Decimal:
		return "DECIMAL"
	case Text:
		return "TEXT"
	case Boolean:
		return "BOOLEAN"
	case Timestamp:
		return "TIMESTAMP"
	case Date:
		return "DATE"
	case Time:
		return "TIME"
	case UUID:
		return "UUID"
	case Json:
		return "JSON"
	default:
		return "UNKNOWN"
	}
}
