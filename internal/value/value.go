// Package value implements the tagged scalar Value that flows through the
// whole engine: loaded from YAML, compared and coerced by the expression
// evaluator, and formatted back out to wire bytes by the protocol servers.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind tags which field of Value is live. Go has no sum types, so Value is
// a tagged struct rather than an enum with payload.
type Kind int

const (
	Null Kind = iota
	Integer
	Float
	Double
	Decimal
	Text
	Boolean
	Timestamp
	Date
	Time
	UUID
	Json
)

// Value is the one scalar type every column, literal, and expression
// result is represented as.
type Value struct {
	Kind Kind

	I64  int64
	F32  float32
	F64  float64
	Dec  decimal.Decimal
	Str  string
	Bool bool
	// Time backs Timestamp, Date, and Time (naive, second resolution).
	Time time.Time
	UUID uuid.UUID
	Json json.RawMessage
}

func NewNull() Value                 { return Value{Kind: Null} }
func NewInteger(i int64) Value       { return Value{Kind: Integer, I64: i} }
func NewFloat(f float32) Value       { return Value{Kind: Float, F32: f} }
func NewDouble(d float64) Value      { return Value{Kind: Double, F64: d} }
func NewDecimal(d decimal.Decimal) Value { return Value{Kind: Decimal, Dec: d} }
func NewText(s string) Value         { return Value{Kind: Text, Str: s} }
func NewBoolean(b bool) Value        { return Value{Kind: Boolean, Bool: b} }
func NewTimestamp(t time.Time) Value { return Value{Kind: Timestamp, Time: t} }
func NewDate(t time.Time) Value      { return Value{Kind: Date, Time: t} }
func NewTime(t time.Time) Value      { return Value{Kind: Time, Time: t} }
func NewUUID(u uuid.UUID) Value      { return Value{Kind: UUID, UUID: u} }
func NewJson(j json.RawMessage) Value { return Value{Kind: Json, Json: j} }

func (v Value) IsNull() bool { return v.Kind == Null }

// IsTruthy implements three-valued logic collapse for contexts (WHERE,
// CASE) that need a definite bool: NULL and non-boolean are both "not
// true". Callers that need full three-valued semantics should not use
// this and should branch on IsNull() themselves.
func (v Value) IsTruthy() bool {
	return v.Kind == Boolean && v.Bool
}

// IsCompatible reports whether v may legally be stored in a column
// declared with sql SqlType. NULL is compatible with every type.
func (v Value) IsCompatible(t SqlType) bool {
	if v.Kind == Null {
		return true
	}
	switch t.Kind {
	case TInteger, TBigInt:
		return v.Kind == Integer
	case TFloat:
		return v.Kind == Float
	case TDouble:
		return v.Kind == Double
	case TDecimal:
		return v.Kind == Decimal
	case TChar, TVarchar, TText:
		return v.Kind == Text
	case TBoolean:
		return v.Kind == Boolean
	case TTimestamp:
		return v.Kind == Timestamp
	case TDate:
		return v.Kind == Date
	case TTime:
		return v.Kind == Time
	case TUuid:
		return v.Kind == UUID
	case TJson:
		return v.Kind == Json
	default:
		return false
	}
}

// String renders the canonical textual form used for wire output and for
// round-trip CAST tests.
func (v Value) String() string {
	switch v.Kind {
	case Null:
		return "NULL"
	case Integer:
		return fmt.Sprintf("%d", v.I64)
	case Float:
		return formatFloat(float64(v.F32), 32)
	case Double:
		return formatFloat(v.F64, 64)
	case Decimal:
		return v.Dec.String()
	case Text:
		return v.Str
	case Boolean:
		if v.Bool {
			return "true"
		}
		return "false"
	case Timestamp:
		return v.Time.Format("2006-01-02 15:04:05")
	case Date:
		return v.Time.Format("2006-01-02")
	case Time:
		return v.Time.Format("15:04:05")
	case UUID:
		return v.UUID.String()
	case Json:
		return string(v.Json)
	default:
		return ""
	}
}

func formatFloat(f float64, bits int) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}
