package value

import "fmt"

// SqlType is the declared column type tag. Precision/scale apply only to
// Decimal; length applies to Char/Varchar.
type SqlType struct {
	Kind      SqlKind
	Precision int
	Scale     int
	Length    int
}

type SqlKind int

const (
	TInteger SqlKind = iota
	TBigInt
	TFloat
	TDouble
	TDecimal
	TChar
	TVarchar
	TText
	TBoolean
	TTimestamp
	TDate
	TTime
	TUuid
	TJson
)

func (t SqlType) String() string {
	switch t.Kind {
	case TInteger:
		return "INTEGER"
	case TBigInt:
		return "BIGINT"
	case TFloat:
		return "FLOAT"
	case TDouble:
		return "DOUBLE"
	case TDecimal:
		return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
	case TChar:
		return fmt.Sprintf("CHAR(%d)", t.Length)
	case TVarchar:
		return fmt.Sprintf("VARCHAR(%d)", t.Length)
	case TText:
		return "TEXT"
	case TBoolean:
		return "BOOLEAN"
	case TTimestamp:
		return "TIMESTAMP"
	case TDate:
		return "DATE"
	case TTime:
		return "TIME"
	case TUuid:
		return "UUID"
	case TJson:
		return "JSON"
	default:
		return "UNKNOWN"
	}
}

func Integer() SqlType    { return SqlType{Kind: TInteger} }
func BigInt() SqlType     { return SqlType{Kind: TBigInt} }
func Float() SqlType      { return SqlType{Kind: TFloat} }
func Double() SqlType     { return SqlType{Kind: TDouble} }
func Boolean() SqlType    { return SqlType{Kind: TBoolean} }
func Text() SqlType       { return SqlType{Kind: TText} }
func Timestamp() SqlType  { return SqlType{Kind: TTimestamp} }
func Date() SqlType       { return SqlType{Kind: TDate} }
func Time() SqlType       { return SqlType{Kind: TTime} }
func Uuid() SqlType       { return SqlType{Kind: TUuid} }
func Json() SqlType       { return SqlType{Kind: TJson} }
func Decimal(p, s int) SqlType { return SqlType{Kind: TDecimal, Precision: p, Scale: s} }
func Varchar(n int) SqlType    { return SqlType{Kind: TVarchar, Length: n} }
func Char(n int) SqlType       { return SqlType{Kind: TChar, Length: n} }
