package pgserver

import (
	"encoding/binary"
	"math"

	"github.com/yamldb/yamldb/internal/value"
)

// PostgreSQL OIDs for every SqlKind. There is no DuckDB catalog behind
// this engine (spec.md §4.7), so this table is the sole source of OID
// information for both wire directions.
const (
	oidBool      uint32 = 16
	oidInt8      uint32 = 20
	oidInt4      uint32 = 23
	oidText      uint32 = 25
	oidJson      uint32 = 3802
	oidFloat4    uint32 = 700
	oidFloat8    uint32 = 701
	oidVarchar   uint32 = 1043
	oidDate      uint32 = 1082
	oidTime      uint32 = 1083
	oidTimestamp uint32 = 1114
	oidNumeric   uint32 = 1700
	oidUUID      uint32 = 2950
)

func oidForType(t value.SqlType) uint32 {
	switch t.Kind {
	case value.TBoolean:
		return oidBool
	case value.TBigInt:
		return oidInt8
	case value.TInteger:
		return oidInt4
	case value.TFloat:
		return oidFloat4
	case value.TDouble:
		return oidFloat8
	case value.TDecimal:
		return oidNumeric
	case value.TVarchar:
		return oidVarchar
	case value.TChar, value.TText:
		return oidText
	case value.TDate:
		return oidDate
	case value.TTime:
		return oidTime
	case value.TTimestamp:
		return oidTimestamp
	case value.TUuid:
		return oidUUID
	case value.TJson:
		return oidJson
	default:
		return oidText
	}
}

// oidForValue infers an OID from a runtime Value, used by Describe's
// RowDescription for any result column whose declared type isn't
// otherwise known (e.g. a projected expression). The simple query path
// advertises oidText for every column instead.
func oidForValue(v value.Value) uint32 {
	switch v.Kind {
	case value.Null:
		return oidText
	case value.Boolean:
		return oidBool
	case value.Integer:
		return oidInt8
	case value.Float:
		return oidFloat4
	case value.Double:
		return oidFloat8
	case value.Decimal:
		return oidNumeric
	case value.Text:
		return oidText
	case value.Date:
		return oidDate
	case value.Time:
		return oidTime
	case value.Timestamp:
		return oidTimestamp
	case value.UUID:
		return oidUUID
	case value.Json:
		return oidJson
	default:
		return oidText
	}
}

// encodeText renders v as the UTF-8 text DataRow encoding used on every
// column in the simple query path, and on text-format columns in the
// extended protocol. nil signals SQL NULL (DataRow length -1).
func encodeText(v value.Value) []byte {
	if v.IsNull() {
		return nil
	}
	return []byte(v.String())
}

// encodeBinary renders v in the Postgres binary wire format for the
// handful of fixed-width types the extended protocol is allowed to
// request in binary (spec.md §4.6's bind parameter decode table mirrors
// this same layout on the way in). Falls back to text for anything else.
func encodeBinary(v value.Value) []byte {
	if v.IsNull() {
		return nil
	}
	switch v.Kind {
	case value.Boolean:
		if v.Bool {
			return []byte{1}
		}
		return []byte{0}
	case value.Integer:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(v.I64))
		return buf
	case value.Float:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(v.F32))
		return buf
	case value.Double:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(v.F64))
		return buf
	default:
		return encodeText(v)
	}
}
