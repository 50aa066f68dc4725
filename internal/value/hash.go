package value

import (
	"hash/fnv"
	"math"
	"strconv"
)

// Equal implements the NaN-equals-itself identity used for hashing,
// DISTINCT, GROUP BY keys, and UNION dedup. It deliberately departs from
// IEEE 754 (where NaN != NaN) so Value can serve as a map/set key.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		// Cross-type numeric equality (1 = 1.0) is still useful for
		// comparison operators but GROUP BY/DISTINCT keys are defined
		// per-variant, so we fall back to Compare for the numeric case.
		if isNumeric(v.Kind) && isNumeric(o.Kind) {
			ord, ok := v.Compare(o)
			return ok && ord == Equal
		}
		return false
	}
	switch v.Kind {
	case Null:
		return true
	case Integer:
		return v.I64 == o.I64
	case Float:
		return bitsEqual32(v.F32, o.F32)
	case Double:
		return bitsEqual64(v.F64, o.F64)
	case Decimal:
		return v.Dec.Equal(o.Dec)
	case Text:
		return v.Str == o.Str
	case Boolean:
		return v.Bool == o.Bool
	case Timestamp, Date, Time:
		return v.Time.Equal(o.Time)
	case UUID:
		return v.UUID == o.UUID
	case Json:
		return string(v.Json) == string(o.Json)
	default:
		return false
	}
}

func bitsEqual32(a, b float32) bool {
	if math.IsNaN(float64(a)) && math.IsNaN(float64(b)) {
		return true
	}
	return a == b
}

func bitsEqual64(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return a == b
}

// Hash returns an FNV-1a hash over the variant tag and the canonical bit
// pattern of the payload (floats hashed by their IEEE bit representation,
// per spec.md §3), so that equal Values of the same Kind with the same bit
// pattern (including two math.NaN() values) hash equal. The Kind tag is
// hashed too, so Integer 1 and Double 1.0 hash differently even though
// Equal reports them equal.
func (v Value) Hash() uint64 {
	h := fnv.New64a()
	writeByte(h, byte(v.Kind))
	switch v.Kind {
	case Null:
	case Integer:
		writeUint64(h, uint64(v.I64))
	case Float:
		writeUint64(h, uint64(math.Float32bits(v.F32)))
	case Double:
		writeUint64(h, math.Float64bits(v.F64))
	case Decimal:
		_, _ = h.Write([]byte(v.Dec.String()))
	case Text:
		_, _ = h.Write([]byte(v.Str))
	case Boolean:
		writeByte(h, byte(boolToInt(v.Bool)))
	case Timestamp, Date, Time:
		writeUint64(h, uint64(v.Time.UnixNano()))
	case UUID:
		_, _ = h.Write(v.UUID[:])
	case Json:
		_, _ = h.Write(v.Json)
	}
	return h.Sum64()
}

func writeByte(h interface{ Write([]byte) (int, error) }, b byte) {
	_, _ = h.Write([]byte{b})
}

func writeUint64(h interface{ Write([]byte) (int, error) }, u uint64) {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(u >> (8 * i))
	}
	_, _ = h.Write(buf[:])
}

// Key returns a comparable, string-based canonical encoding of v suitable
// for use as a Go map key (GROUP BY tuples, PK index, DISTINCT sets).
// Every Key starts with a per-Kind prefix, so only Values of the same
// Kind can share a Key: Integer 1 and Double 1.0 have different Keys even
// though Equal reports them equal.
func (v Value) Key() string {
	switch v.Kind {
	case Null:
		return "N:"
	case Integer:
		return "I:" + strconv.FormatInt(v.I64, 10)
	case Float:
		return "F:" + strconv.FormatUint(uint64(math.Float32bits(v.F32)), 10)
	case Double:
		return "D:" + strconv.FormatUint(math.Float64bits(v.F64), 10)
	case Decimal:
		return "C:" + v.Dec.String()
	case Text:
		return "S:" + v.Str
	case Boolean:
		if v.Bool {
			return "B:1"
		}
		return "B:0"
	case Timestamp:
		return "T:" + v.Time.Format("2006-01-02 15:04:05")
	case Date:
		return "A:" + v.Time.Format("2006-01-02")
	case Time:
		return "E:" + v.Time.Format("15:04:05")
	case UUID:
		return "U:" + v.UUID.String()
	case Json:
		return "J:" + string(v.Json)
	default:
		return "?"
	}
}
