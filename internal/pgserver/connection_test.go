package pgserver

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yamldb/yamldb/internal/value"
)

func TestDecodeTextParamTypedInteger(t *testing.T) {
	v, err := decodeTextParam(oidInt4, []byte("42"))
	require.NoError(t, err)
	assert.Equal(t, value.Integer, v.Kind)
	assert.Equal(t, int64(42), v.I64)
}

func TestDecodeTextParamUntypedInfersInteger(t *testing.T) {
	v, err := decodeBindParam(0, 0, []byte("7"))
	require.NoError(t, err)
	assert.Equal(t, value.Integer, v.Kind)
	assert.Equal(t, int64(7), v.I64)
}

func TestDecodeTextParamUntypedFallsBackToText(t *testing.T) {
	v, err := decodeBindParam(0, 0, []byte("alice"))
	require.NoError(t, err)
	assert.Equal(t, value.Text, v.Kind)
	assert.Equal(t, "alice", v.Str)
}

func TestDecodeBinaryParamInt4(t *testing.T) {
	raw := make([]byte, 4)
	binary.BigEndian.PutUint32(raw, 27)
	v, err := decodeBindParam(oidInt4, 1, raw)
	require.NoError(t, err)
	assert.Equal(t, int64(27), v.I64)
}

func TestDecodeBindParamsNullPassthrough(t *testing.T) {
	vals, err := decodeBindParams([]uint32{oidInt4}, []int16{0}, [][]byte{nil})
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.True(t, vals[0].IsNull())
}

func TestDecodeTextParamBoolean(t *testing.T) {
	v, err := decodeTextParam(oidBool, []byte("true"))
	require.NoError(t, err)
	assert.True(t, v.Bool)

	v, err = decodeTextParam(oidBool, []byte("f"))
	require.NoError(t, err)
	assert.False(t, v.Bool)
}

func TestCountParams(t *testing.T) {
	assert.Equal(t, 2, countParams("SELECT * FROM users WHERE age > $1 AND active = $2"))
	assert.Equal(t, 0, countParams("SELECT 1"))
}
