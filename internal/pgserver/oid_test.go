package pgserver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yamldb/yamldb/internal/value"
)

func TestOidForValue(t *testing.T) {
	assert.Equal(t, oidInt8, oidForValue(value.NewInteger(1)))
	assert.Equal(t, oidBool, oidForValue(value.NewBoolean(true)))
	assert.Equal(t, oidText, oidForValue(value.NewText("x")))
	assert.Equal(t, oidText, oidForValue(value.NewNull()))
}

func TestEncodeTextNull(t *testing.T) {
	assert.Nil(t, encodeText(value.NewNull()))
	assert.Equal(t, "42", string(encodeText(value.NewInteger(42))))
}

func TestEncodeBinaryInteger(t *testing.T) {
	b := encodeBinary(value.NewInteger(1))
	assert.Len(t, b, 8)
	assert.Equal(t, byte(1), b[7])
}

func TestEncodeBinaryBoolean(t *testing.T) {
	assert.Equal(t, []byte{1}, encodeBinary(value.NewBoolean(true)))
	assert.Equal(t, []byte{0}, encodeBinary(value.NewBoolean(false)))
}
