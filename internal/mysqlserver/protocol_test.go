package mysqlserver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	pw := newPacketWriter(&buf)
	require.NoError(t, pw.write([]byte("hello")))
	require.NoError(t, pw.write([]byte("world!!")))

	pr := newPacketReader(&buf)
	got, err := pr.read()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	got, err = pr.read()
	require.NoError(t, err)
	assert.Equal(t, "world!!", string(got))
}

func TestPacketSplitAtMaxSize(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{'x'}, maxPacketSize+10)
	pw := newPacketWriter(&buf)
	require.NoError(t, pw.write(payload))

	pr := newPacketReader(&buf)
	got, err := pr.read()
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestLengthEncodedIntegerRoundTrip(t *testing.T) {
	for _, n := range []uint64{0, 250, 251, 65535, 65536, 16777215, 16777216, 1 << 40} {
		buf := appendLengthEncodedInteger(nil, n)
		got, isNull, next := readLengthEncodedInteger(buf, 0)
		assert.False(t, isNull)
		assert.Equal(t, n, got)
		assert.Equal(t, len(buf), next)
	}
}

func TestNullTerminatedStringRoundTrip(t *testing.T) {
	buf := appendNullTerminatedString([]byte{0xAA}, "alice")
	s, next := readNullTerminatedString(buf, 1)
	assert.Equal(t, "alice", s)
	assert.Equal(t, len(buf), next)
}

func TestOKPacketHasOKMarker(t *testing.T) {
	pkt := buildOKPacket(3, 0, statusAutocommit)
	assert.Equal(t, iOK, pkt[0])
}

func TestErrPacketCarriesSQLState(t *testing.T) {
	pkt := buildErrPacket(1045, "28000", "Access denied for user 'bob'")
	assert.Equal(t, iERR, pkt[0])
	assert.Contains(t, string(pkt), "28000")
	assert.Contains(t, string(pkt), "Access denied for user 'bob'")
}
