package value_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yamldb/yamldb/internal/value"
)

func TestNullOrdering(t *testing.T) {
	n := value.NewNull()
	i := value.NewInteger(5)
	ord, ok := n.Compare(i)
	require.True(t, ok)
	assert.Equal(t, value.Less, ord)

	ord, ok = i.Compare(n)
	require.True(t, ok)
	assert.Equal(t, value.Greater, ord)
}

func TestNumericCrossTypeCompare(t *testing.T) {
	i := value.NewInteger(3)
	d := value.NewDouble(3.0)
	ord, ok := i.Compare(d)
	require.True(t, ok)
	assert.Equal(t, value.Equal, ord)
}

func TestNaNEqualsItself(t *testing.T) {
	a := value.NewDouble(math.NaN())
	b := value.NewDouble(math.NaN())
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestRoundTripFormatting(t *testing.T) {
	cases := []struct {
		v    value.Value
		want string
	}{
		{value.NewInteger(42), "42"},
		{value.NewBoolean(true), "true"},
		{value.NewBoolean(false), "false"},
		{value.NewDate(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)), "2024-03-05"},
		{value.NewTime(time.Date(0, 1, 1, 13, 45, 9, 0, time.UTC)), "13:45:09"},
		{value.NewTimestamp(time.Date(2024, 3, 5, 13, 45, 9, 0, time.UTC)), "2024-03-05 13:45:09"},
		{value.NewNull(), "NULL"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.v.String())
	}
}

func TestCastTextToDate(t *testing.T) {
	out, err := value.Cast(value.NewText("2024-03-05"), value.Date())
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", out.String())

	_, err = value.Cast(value.NewText("03/05/2024"), value.Date())
	assert.Error(t, err)
}

func TestCastNullIsAlwaysNull(t *testing.T) {
	out, err := value.Cast(value.NewNull(), value.Integer())
	require.NoError(t, err)
	assert.True(t, out.IsNull())
}

func TestCastBooleanVariants(t *testing.T) {
	for _, s := range []string{"true", "TRUE", "1"} {
		out, err := value.Cast(value.NewText(s), value.Boolean())
		require.NoError(t, err)
		assert.True(t, out.Bool)
	}
	_, err := value.Cast(value.NewText("maybe"), value.Boolean())
	assert.Error(t, err)
}

func TestIsCompatible(t *testing.T) {
	assert.True(t, value.NewNull().IsCompatible(value.Integer()))
	assert.True(t, value.NewInteger(1).IsCompatible(value.Integer()))
	assert.False(t, value.NewInteger(1).IsCompatible(value.Text()))
}
