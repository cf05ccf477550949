package fixtype

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInt(t *testing.T) {
	v, err := ParseInt([]byte("42"))
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = ParseInt([]byte("-7"))
	require.NoError(t, err)
	assert.Equal(t, int64(-7), v)

	v, err = ParseInt([]byte("007"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	for _, bad := range []string{"", "-", "1.5", "1e3", " 1", "1 ", "+1", "abc"} {
		_, err := ParseInt([]byte(bad))
		assert.Error(t, err, "%q", bad)
	}
}

func TestParseSeqNum(t *testing.T) {
	v, err := ParseSeqNum([]byte("123456789"))
	require.NoError(t, err)
	assert.Equal(t, uint64(123456789), v)

	for _, bad := range []string{"", "-1", "1.0", "x"} {
		_, err := ParseSeqNum([]byte(bad))
		assert.Error(t, err, "%q", bad)
	}
}

func TestParseFloat(t *testing.T) {
	v, err := ParseFloat([]byte("150.25"))
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("150.25")))

	v, err = ParseFloat([]byte("-0.003"))
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.RequireFromString("-0.003")))

	// Exact decimal text survives a round trip without binary float drift.
	assert.Equal(t, "0.1", string(AppendFloat(nil, v.Neg().Div(decimal.NewFromInt(3)).Mul(decimal.NewFromInt(100)).Round(1))))

	for _, bad := range []string{"", ".", "1.", ".5", "1e5", "1.2.3", "NaN", "-"} {
		_, err := ParseFloat([]byte(bad))
		assert.Error(t, err, "%q", bad)
	}
}

func TestFloatRoundTripText(t *testing.T) {
	for _, s := range []string{"0", "1", "-1", "150.25", "0.0001", "-99999999.99999999"} {
		v, err := ParseFloat([]byte(s))
		require.NoError(t, err, s)
		got, err := ParseFloat(AppendFloat(nil, v))
		require.NoError(t, err, s)
		assert.True(t, v.Equal(got), s)
	}
}

func TestParseBoolAndChar(t *testing.T) {
	v, err := ParseBool([]byte("Y"))
	require.NoError(t, err)
	assert.True(t, v)
	v, err = ParseBool([]byte("N"))
	require.NoError(t, err)
	assert.False(t, v)
	_, err = ParseBool([]byte("T"))
	assert.Error(t, err)
	_, err = ParseBool([]byte("YY"))
	assert.Error(t, err)

	c, err := ParseChar([]byte("1"))
	require.NoError(t, err)
	assert.Equal(t, byte('1'), c)
	_, err = ParseChar([]byte(""))
	assert.Error(t, err)
	_, err = ParseChar([]byte("12"))
	assert.Error(t, err)
}

func TestParseUTCTimestamp(t *testing.T) {
	ts, err := ParseUTCTimestamp([]byte("20260829-14:03:05.123"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 14, 3, 5, 123_000_000, time.UTC), ts)

	ts, err = ParseUTCTimestamp([]byte("20260829-14:03:05"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 29, 14, 3, 5, 0, time.UTC), ts)

	for _, bad := range []string{"", "20260829", "2026-08-29 14:03:05", "20260832-14:03:05"} {
		_, err := ParseUTCTimestamp([]byte(bad))
		assert.Error(t, err, "%q", bad)
	}
}

func TestAppendUTCTimestampAlwaysMillis(t *testing.T) {
	ts := time.Date(2026, 8, 29, 14, 3, 5, 123_456_789, time.UTC)
	assert.Equal(t, "20260829-14:03:05.123", string(AppendUTCTimestamp(nil, ts)))

	whole := time.Date(2026, 8, 29, 14, 3, 5, 0, time.UTC)
	assert.Equal(t, "20260829-14:03:05.000", string(AppendUTCTimestamp(nil, whole)))
}

func TestLocalDate(t *testing.T) {
	d, err := ParseLocalDate([]byte("20260829"))
	require.NoError(t, err)
	assert.Equal(t, "20260829", string(AppendLocalDate(nil, d)))
	_, err = ParseLocalDate([]byte("2026082"))
	assert.Error(t, err)
}

func TestKindAcceptsEmpty(t *testing.T) {
	assert.True(t, KindString.AcceptsEmpty())
	assert.True(t, KindData.AcceptsEmpty())
	assert.False(t, KindInt.AcceptsEmpty())
	assert.False(t, KindUTCTimestamp.AcceptsEmpty())
	assert.False(t, KindChar.AcceptsEmpty())
}
