package fixed

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) sdkmath.LegacyDec { return sdkmath.LegacyMustNewDecFromStr(s) }

func TestSatMul(t *testing.T) {
	got, saturated := SatMul(dec("1.5"), dec("2"))
	require.False(t, saturated)
	assert.True(t, got.Equal(dec("3")), "got %s", got)

	got, saturated = SatMul(dec("-1.5"), dec("2"))
	require.False(t, saturated)
	assert.True(t, got.Equal(dec("-3")), "got %s", got)
}

func TestSatMulTruncatesTowardZero(t *testing.T) {
	// Smallest representable value times 0.1 underflows the mantissa.
	got, saturated := SatMul(dec("0.000000000000000001"), dec("0.1"))
	require.False(t, saturated)
	assert.True(t, got.IsZero(), "got %s", got)

	got, saturated = SatMul(dec("-0.000000000000000001"), dec("0.1"))
	require.False(t, saturated)
	assert.True(t, got.IsZero(), "got %s", got)
}

func TestSatMulSaturates(t *testing.T) {
	got, saturated := SatMul(MaxDec(), dec("2"))
	require.True(t, saturated)
	assert.True(t, got.Equal(MaxDec()))

	got, saturated = SatMul(MinDec(), dec("2"))
	require.True(t, saturated)
	assert.True(t, got.Equal(MinDec()))
}

func TestSatAddSaturates(t *testing.T) {
	got, saturated := SatAdd(MaxDec(), dec("1"))
	require.True(t, saturated)
	assert.True(t, got.Equal(MaxDec()))

	got, saturated = SatAdd(MinDec(), dec("-1"))
	require.True(t, saturated)
	assert.True(t, got.Equal(MinDec()))

	got, saturated = SatAdd(dec("1"), dec("2"))
	require.False(t, saturated)
	assert.True(t, got.Equal(dec("3")))
}

func TestTruncateToPrecision(t *testing.T) {
	assert.True(t, TruncateToPrecision(dec("1.23456789"), 4).Equal(dec("1.2345")))
	assert.True(t, TruncateToPrecision(dec("-1.239"), 2).Equal(dec("-1.23")))
	assert.True(t, TruncateToPrecision(dec("7.5"), 0).Equal(dec("7")))

	// At or beyond native precision the value passes through unchanged.
	v := dec("1.234567890123456789")
	assert.True(t, TruncateToPrecision(v, 18).Equal(v))
	assert.True(t, TruncateToPrecision(v, 25).Equal(v))

	// Negative places are clamped to integer truncation.
	assert.True(t, TruncateToPrecision(dec("3.9"), -1).Equal(dec("3")))
}

func TestTruncateToPrecisionDoesNotMutateInput(t *testing.T) {
	v := dec("1.23456789")
	_ = TruncateToPrecision(v, 2)
	assert.True(t, v.Equal(dec("1.23456789")))
}

func TestSortedKeys(t *testing.T) {
	type id string
	m := map[id]int{"charlie": 1, "alice": 2, "bob": 3}
	assert.Equal(t, []id{"alice", "bob", "charlie"}, SortedKeys(m))
	assert.Empty(t, SortedKeys(map[id]int{}))
}
