/*

This file contains saturating fixed-point helpers on top of sdkmath.LegacyDec
plus the sorted-iteration helpers that keep every accumulation in this core
independent of Go's randomized map order.

sdkmath.LegacyDec panics once its mantissa outgrows the representable range,
which is unusable in a valuation path that must saturate-and-warn instead of
abort. The helpers below do the raw multiplication on math/big and clamp to a
fixed ceiling before converting back, so results stay inside the LegacyDec
representation and replicas stay bit-identical.

*/

package fixed

import (
	"math/big"
	"sort"

	sdkmath "cosmossdk.io/math"
)

// precision mirrors sdkmath.LegacyPrecision (18 fractional digits).
const precision = 18

var (
	// scale is 10^18, the LegacyDec mantissa scale.
	scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(precision), nil)

	// maxMantissa is the saturation ceiling, 2^250-1, comfortably inside the
	// range LegacyDec can hold without panicking.
	maxMantissa = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 250), big.NewInt(1))
)

// MaxDec returns the largest representable value used for saturation.
func MaxDec() sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecFromBigIntWithPrec(new(big.Int).Set(maxMantissa), precision)
}

// MinDec returns the negative saturation bound.
func MinDec() sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecFromBigIntWithPrec(new(big.Int).Neg(maxMantissa), precision)
}

// SatMul multiplies two decimals, truncating toward zero. The bool reports
// whether the result saturated to MaxDec/MinDec.
func SatMul(a, b sdkmath.LegacyDec) (sdkmath.LegacyDec, bool) {
	prod := new(big.Int).Mul(a.BigInt(), b.BigInt())
	prod.Quo(prod, scale)
	return clamp(prod)
}

// SatAdd adds two decimals with the same saturation behavior.
func SatAdd(a, b sdkmath.LegacyDec) (sdkmath.LegacyDec, bool) {
	sum := new(big.Int).Add(a.BigInt(), b.BigInt())
	return clamp(sum)
}

func clamp(mantissa *big.Int) (sdkmath.LegacyDec, bool) {
	if mantissa.CmpAbs(maxMantissa) > 0 {
		if mantissa.Sign() < 0 {
			return MinDec(), true
		}
		return MaxDec(), true
	}
	return sdkmath.LegacyNewDecFromBigIntWithPrec(mantissa, precision), false
}

// TruncateToPrecision truncates d toward zero to the given number of decimal
// places. Used for payout lot rounding.
func TruncateToPrecision(d sdkmath.LegacyDec, places int) sdkmath.LegacyDec {
	if places < 0 {
		places = 0
	}
	if places >= precision {
		return d
	}
	shift := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(precision-places)), nil)
	m := d.BigInt()
	m.Quo(m, shift)
	m.Mul(m, shift)
	return sdkmath.LegacyNewDecFromBigIntWithPrec(m, precision)
}

// SortedKeys returns the keys of a string-keyed map in ascending order.
// Every map walk in the valuation, accrual and bailout paths goes through
// this so accumulation order is deterministic across replicas.
func SortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
