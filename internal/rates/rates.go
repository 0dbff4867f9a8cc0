// Package rates derives per-asset borrow rates from utilization. The model
// only produces the instantaneous rate; the ledger owns the compounding
// schedule that applies it over elapsed time.
package rates

import (
	sdkmath "cosmossdk.io/math"

	"github.com/marginmesh/riskcore/internal/fixed"
	"github.com/marginmesh/riskcore/internal/types"
)

// RateAt evaluates the piecewise-linear curve at the given utilization.
// Below the kink: base + u*slope1. Above: base + kink*slope1 +
// (u-kink)*slope2. Zero utilization returns the base rate exactly. Negative
// utilization is treated as zero; values above 1 keep following the steep
// segment, so the curve is monotone over its whole domain.
func RateAt(curve types.RateCurve, utilization sdkmath.LegacyDec) sdkmath.LegacyDec {
	if utilization.IsNil() || utilization.IsNegative() {
		return curve.BaseRate
	}
	if utilization.LTE(curve.Kink) {
		return curve.BaseRate.Add(utilization.Mul(curve.Slope1))
	}
	atKink := curve.BaseRate.Add(curve.Kink.Mul(curve.Slope1))
	excess := utilization.Sub(curve.Kink)
	return atKink.Add(excess.Mul(curve.Slope2))
}

// DeriveRates evaluates each asset's curve at its utilization. Assets
// missing from either map are skipped: a rate is only meaningful when both
// the utilization ratio and the governance-configured curve exist.
func DeriveRates(
	utilization map[types.AssetID]sdkmath.LegacyDec,
	curves map[types.AssetID]types.RateCurve,
) map[types.AssetID]sdkmath.LegacyDec {
	out := make(map[types.AssetID]sdkmath.LegacyDec, len(curves))
	for _, asset := range fixed.SortedKeys(curves) {
		u, ok := utilization[asset]
		if !ok {
			continue
		}
		out[asset] = RateAt(curves[asset], u)
	}
	return out
}
