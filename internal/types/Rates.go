/*

This file contains the interest rate curve configuration consumed by the
rate model. Curves are governance-configured, read-only to this core.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// RateCurve is a piecewise-linear borrow-rate curve with a single kink.
// Below the kink the rate rises slowly with utilization; above it the slope
// jumps so over-utilization prices itself out and withdrawal liquidity is
// protected. Utilization self-stabilizes near the kink under rational
// borrower/lender behavior.
type RateCurve struct {
	// BaseRate is the annualized rate at zero utilization.
	BaseRate sdkmath.LegacyDec `json:"base_rate"`
	// Slope1 is the rate increase per unit of utilization below the kink.
	Slope1 sdkmath.LegacyDec `json:"slope1"`
	// Slope2 is the rate increase per unit of utilization above the kink.
	Slope2 sdkmath.LegacyDec `json:"slope2"`
	// Kink is the utilization ratio at which the slope changes, in (0,1].
	Kink sdkmath.LegacyDec `json:"kink"`
}

// Validate enforces non-negative rates, a steeper post-kink slope and a kink
// inside (0,1].
func (c RateCurve) Validate() error {
	for _, d := range []sdkmath.LegacyDec{c.BaseRate, c.Slope1, c.Slope2, c.Kink} {
		if d.IsNil() || d.IsNegative() {
			return ErrInvalidRateCurve
		}
	}
	if c.Slope2.LT(c.Slope1) {
		return ErrInvalidRateCurve
	}
	if c.Kink.IsZero() || c.Kink.GT(sdkmath.LegacyOneDec()) {
		return ErrInvalidRateCurve
	}
	return nil
}
