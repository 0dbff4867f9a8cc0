// Package valuator computes portfolio valuation snapshots. Valuate is a pure
// function of its inputs apart from warning logs: deterministic replay across
// replicas depends on it, so inputs arrive as complete snapshots and all
// accumulation runs in sorted asset order on fixed-point decimals.
package valuator

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/marginmesh/riskcore/internal/fixed"
	"github.com/marginmesh/riskcore/internal/logger"
	"github.com/marginmesh/riskcore/internal/types"
)

var valuatorLogger = logger.GetForComponent("portfolio_valuator")

// Valuate prices an account's signed balance vector.
//
// Positive balances accumulate into collateral and discounted collateral;
// negative balances accumulate into debt inflated by the asset's debt
// weight. Any asset with a non-zero balance must have registry metadata
// (types.ErrUnknownAsset otherwise) and a quote no older than maxPriceAge
// relative to now (types.ErrStalePrice otherwise). A stale quote fails the
// valuation outright; it is never treated as zero or last-known.
//
// Multiplications saturate at the representable maximum instead of wrapping.
// Saturation is recorded on the snapshot and logged at warning level.
func Valuate(
	account types.AccountID,
	balances map[types.AssetID]sdkmath.LegacyDec,
	prices map[types.AssetID]types.PriceQuote,
	assets map[types.AssetID]types.Asset,
	maxPriceAge time.Duration,
	now time.Time,
) (types.PortfolioSnapshot, error) {
	snapshot := types.PortfolioSnapshot{
		Account:              account,
		Collateral:           sdkmath.LegacyZeroDec(),
		DiscountedCollateral: sdkmath.LegacyZeroDec(),
		Debt:                 sdkmath.LegacyZeroDec(),
		Net:                  sdkmath.LegacyZeroDec(),
		AsOf:                 now,
	}

	for _, asset := range fixed.SortedKeys(balances) {
		amount := balances[asset]
		if amount.IsNil() || amount.IsZero() {
			continue
		}

		meta, ok := assets[asset]
		if !ok {
			return types.PortfolioSnapshot{}, fmt.Errorf("%w: %s on account %s", types.ErrUnknownAsset, asset, account)
		}

		quote, ok := prices[asset]
		if !ok {
			return types.PortfolioSnapshot{}, fmt.Errorf("%w: no quote for %s", types.ErrStalePrice, asset)
		}
		if age := quote.Age(now); age > maxPriceAge {
			return types.PortfolioSnapshot{}, fmt.Errorf("%w: %s quote is %s old (max %s)",
				types.ErrStalePrice, asset, age, maxPriceAge)
		}
		if quote.Price.IsNil() || !quote.Price.IsPositive() {
			return types.PortfolioSnapshot{}, fmt.Errorf("%w: non-positive quote for %s", types.ErrStalePrice, asset)
		}

		if amount.IsPositive() {
			value, sat1 := fixed.SatMul(amount, quote.Price)
			discounted, sat2 := fixed.SatMul(value, meta.CollateralDiscount)
			var sat3, sat4 bool
			snapshot.Collateral, sat3 = fixed.SatAdd(snapshot.Collateral, value)
			snapshot.DiscountedCollateral, sat4 = fixed.SatAdd(snapshot.DiscountedCollateral, discounted)
			recordSaturation(&snapshot, asset, sat1 || sat2 || sat3 || sat4)
		} else {
			value, sat1 := fixed.SatMul(amount.Neg(), quote.Price)
			weighted, sat2 := fixed.SatMul(value, meta.DebtWeight)
			var sat3 bool
			snapshot.Debt, sat3 = fixed.SatAdd(snapshot.Debt, weighted)
			recordSaturation(&snapshot, asset, sat1 || sat2 || sat3)
		}
	}

	snapshot.Net = snapshot.Collateral.Sub(snapshot.Debt)
	return snapshot, nil
}

func recordSaturation(snapshot *types.PortfolioSnapshot, asset types.AssetID, saturated bool) {
	if !saturated {
		return
	}
	snapshot.Saturated = true
	valuatorLogger.Warn().
		Str("account", string(snapshot.Account)).
		Str("asset", string(asset)).
		Msg("Fixed-point multiplication saturated during valuation")
}
