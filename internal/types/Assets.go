/*

This file contains the asset-level types: identifiers, registry metadata and
oracle price quotes consumed by every valuation.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// AssetID uniquely identifies an asset inside the protocol, e.g. "uatom".
type AssetID string

// AccountID uniquely identifies an account. The buffer pool itself is a
// reserved account (see PoolAccountID).
type AccountID string

// PoolAccountID is the reserved ledger account that holds the aggregate of
// all bailed-out portfolios.
const PoolAccountID AccountID = "buffer_pool"

// Asset is the registry's view of a single asset. Immutable for the duration
// of one evaluation tick; the registry collaborator owns mutation.
type Asset struct {
	ID     AssetID `json:"id"`     // e.g., "uatom"
	Symbol string  `json:"symbol"` // e.g., "ATOM"

	// Precision is the number of decimal places of the asset's smallest lot,
	// used for display and payout rounding (e.g., 6 for uatom).
	Precision int `json:"precision"`

	// CollateralDiscount is the haircut applied to collateral value,
	// in [0,1]. 0.8 means 100 USD of the asset counts as 80 USD of margin.
	CollateralDiscount sdkmath.LegacyDec `json:"collateral_discount"`

	// DebtWeight inflates liability value, >= 1. 1.1 means 100 USD owed
	// counts as 110 USD against the account's margin.
	DebtWeight sdkmath.LegacyDec `json:"debt_weight"`
}

// Validate checks the registry metadata ranges.
func (a Asset) Validate() error {
	if a.ID == "" {
		return ErrUnknownAsset
	}
	if a.CollateralDiscount.IsNil() || a.CollateralDiscount.IsNegative() || a.CollateralDiscount.GT(sdkmath.LegacyOneDec()) {
		return ErrInvalidAssetParams
	}
	if a.DebtWeight.IsNil() || a.DebtWeight.LT(sdkmath.LegacyOneDec()) {
		return ErrInvalidAssetParams
	}
	if a.Precision < 0 || a.Precision > 18 {
		return ErrInvalidAssetParams
	}
	return nil
}

// PriceQuote is a timestamped fair price for one asset, supplied by the
// oracle collaborator. Staleness is judged by the consumer against its
// configured max age; a stale quote is a hard failure, never a zero price.
type PriceQuote struct {
	Asset AssetID           `json:"asset"`
	Price sdkmath.LegacyDec `json:"price"` // USD per whole unit
	AsOf  time.Time         `json:"as_of"`
}

// Age returns how old the quote is relative to now.
func (q PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.AsOf)
}
