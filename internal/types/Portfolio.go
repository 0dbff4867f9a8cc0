/*

This file contains the per-account valuation snapshot, the risk state
enumeration and the protocol margin thresholds.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// RiskState is the solvency classification of an account. It is recomputed
// from the latest PortfolioSnapshot on every evaluation; no transition
// history is stored.
type RiskState string

const (
	// Healthy accounts have a margin ratio at or above the maintenance
	// threshold (or no debt at all).
	RiskStateHealthy RiskState = "healthy"
	// MarginCall accounts are below maintenance but above critical: flagged
	// so the holder or keepers can top up collateral before forced action.
	RiskStateMarginCall RiskState = "margin_call"
	// SubjectToBailout accounts are below the critical threshold and will be
	// absorbed by the buffer pool on the next bailout trigger.
	RiskStateSubjectToBailout RiskState = "subject_to_bailout"
	// InBailout is the transient state between bailout re-validation and the
	// completed portfolio swap. Single-writer execution means callers never
	// observe it as a steady state.
	RiskStateInBailout RiskState = "in_bailout"
)

// PortfolioSnapshot is the derived, ephemeral valuation of one account at
// one instant. It is never persisted independently of the ledger it was
// computed from (the postgres audit trail stores copies, not state).
type PortfolioSnapshot struct {
	Account AccountID `json:"account"`

	// Collateral is the undiscounted USD value of all positive balances.
	Collateral sdkmath.LegacyDec `json:"collateral"`
	// DiscountedCollateral applies each asset's collateral discount.
	DiscountedCollateral sdkmath.LegacyDec `json:"discounted_collateral"`
	// Debt is the USD value of all negative balances, inflated by each
	// asset's debt weight. Always reported as a non-negative magnitude.
	Debt sdkmath.LegacyDec `json:"debt"`
	// Net is collateral minus debt, both undiscounted-collateral side and
	// weighted-debt side.
	Net sdkmath.LegacyDec `json:"net"`

	// Saturated reports that at least one multiplication saturated to the
	// representable maximum during valuation.
	Saturated bool `json:"saturated,omitempty"`

	AsOf time.Time `json:"as_of"`
}

// DiscountedNet is the margin-relevant net value: discounted collateral
// minus weighted debt. Bailout share minting prices portfolios with this.
func (s PortfolioSnapshot) DiscountedNet() sdkmath.LegacyDec {
	return s.DiscountedCollateral.Sub(s.Debt)
}

// MarginRatio returns discounted collateral divided by debt. The second
// return is false when debt is zero, meaning the ratio is infinite and the
// account is unconditionally healthy.
func (s PortfolioSnapshot) MarginRatio() (sdkmath.LegacyDec, bool) {
	if s.Debt.IsNil() || s.Debt.IsZero() {
		return sdkmath.LegacyZeroDec(), false
	}
	return s.DiscountedCollateral.Quo(s.Debt), true
}

// Thresholds are the governance-configured margin levels. All are ratios of
// discounted collateral to weighted debt.
type Thresholds struct {
	// Initial gates new borrowing: accounts below it may not increase debt.
	Initial sdkmath.LegacyDec `json:"initial"`
	// Maintenance separates Healthy from MarginCall.
	Maintenance sdkmath.LegacyDec `json:"maintenance"`
	// Critical separates MarginCall from SubjectToBailout.
	Critical sdkmath.LegacyDec `json:"critical"`
}

// Validate enforces initial >= maintenance >= critical > 0.
func (t Thresholds) Validate() error {
	for _, d := range []sdkmath.LegacyDec{t.Initial, t.Maintenance, t.Critical} {
		if d.IsNil() || !d.IsPositive() {
			return ErrInvalidThresholds
		}
	}
	if t.Initial.LT(t.Maintenance) || t.Maintenance.LT(t.Critical) {
		return ErrInvalidThresholds
	}
	return nil
}
