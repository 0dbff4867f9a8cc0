// Package solvency derives an account's risk state from its valuation
// snapshot. Classification is a pure function recomputed from scratch on
// every call: no transition history is stored, so the reported state can
// never drift from the true solvency condition.
package solvency

import (
	"github.com/marginmesh/riskcore/internal/types"
)

// Classify maps a snapshot onto the risk state bands:
//
//	margin ratio >= maintenance  -> Healthy
//	critical <= ratio < maintenance -> MarginCall
//	ratio < critical             -> SubjectToBailout
//
// Zero debt means an infinite margin ratio and is always Healthy.
func Classify(snapshot types.PortfolioSnapshot, thresholds types.Thresholds) types.RiskState {
	ratio, finite := snapshot.MarginRatio()
	if !finite {
		return types.RiskStateHealthy
	}
	switch {
	case ratio.GTE(thresholds.Maintenance):
		return types.RiskStateHealthy
	case ratio.GTE(thresholds.Critical):
		return types.RiskStateMarginCall
	default:
		return types.RiskStateSubjectToBailout
	}
}

// BorrowAllowed reports whether the account may increase its debt: the
// margin ratio must sit at or above the initial threshold. Accounts between
// initial and maintenance are healthy but frozen for new borrowing.
func BorrowAllowed(snapshot types.PortfolioSnapshot, thresholds types.Thresholds) bool {
	ratio, finite := snapshot.MarginRatio()
	if !finite {
		return true
	}
	return ratio.GTE(thresholds.Initial)
}
