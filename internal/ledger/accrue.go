package ledger

import (
	"fmt"
	"sort"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/marginmesh/riskcore/internal/fixed"
	"github.com/marginmesh/riskcore/internal/logger"
	"github.com/marginmesh/riskcore/internal/types"
)

var accrualLogger = logger.GetForComponent("ledger_accrual")

// secondsPerYear converts annualized rates to per-interval fractions.
const secondsPerYear = 365 * 24 * 60 * 60

// Accrue applies one accrual step. Per asset, every borrower's debt grows by
// balance * rate * elapsed/year; the collected interest is distributed to
// that asset's suppliers pro-rata of their positive balances, with the
// truncation remainder credited to the buffer pool account. The per-asset
// net sum is therefore unchanged: interest is a transfer from borrowers to
// suppliers, not a mint.
func (l *InMemory) Accrue(rates map[types.AssetID]sdkmath.LegacyDec, elapsed time.Duration) error {
	if elapsed <= 0 {
		return nil
	}
	yearFraction := sdkmath.LegacyNewDec(int64(elapsed / time.Second)).
		Quo(sdkmath.LegacyNewDec(secondsPerYear))
	if yearFraction.IsZero() {
		return nil
	}

	accounts := make([]types.AccountID, 0, len(l.balances))
	for account := range l.balances {
		accounts = append(accounts, account)
	}
	sortAccountIDs(accounts)

	for _, asset := range fixed.SortedKeys(rates) {
		rate := rates[asset]
		if rate.IsNil() || rate.IsNegative() {
			return fmt.Errorf("accrual for %s: invalid rate", asset)
		}
		if rate.IsZero() {
			continue
		}
		factor := rate.Mul(yearFraction)

		// First pass: charge borrowers, remembering supplier weights.
		collected := sdkmath.LegacyZeroDec()
		suppliedTotal := sdkmath.LegacyZeroDec()
		for _, account := range accounts {
			amount, ok := l.balances[account][asset]
			if !ok {
				continue
			}
			if amount.IsNegative() {
				interest := amount.Neg().Mul(factor)
				l.balances[account][asset] = amount.Sub(interest)
				l.bumpAggregates(asset, amount, l.balances[account][asset])
				collected = collected.Add(interest)
			} else {
				suppliedTotal = suppliedTotal.Add(amount)
			}
		}
		if collected.IsZero() {
			continue
		}

		// Second pass: credit suppliers pro-rata with truncation; the dust
		// goes to the pool account so the asset sum stays exact.
		distributed := sdkmath.LegacyZeroDec()
		if suppliedTotal.IsPositive() {
			for _, account := range accounts {
				amount, ok := l.balances[account][asset]
				if !ok || !amount.IsPositive() {
					continue
				}
				credit := collected.Mul(amount).QuoTruncate(suppliedTotal)
				if credit.IsZero() {
					continue
				}
				l.balances[account][asset] = amount.Add(credit)
				l.bumpAggregates(asset, amount, l.balances[account][asset])
				distributed = distributed.Add(credit)
			}
		}
		remainder := collected.Sub(distributed)
		if !remainder.IsZero() {
			pool := l.balances[types.PoolAccountID]
			old := balanceOf(pool, asset)
			pool[asset] = old.Add(remainder)
			l.bumpAggregates(asset, old, pool[asset])
		}

		accrualLogger.Debug().
			Str("asset", string(asset)).
			Str("interest", collected.String()).
			Str("remainder", remainder.String()).
			Msg("Accrual step applied")
	}

	return nil
}

func sortAccountIDs(ids []types.AccountID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
