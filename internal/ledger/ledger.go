// Package ledger is the balances ledger collaborator: the single
// authoritative store of per-account, per-asset signed balances. Positive
// balances are held collateral, negative balances are owed debt. The core
// reads snapshots and mutates only through this interface; exactly one
// logical writer executes at a time.
package ledger

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/marginmesh/riskcore/internal/types"
)

// Ledger is the mutable shared store consumed by the valuator, rate model
// and bailout engine.
type Ledger interface {
	// ReadBalances returns a copy of the account's non-zero balance vector,
	// or types.ErrUnknownAccount.
	ReadBalances(account types.AccountID) (map[types.AssetID]sdkmath.LegacyDec, error)
	// WriteBalances replaces the account's balance vector. Zero entries are
	// dropped; a write creates the account if needed.
	WriteBalances(account types.AccountID, balances map[types.AssetID]sdkmath.LegacyDec) error
	// Accounts returns every non-pool account in ascending ID order.
	Accounts() []types.AccountID

	// MoveAll adds the full balance vector of from onto to and zeroes from.
	// The bailout engine is the only caller.
	MoveAll(from, to types.AccountID) error
	// Transfer moves the given vector from one account to the other. Amounts
	// are taken with their sign: transferring a negative entry moves debt.
	Transfer(from, to types.AccountID, vector map[types.AssetID]sdkmath.LegacyDec) error

	// TotalSupplied returns the aggregate of positive balances for the asset.
	TotalSupplied(asset types.AssetID) sdkmath.LegacyDec
	// TotalBorrowed returns the aggregate magnitude of negative balances.
	TotalBorrowed(asset types.AssetID) sdkmath.LegacyDec
	// Utilization returns borrowed/supplied, zero when nothing is supplied.
	Utilization(asset types.AssetID) sdkmath.LegacyDec

	// Accrue applies the rate table over the elapsed interval: borrowers'
	// debt grows and the paid interest is credited to suppliers pro-rata,
	// so per-asset sums are conserved exactly.
	Accrue(rates map[types.AssetID]sdkmath.LegacyDec, elapsed time.Duration) error

	// CheckConservation verifies that every asset's net sum over all
	// accounts (pool included) still equals the supply recorded at genesis.
	CheckConservation() error
}

// InMemory is the reference Ledger implementation. Balances, aggregates and
// the recorded per-asset supply all live in process memory; persistence
// mechanics belong to the hosting layer.
type InMemory struct {
	balances map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec

	// supplied/borrowed are maintained incrementally on every write so
	// utilization queries stay O(1).
	supplied map[types.AssetID]sdkmath.LegacyDec
	borrowed map[types.AssetID]sdkmath.LegacyDec

	// supply is the fixed per-asset net sum recorded at construction. Only
	// mint/burn outside this core may change it.
	supply map[types.AssetID]sdkmath.LegacyDec
}

// NewInMemory builds a ledger from genesis balances and records the
// per-asset supply those balances imply. The buffer pool account exists even
// when genesis gives it no balances.
func NewInMemory(genesis map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec) *InMemory {
	l := &InMemory{
		balances: make(map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec, len(genesis)+1),
		supplied: make(map[types.AssetID]sdkmath.LegacyDec),
		borrowed: make(map[types.AssetID]sdkmath.LegacyDec),
		supply:   make(map[types.AssetID]sdkmath.LegacyDec),
	}
	l.balances[types.PoolAccountID] = make(map[types.AssetID]sdkmath.LegacyDec)
	for account, vector := range genesis {
		cp := make(map[types.AssetID]sdkmath.LegacyDec, len(vector))
		for asset, amount := range vector {
			if amount.IsZero() {
				continue
			}
			cp[asset] = amount
			l.bumpAggregates(asset, sdkmath.LegacyZeroDec(), amount)
			l.supply[asset] = l.supplyOf(asset).Add(amount)
		}
		l.balances[account] = cp
	}
	return l
}

func (l *InMemory) ReadBalances(account types.AccountID) (map[types.AssetID]sdkmath.LegacyDec, error) {
	vector, ok := l.balances[account]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownAccount, account)
	}
	cp := make(map[types.AssetID]sdkmath.LegacyDec, len(vector))
	for asset, amount := range vector {
		cp[asset] = amount
	}
	return cp, nil
}

func (l *InMemory) WriteBalances(account types.AccountID, balances map[types.AssetID]sdkmath.LegacyDec) error {
	old := l.balances[account]
	next := make(map[types.AssetID]sdkmath.LegacyDec, len(balances))

	// Retire aggregate contributions of the old vector, then add the new.
	for asset, amount := range old {
		l.bumpAggregates(asset, amount, sdkmath.LegacyZeroDec())
	}
	for asset, amount := range balances {
		if amount.IsNil() {
			return fmt.Errorf("write for %s: nil amount for %s", account, asset)
		}
		if amount.IsZero() {
			continue
		}
		next[asset] = amount
		l.bumpAggregates(asset, sdkmath.LegacyZeroDec(), amount)
	}
	l.balances[account] = next
	return nil
}

func (l *InMemory) Accounts() []types.AccountID {
	out := make([]types.AccountID, 0, len(l.balances))
	for account := range l.balances {
		if account == types.PoolAccountID {
			continue
		}
		out = append(out, account)
	}
	sortAccountIDs(out)
	return out
}

func (l *InMemory) MoveAll(from, to types.AccountID) error {
	fromVector, err := l.ReadBalances(from)
	if err != nil {
		return err
	}
	toVector, err := l.ReadBalances(to)
	if err != nil {
		return err
	}
	for asset, amount := range fromVector {
		toVector[asset] = balanceOf(toVector, asset).Add(amount)
	}
	if err := l.WriteBalances(to, toVector); err != nil {
		return err
	}
	return l.WriteBalances(from, nil)
}

func (l *InMemory) Transfer(from, to types.AccountID, vector map[types.AssetID]sdkmath.LegacyDec) error {
	fromVector, err := l.ReadBalances(from)
	if err != nil {
		return err
	}
	toVector, err := l.ReadBalances(to)
	if err != nil {
		return err
	}
	for asset, amount := range vector {
		if amount.IsNil() || amount.IsZero() {
			continue
		}
		fromVector[asset] = balanceOf(fromVector, asset).Sub(amount)
		toVector[asset] = balanceOf(toVector, asset).Add(amount)
	}
	if err := l.WriteBalances(from, fromVector); err != nil {
		return err
	}
	return l.WriteBalances(to, toVector)
}

func (l *InMemory) TotalSupplied(asset types.AssetID) sdkmath.LegacyDec {
	if v, ok := l.supplied[asset]; ok {
		return v
	}
	return sdkmath.LegacyZeroDec()
}

func (l *InMemory) TotalBorrowed(asset types.AssetID) sdkmath.LegacyDec {
	if v, ok := l.borrowed[asset]; ok {
		return v
	}
	return sdkmath.LegacyZeroDec()
}

func (l *InMemory) Utilization(asset types.AssetID) sdkmath.LegacyDec {
	supplied := l.TotalSupplied(asset)
	if supplied.IsZero() {
		return sdkmath.LegacyZeroDec()
	}
	return l.TotalBorrowed(asset).Quo(supplied)
}

func (l *InMemory) CheckConservation() error {
	sums := make(map[types.AssetID]sdkmath.LegacyDec)
	for _, vector := range l.balances {
		for asset, amount := range vector {
			if cur, ok := sums[asset]; ok {
				sums[asset] = cur.Add(amount)
			} else {
				sums[asset] = amount
			}
		}
	}
	for asset, recorded := range l.supply {
		actual, ok := sums[asset]
		if !ok {
			actual = sdkmath.LegacyZeroDec()
		}
		if !actual.Equal(recorded) {
			return fmt.Errorf("conservation violated for %s: recorded supply %s, ledger sum %s",
				asset, recorded.String(), actual.String())
		}
		delete(sums, asset)
	}
	for asset := range sums {
		if !sums[asset].IsZero() {
			return fmt.Errorf("conservation violated for %s: unrecorded supply %s", asset, sums[asset].String())
		}
	}
	return nil
}

// bumpAggregates replaces oldAmount's contribution with newAmount's for one
// asset of one account.
func (l *InMemory) bumpAggregates(asset types.AssetID, oldAmount, newAmount sdkmath.LegacyDec) {
	supplied := l.TotalSupplied(asset)
	borrowed := l.TotalBorrowed(asset)
	if oldAmount.IsPositive() {
		supplied = supplied.Sub(oldAmount)
	} else if oldAmount.IsNegative() {
		borrowed = borrowed.Add(oldAmount)
	}
	if newAmount.IsPositive() {
		supplied = supplied.Add(newAmount)
	} else if newAmount.IsNegative() {
		borrowed = borrowed.Sub(newAmount)
	}
	l.supplied[asset] = supplied
	l.borrowed[asset] = borrowed
}

func (l *InMemory) supplyOf(asset types.AssetID) sdkmath.LegacyDec {
	if v, ok := l.supply[asset]; ok {
		return v
	}
	return sdkmath.LegacyZeroDec()
}

func balanceOf(vector map[types.AssetID]sdkmath.LegacyDec, asset types.AssetID) sdkmath.LegacyDec {
	if v, ok := vector[asset]; ok {
		return v
	}
	return sdkmath.LegacyZeroDec()
}
