package bailout

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"

	"github.com/marginmesh/riskcore/internal/fixed"
	"github.com/marginmesh/riskcore/internal/solvency"
	"github.com/marginmesh/riskcore/internal/types"
	"github.com/marginmesh/riskcore/internal/valuator"
)

// Deposit moves a vector of held collateral from a solvent account into the
// pool in exchange for newly minted shares at the current value-per-share.
// This funds the buffer: it is the voluntary inverse of loss socialization.
//
// Only positive amounts can be deposited, the depositor must remain Healthy
// after the transfer, and a first-time provider's deposit must meet the
// minimum registration value.
func (p *Pool) Deposit(
	account types.AccountID,
	vector map[types.AssetID]sdkmath.LegacyDec,
	prices map[types.AssetID]types.PriceQuote,
	assets map[types.AssetID]types.Asset,
	now time.Time,
) (types.BailoutEvent, error) {
	if p.halted {
		return types.BailoutEvent{}, fmt.Errorf("%w: %v", types.ErrBailoutsHalted, p.haltReason)
	}
	if account == types.PoolAccountID {
		return types.BailoutEvent{}, fmt.Errorf("pool account cannot deposit into itself")
	}
	if len(vector) == 0 {
		return types.BailoutEvent{}, fmt.Errorf("deposit vector is empty")
	}

	balances, err := p.ledger.ReadBalances(account)
	if err != nil {
		return types.BailoutEvent{}, err
	}

	// Validate the vector and compute the depositor's post-transfer
	// balances before any mutation.
	remaining := make(map[types.AssetID]sdkmath.LegacyDec, len(balances))
	for asset, amount := range balances {
		remaining[asset] = amount
	}
	for _, asset := range fixed.SortedKeys(vector) {
		amount := vector[asset]
		if amount.IsNil() || !amount.IsPositive() {
			return types.BailoutEvent{}, fmt.Errorf("deposit for %s: amount must be positive", asset)
		}
		held, ok := remaining[asset]
		if !ok || held.LT(amount) {
			return types.BailoutEvent{}, fmt.Errorf("deposit for %s: amount exceeds held balance", asset)
		}
		remaining[asset] = held.Sub(amount)
	}

	depositSnapshot, err := valuator.Valuate(account, vector, prices, assets, p.maxPriceAge, now)
	if err != nil {
		return types.BailoutEvent{}, err
	}
	depositValue := depositSnapshot.DiscountedCollateral
	if !depositValue.IsPositive() {
		return types.BailoutEvent{}, fmt.Errorf("deposit has no discounted value")
	}
	if p.Shares(account).IsZero() && depositValue.LT(p.minProviderDeposit) {
		return types.BailoutEvent{}, fmt.Errorf("%w: %s < %s",
			types.ErrBelowMinimumDeposit, depositValue.String(), p.minProviderDeposit.String())
	}

	remainingSnapshot, err := valuator.Valuate(account, remaining, prices, assets, p.maxPriceAge, now)
	if err != nil {
		return types.BailoutEvent{}, err
	}
	// Provider rule from the original protocol: pool participants must stay
	// fully Healthy, not merely above critical.
	if state := solvency.Classify(remainingSnapshot, p.thresholds); state != types.RiskStateHealthy {
		return types.BailoutEvent{}, fmt.Errorf("deposit would leave %s in state %s", account, state)
	}

	poolSnapshot, err := p.Snapshot(prices, assets, now)
	if err != nil {
		return types.BailoutEvent{}, err
	}
	poolNetBefore := poolSnapshot.DiscountedNet()
	vpsBefore := p.ValuePerShare(poolNetBefore)
	minted := depositValue.Quo(vpsBefore)

	if err := p.ledger.Transfer(account, types.PoolAccountID, vector); err != nil {
		return types.BailoutEvent{}, err
	}
	p.shares[account] = p.Shares(account).Add(minted)
	p.totalShares = p.totalShares.Add(minted)
	if err := p.ledger.CheckConservation(); err != nil {
		return types.BailoutEvent{}, p.halt(err)
	}

	event := types.BailoutEvent{
		EventID:             uuid.NewString(),
		Account:             account,
		Kind:                "deposit",
		NetValue:            depositValue,
		SharesDelta:         minted,
		ValuePerShareBefore: vpsBefore,
		ValuePerShareAfter:  p.ValuePerShare(poolNetBefore.Add(depositValue)),
		Timestamp:           now,
	}

	p.log.Info().
		Str("event_id", event.EventID).
		Str("account", string(account)).
		Str("deposit_value", depositValue.String()).
		Str("shares_minted", minted.String()).
		Msg("Provider deposit into buffer pool")

	return event, nil
}

// Withdraw burns share units and pays out the account's pro-rata slice of
// the pool's current aggregate balance vector, debt included: a provider
// leaving the pool takes its proportional part of absorbed liabilities with
// it, which is how losses are ultimately realized.
func (p *Pool) Withdraw(
	account types.AccountID,
	shares sdkmath.LegacyDec,
	prices map[types.AssetID]types.PriceQuote,
	assets map[types.AssetID]types.Asset,
	now time.Time,
) (types.BailoutEvent, error) {
	if p.halted {
		return types.BailoutEvent{}, fmt.Errorf("%w: %v", types.ErrBailoutsHalted, p.haltReason)
	}
	if shares.IsNil() || !shares.IsPositive() {
		return types.BailoutEvent{}, fmt.Errorf("%w: requested shares must be positive", types.ErrInsufficientShares)
	}
	held := p.Shares(account)
	if held.LT(shares) {
		return types.BailoutEvent{}, fmt.Errorf("%w: account %s holds %s, requested %s",
			types.ErrInsufficientShares, account, held.String(), shares.String())
	}

	poolBalances, err := p.ledger.ReadBalances(types.PoolAccountID)
	if err != nil {
		return types.BailoutEvent{}, err
	}
	poolSnapshot, err := valuator.Valuate(types.PoolAccountID, poolBalances, prices, assets, p.maxPriceAge, now)
	if err != nil {
		return types.BailoutEvent{}, err
	}
	poolNetBefore := poolSnapshot.DiscountedNet()
	vpsBefore := p.ValuePerShare(poolNetBefore)

	fraction := shares.Quo(p.totalShares)

	// Build the payout vector first; the transfer happens only once every
	// slice has passed the underflow guard.
	payout := make(map[types.AssetID]sdkmath.LegacyDec, len(poolBalances))
	for _, asset := range fixed.SortedKeys(poolBalances) {
		amount := poolBalances[asset]
		slice := amount.Mul(fraction)
		if meta, ok := assets[asset]; ok {
			slice = fixed.TruncateToPrecision(slice, meta.Precision)
		}
		if slice.IsZero() {
			continue
		}
		// A payout slice larger in magnitude than the pool's balance means
		// the share accounting is corrupt. Fatal.
		if slice.Abs().GT(amount.Abs()) {
			return types.BailoutEvent{}, p.halt(fmt.Errorf("%w: payout %s of %s exceeds pool balance %s",
				types.ErrPoolUnderflow, slice.String(), asset, amount.String()))
		}
		payout[asset] = slice
	}

	if err := p.ledger.Transfer(types.PoolAccountID, account, payout); err != nil {
		return types.BailoutEvent{}, p.halt(err)
	}
	p.shares[account] = held.Sub(shares)
	p.totalShares = p.totalShares.Sub(shares)
	if p.shares[account].IsZero() {
		// Zero shares deregisters the provider.
		delete(p.shares, account)
	}
	if err := p.ledger.CheckConservation(); err != nil {
		return types.BailoutEvent{}, p.halt(err)
	}

	payoutSnapshot, err := valuator.Valuate(account, payout, prices, assets, p.maxPriceAge, now)
	if err != nil {
		return types.BailoutEvent{}, p.halt(err)
	}
	payoutNet := payoutSnapshot.DiscountedNet()

	event := types.BailoutEvent{
		EventID:             uuid.NewString(),
		Account:             account,
		Kind:                "withdraw",
		NetValue:            payoutNet,
		SharesDelta:         shares.Neg(),
		ValuePerShareBefore: vpsBefore,
		ValuePerShareAfter:  p.ValuePerShare(poolNetBefore.Sub(payoutNet)),
		Timestamp:           now,
	}

	p.log.Info().
		Str("event_id", event.EventID).
		Str("account", string(account)).
		Str("shares_burned", shares.String()).
		Str("payout_value", payoutNet.String()).
		Msg("Provider withdrawal from buffer pool")

	return event, nil
}
