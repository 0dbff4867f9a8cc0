// Package bailout executes the no-auction bailout state machine: insolvent
// portfolios are absorbed whole by the shared buffer pool and losses are
// socialized across the pool's providers through the share price. All
// operations are all-or-nothing: every mutation is computed and validated
// before the first ledger write.
package bailout

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marginmesh/riskcore/internal/ledger"
	"github.com/marginmesh/riskcore/internal/logger"
	"github.com/marginmesh/riskcore/internal/solvency"
	"github.com/marginmesh/riskcore/internal/types"
	"github.com/marginmesh/riskcore/internal/valuator"
)

// Pool owns the buffer pool's share accounting and the bailout/deposit/
// withdraw operations against the reserved pool account. Single logical
// writer; no internal locking.
type Pool struct {
	ledger     ledger.Ledger
	thresholds types.Thresholds

	shares      map[types.AccountID]sdkmath.LegacyDec
	totalShares sdkmath.LegacyDec

	// minProviderDeposit gates first-time provider registration.
	minProviderDeposit sdkmath.LegacyDec

	maxPriceAge time.Duration

	// halted latches on PoolUnderflow or InvalidRiskTransition. Only an
	// operator restart (Resume) clears it; automatic retry of a buggy
	// invariant violation risks compounding loss.
	halted     bool
	haltReason error

	log zerolog.Logger
}

// NewPool creates an empty-share pool over the given ledger.
func NewPool(l ledger.Ledger, thresholds types.Thresholds, minProviderDeposit sdkmath.LegacyDec, maxPriceAge time.Duration) (*Pool, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	if minProviderDeposit.IsNil() || minProviderDeposit.IsNegative() {
		return nil, fmt.Errorf("minimum provider deposit must be non-negative")
	}
	return &Pool{
		ledger:             l,
		thresholds:         thresholds,
		shares:             make(map[types.AccountID]sdkmath.LegacyDec),
		totalShares:        sdkmath.LegacyZeroDec(),
		minProviderDeposit: minProviderDeposit,
		maxPriceAge:        maxPriceAge,
		log:                logger.GetForComponent("bailout_pool"),
	}, nil
}

// Halted reports whether a fatal accounting error has stopped bailout
// processing.
func (p *Pool) Halted() bool { return p.halted }

// HaltReason returns the error that latched the halt flag, nil if running.
func (p *Pool) HaltReason() error { return p.haltReason }

// Resume clears the halt flag after operator inspection.
func (p *Pool) Resume() {
	p.log.Warn().Msg("Bailout processing resumed by operator")
	p.halted = false
	p.haltReason = nil
}

// Shares returns the share units held by the account.
func (p *Pool) Shares(account types.AccountID) sdkmath.LegacyDec {
	if s, ok := p.shares[account]; ok {
		return s
	}
	return sdkmath.LegacyZeroDec()
}

// TotalShares returns the pool's total share units.
func (p *Pool) TotalShares() sdkmath.LegacyDec { return p.totalShares }

// Providers returns the number of accounts holding shares.
func (p *Pool) Providers() int { return len(p.shares) }

// Snapshot valuates the pool account at the given prices.
func (p *Pool) Snapshot(prices map[types.AssetID]types.PriceQuote, assets map[types.AssetID]types.Asset, now time.Time) (types.PortfolioSnapshot, error) {
	balances, err := p.ledger.ReadBalances(types.PoolAccountID)
	if err != nil {
		return types.PortfolioSnapshot{}, err
	}
	return valuator.Valuate(types.PoolAccountID, balances, prices, assets, p.maxPriceAge, now)
}

// ValuePerShare returns the pool's discounted net value per share unit.
// An empty pool, and a pool whose net value has been wiped out entirely,
// both price new shares at 1 so share minting stays well-defined.
func (p *Pool) ValuePerShare(poolNet sdkmath.LegacyDec) sdkmath.LegacyDec {
	if p.totalShares.IsZero() || !poolNet.IsPositive() {
		return sdkmath.LegacyOneDec()
	}
	return poolNet.Quo(p.totalShares)
}

// Summary builds the read-only pool view.
func (p *Pool) Summary(prices map[types.AssetID]types.PriceQuote, assets map[types.AssetID]types.Asset, now time.Time) (types.PoolSummary, error) {
	balances, err := p.ledger.ReadBalances(types.PoolAccountID)
	if err != nil {
		return types.PoolSummary{}, err
	}
	snapshot, err := valuator.Valuate(types.PoolAccountID, balances, prices, assets, p.maxPriceAge, now)
	if err != nil {
		return types.PoolSummary{}, err
	}
	net := snapshot.DiscountedNet()
	return types.PoolSummary{
		Balances:      balances,
		TotalShares:   p.totalShares,
		NetValue:      net,
		ValuePerShare: p.ValuePerShare(net),
		Providers:     len(p.shares),
		Halted:        p.halted,
		AsOf:          now,
	}, nil
}

// BailOut absorbs the account's entire portfolio into the pool.
//
// Insolvency is re-validated here at execution time, never trusted from an
// earlier tick. If the portfolio's discounted net value is non-negative the
// account is minted shares at the current value-per-share; if it is negative
// the shortfall dilutes every existing share (the loss-socialization
// mechanism). Afterwards the account must be empty and Healthy; anything
// else is types.ErrInvalidRiskTransition and halts the pool.
func (p *Pool) BailOut(
	account types.AccountID,
	prices map[types.AssetID]types.PriceQuote,
	assets map[types.AssetID]types.Asset,
	now time.Time,
) (types.BailoutEvent, error) {
	if p.halted {
		return types.BailoutEvent{}, fmt.Errorf("%w: %v", types.ErrBailoutsHalted, p.haltReason)
	}
	if account == types.PoolAccountID {
		return types.BailoutEvent{}, fmt.Errorf("%w: pool account cannot be bailed out", types.ErrNotInsolvent)
	}

	balances, err := p.ledger.ReadBalances(account)
	if err != nil {
		return types.BailoutEvent{}, err
	}
	snapshot, err := valuator.Valuate(account, balances, prices, assets, p.maxPriceAge, now)
	if err != nil {
		return types.BailoutEvent{}, err
	}
	if state := solvency.Classify(snapshot, p.thresholds); state != types.RiskStateSubjectToBailout {
		return types.BailoutEvent{}, fmt.Errorf("%w: account %s is %s", types.ErrNotInsolvent, account, state)
	}

	poolSnapshot, err := p.Snapshot(prices, assets, now)
	if err != nil {
		return types.BailoutEvent{}, err
	}
	poolNetBefore := poolSnapshot.DiscountedNet()
	vpsBefore := p.ValuePerShare(poolNetBefore)

	net := snapshot.DiscountedNet()
	minted := sdkmath.LegacyZeroDec()
	if !net.IsNegative() {
		minted = net.Quo(vpsBefore)
	}

	// Point of no return: the full vector swap plus the share adjustment
	// must both land. MoveAll cannot fail after both reads succeeded above.
	if err := p.ledger.MoveAll(account, types.PoolAccountID); err != nil {
		return types.BailoutEvent{}, err
	}
	if minted.IsPositive() {
		p.shares[account] = p.Shares(account).Add(minted)
		p.totalShares = p.totalShares.Add(minted)
	}

	// Checked post-condition, not an assumption: the account is empty, so
	// its recomputed state must be Healthy.
	residual, err := p.ledger.ReadBalances(account)
	if err != nil {
		return types.BailoutEvent{}, p.halt(err)
	}
	if len(residual) != 0 {
		return types.BailoutEvent{}, p.halt(fmt.Errorf("%w: residual balances after bailout of %s",
			types.ErrInvalidRiskTransition, account))
	}
	postSnapshot, err := valuator.Valuate(account, residual, prices, assets, p.maxPriceAge, now)
	if err != nil {
		return types.BailoutEvent{}, p.halt(err)
	}
	if state := solvency.Classify(postSnapshot, p.thresholds); state != types.RiskStateHealthy {
		return types.BailoutEvent{}, p.halt(fmt.Errorf("%w: account %s is %s after bailout",
			types.ErrInvalidRiskTransition, account, state))
	}
	if err := p.ledger.CheckConservation(); err != nil {
		return types.BailoutEvent{}, p.halt(err)
	}

	poolNetAfter := poolNetBefore.Add(net)
	event := types.BailoutEvent{
		EventID:             uuid.NewString(),
		Account:             account,
		Kind:                "bailout",
		NetValue:            net,
		SharesDelta:         minted,
		ValuePerShareBefore: vpsBefore,
		ValuePerShareAfter:  p.ValuePerShare(poolNetAfter),
		Timestamp:           now,
	}

	p.log.Info().
		Str("event_id", event.EventID).
		Str("account", string(account)).
		Str("net_value", net.String()).
		Str("shares_minted", minted.String()).
		Str("value_per_share", event.ValuePerShareAfter.String()).
		Msg("Account bailed out into buffer pool")

	return event, nil
}

// halt latches the fatal error and returns it.
func (p *Pool) halt(err error) error {
	p.halted = true
	p.haltReason = err
	p.log.Error().Err(err).Msg("Fatal pool accounting error; bailout processing halted")
	return err
}
