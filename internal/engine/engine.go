// Package engine orchestrates the risk core: it assembles input snapshots
// from the collaborators, runs valuation and classification, drives the
// bailout state machine and the rate model, and records results to metrics
// and the audit store. One evaluation tick runs per mutating operation plus
// a periodic maintenance pass over all accounts.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/marginmesh/riskcore/internal/bailout"
	"github.com/marginmesh/riskcore/internal/ledger"
	"github.com/marginmesh/riskcore/internal/logger"
	"github.com/marginmesh/riskcore/internal/metrics"
	"github.com/marginmesh/riskcore/internal/oracle"
	"github.com/marginmesh/riskcore/internal/rates"
	"github.com/marginmesh/riskcore/internal/registry"
	"github.com/marginmesh/riskcore/internal/solvency"
	"github.com/marginmesh/riskcore/internal/state"
	"github.com/marginmesh/riskcore/internal/types"
	"github.com/marginmesh/riskcore/internal/valuator"
)

// Engine wires the collaborators together. A single mutex serializes every
// entry point so exactly one logical writer executes at a time, even with
// the HTTP query surface running beside the maintenance loop.
type Engine struct {
	mu  sync.Mutex
	log zerolog.Logger

	registry registry.AssetRegistry
	oracle   oracle.PriceSource
	ledger   ledger.Ledger
	pool     *bailout.Pool

	thresholds  types.Thresholds
	maxPriceAge time.Duration

	// clock is injectable for tests; defaults to time.Now.
	clock func() time.Time

	// audit enables the postgres history trail.
	audit bool

	// lastState is the last successfully computed risk state per account,
	// kept so a failed valuation leaves the observed state unchanged.
	lastState map[types.AccountID]types.RiskState

	lastAccrual time.Time
}

// Config holds the dependencies for creating a new Engine instance.
type Config struct {
	Registry    registry.AssetRegistry
	Oracle      oracle.PriceSource
	Ledger      ledger.Ledger
	Pool        *bailout.Pool
	Thresholds  types.Thresholds
	MaxPriceAge time.Duration
	Clock       func() time.Time
	AuditTrail  bool
}

// New creates an Engine with dependency injection.
func New(cfg Config) (*Engine, error) {
	if err := validateEngineConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	e := &Engine{
		log:         logger.GetForComponent("risk_engine"),
		registry:    cfg.Registry,
		oracle:      cfg.Oracle,
		ledger:      cfg.Ledger,
		pool:        cfg.Pool,
		thresholds:  cfg.Thresholds,
		maxPriceAge: cfg.MaxPriceAge,
		clock:       clock,
		audit:       cfg.AuditTrail,
		lastState:   make(map[types.AccountID]types.RiskState),
		lastAccrual: clock(),
	}
	e.log.Info().
		Str("maintenance_margin", cfg.Thresholds.Maintenance.String()).
		Str("critical_margin", cfg.Thresholds.Critical.String()).
		Dur("max_price_age", cfg.MaxPriceAge).
		Msg("Risk engine created")
	return e, nil
}

func validateEngineConfig(cfg Config) error {
	if cfg.Registry == nil {
		return fmt.Errorf("asset registry cannot be nil")
	}
	if cfg.Oracle == nil {
		return fmt.Errorf("price source cannot be nil")
	}
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}
	if cfg.Pool == nil {
		return fmt.Errorf("buffer pool cannot be nil")
	}
	if err := cfg.Thresholds.Validate(); err != nil {
		return err
	}
	if cfg.MaxPriceAge <= 0 {
		return fmt.Errorf("max price age must be positive")
	}
	return nil
}

// gatherInputs builds the complete asset and quote snapshots for one tick.
// Quotes are collected leniently: an asset nobody holds may go unquoted, and
// the valuator enforces quote presence only where a balance exists.
func (e *Engine) gatherInputs() (map[types.AssetID]types.Asset, map[types.AssetID]types.PriceQuote) {
	assets := make(map[types.AssetID]types.Asset)
	quotes := make(map[types.AssetID]types.PriceQuote)
	for _, a := range e.registry.Assets() {
		assets[a.ID] = a
		if q, err := e.oracle.GetPrice(a.ID); err == nil {
			quotes[a.ID] = q
		}
	}
	return assets, quotes
}

// EvaluateAccount is the read-only solvency query: it valuates the account
// at current prices and classifies the result. A validation failure leaves
// the last observed risk state untouched.
func (e *Engine) EvaluateAccount(account types.AccountID) (types.PortfolioSnapshot, types.RiskState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evaluateLocked(account)
}

func (e *Engine) evaluateLocked(account types.AccountID) (types.PortfolioSnapshot, types.RiskState, error) {
	now := e.clock()
	balances, err := e.ledger.ReadBalances(account)
	if err != nil {
		return types.PortfolioSnapshot{}, "", err
	}
	assets, quotes := e.gatherInputs()

	snapshot, err := valuator.Valuate(account, balances, quotes, assets, e.maxPriceAge, now)
	if err != nil {
		metrics.EvaluationFailures.WithLabelValues(failureReason(err)).Inc()
		return types.PortfolioSnapshot{}, e.lastState[account], err
	}
	riskState := solvency.Classify(snapshot, e.thresholds)

	if riskState == types.RiskStateMarginCall && e.lastState[account] != types.RiskStateMarginCall {
		metrics.MarginCalls.Inc()
		e.log.Warn().
			Str("account", string(account)).
			Str("discounted_collateral", snapshot.DiscountedCollateral.String()).
			Str("debt", snapshot.Debt.String()).
			Msg("Account entered margin call")
	}
	e.lastState[account] = riskState
	metrics.EvaluationsTotal.WithLabelValues(string(riskState)).Inc()

	if e.audit {
		if err := state.SaveEvaluation(snapshot, riskState); err != nil {
			e.log.Error().Err(err).Str("account", string(account)).Msg("Failed to persist evaluation")
		}
	}
	return snapshot, riskState, nil
}

// LastKnownState returns the most recent successfully computed risk state.
func (e *Engine) LastKnownState(account types.AccountID) (types.RiskState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.lastState[account]
	return s, ok
}

// TriggerBailout absorbs an insolvent account into the buffer pool. The
// pool re-validates insolvency at execution time, so calling this twice on
// an already-healthy account fails with types.ErrNotInsolvent instead of
// double-acting.
func (e *Engine) TriggerBailout(account types.AccountID) (types.BailoutEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.triggerBailoutLocked(account)
}

func (e *Engine) triggerBailoutLocked(account types.AccountID) (types.BailoutEvent, error) {
	now := e.clock()
	assets, quotes := e.gatherInputs()

	prev, hadPrev := e.lastState[account]
	e.lastState[account] = types.RiskStateInBailout
	event, err := e.pool.BailOut(account, quotes, assets, now)
	if err != nil {
		// Precondition failure leaves the account untouched, so restore the
		// previously observed state.
		if hadPrev {
			e.lastState[account] = prev
		} else {
			delete(e.lastState, account)
		}
		metrics.BailoutsTotal.WithLabelValues("bailout", "error").Inc()
		e.syncHaltMetric()
		return types.BailoutEvent{}, err
	}
	e.lastState[account] = types.RiskStateHealthy
	metrics.BailoutsTotal.WithLabelValues("bailout", "ok").Inc()
	e.publishPoolGauges(event)

	if e.audit {
		if err := state.SaveBailoutEvent(event); err != nil {
			e.log.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to persist bailout event")
		}
	}
	return event, nil
}

// DepositToPool moves held collateral from a solvent account into the pool
// for newly minted shares.
func (e *Engine) DepositToPool(account types.AccountID, vector map[types.AssetID]sdkmath.LegacyDec) (types.BailoutEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()
	assets, quotes := e.gatherInputs()
	event, err := e.pool.Deposit(account, vector, quotes, assets, now)
	if err != nil {
		metrics.BailoutsTotal.WithLabelValues("deposit", "error").Inc()
		e.syncHaltMetric()
		return types.BailoutEvent{}, err
	}
	metrics.BailoutsTotal.WithLabelValues("deposit", "ok").Inc()
	e.publishPoolGauges(event)
	if e.audit {
		if err := state.SaveBailoutEvent(event); err != nil {
			e.log.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to persist deposit event")
		}
	}
	return event, nil
}

// WithdrawFromPool burns shares and pays out the pro-rata pool slice.
func (e *Engine) WithdrawFromPool(account types.AccountID, shares sdkmath.LegacyDec) (types.BailoutEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock()
	assets, quotes := e.gatherInputs()
	event, err := e.pool.Withdraw(account, shares, quotes, assets, now)
	if err != nil {
		metrics.BailoutsTotal.WithLabelValues("withdraw", "error").Inc()
		e.syncHaltMetric()
		return types.BailoutEvent{}, err
	}
	metrics.BailoutsTotal.WithLabelValues("withdraw", "ok").Inc()
	e.publishPoolGauges(event)
	if e.audit {
		if err := state.SaveBailoutEvent(event); err != nil {
			e.log.Error().Err(err).Str("event_id", event.EventID).Msg("Failed to persist withdraw event")
		}
	}
	return event, nil
}

// PoolSummary returns the read-only buffer pool view at current prices.
func (e *Engine) PoolSummary() (types.PoolSummary, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	assets, quotes := e.gatherInputs()
	return e.pool.Summary(quotes, assets, e.clock())
}

// CurrentRates derives the per-asset borrow rate table from live
// utilization and the registry's curves.
func (e *Engine) CurrentRates() map[types.AssetID]sdkmath.LegacyDec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentRatesLocked()
}

func (e *Engine) currentRatesLocked() map[types.AssetID]sdkmath.LegacyDec {
	curves := make(map[types.AssetID]types.RateCurve)
	utilization := make(map[types.AssetID]sdkmath.LegacyDec)
	for _, a := range e.registry.Assets() {
		curve, err := e.registry.Curve(a.ID)
		if err != nil {
			continue
		}
		curves[a.ID] = curve
		utilization[a.ID] = e.ledger.Utilization(a.ID)
	}
	table := rates.DeriveRates(utilization, curves)
	for asset, rate := range table {
		u := utilization[asset]
		if f, err := rate.Float64(); err == nil {
			metrics.BorrowRate.WithLabelValues(string(asset)).Set(f)
		}
		if f, err := u.Float64(); err == nil {
			metrics.Utilization.WithLabelValues(string(asset)).Set(f)
		}
		if e.audit {
			if err := state.SaveRateSample(asset, u, rate, e.clock()); err != nil {
				e.log.Error().Err(err).Str("asset", string(asset)).Msg("Failed to persist rate sample")
			}
		}
	}
	return table
}

// Halted reports whether bailout processing is stopped.
func (e *Engine) Halted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Halted()
}

func (e *Engine) publishPoolGauges(event types.BailoutEvent) {
	if f, err := event.ValuePerShareAfter.Float64(); err == nil {
		metrics.PoolValuePerShare.Set(f)
	}
	if f, err := e.pool.TotalShares().Float64(); err == nil {
		metrics.PoolTotalShares.Set(f)
	}
	e.syncHaltMetric()
}

func (e *Engine) syncHaltMetric() {
	if e.pool.Halted() {
		metrics.EngineHalted.Set(1)
	} else {
		metrics.EngineHalted.Set(0)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, types.ErrStalePrice):
		return "stale_price"
	case errors.Is(err, types.ErrUnknownAsset):
		return "unknown_asset"
	case errors.Is(err, types.ErrUnknownAccount):
		return "unknown_account"
	default:
		return "other"
	}
}

// MaintenancePass sweeps all accounts in sorted order: evaluate each, bail
// out every SubjectToBailout account one at a time against the updated pool
// state, then refresh the rate table and run the ledger accrual step.
func (e *Engine) MaintenancePass() (types.CycleReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	started := e.clock()
	report := types.CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: started,
	}

	var candidates []types.AccountID
	for _, account := range e.ledger.Accounts() {
		prev := e.lastState[account]
		_, riskState, err := e.evaluateLocked(account)
		report.AccountsEvaluated++
		if err != nil {
			report.EvaluationErrors++
			e.log.Warn().Err(err).Str("account", string(account)).Msg("Evaluation failed during maintenance pass")
			continue
		}
		if riskState == types.RiskStateMarginCall && prev != types.RiskStateMarginCall {
			report.MarginCalls++
		}
		if riskState == types.RiskStateSubjectToBailout {
			candidates = append(candidates, account)
		}
	}

	// Sequential bailouts: each one re-reads the pool's value-per-share, so
	// no stale snapshot is shared across candidates, and the batch outcome
	// is independent of candidate order.
	for _, account := range candidates {
		if e.pool.Halted() {
			report.Halted = true
			break
		}
		if _, err := e.triggerBailoutLocked(account); err != nil {
			e.log.Error().Err(err).Str("account", string(account)).Msg("Bailout failed during maintenance pass")
			continue
		}
		report.BailoutsExecuted++
	}

	table := e.currentRatesLocked()
	now := e.clock()
	if err := e.ledger.Accrue(table, now.Sub(e.lastAccrual)); err != nil {
		e.log.Error().Err(err).Msg("Accrual step failed")
	} else {
		e.lastAccrual = now
	}

	report.Halted = report.Halted || e.pool.Halted()
	report.Duration = e.clock().Sub(started).Seconds()
	metrics.MaintenancePassDuration.Observe(report.Duration)

	if e.audit {
		if err := state.SaveCycleReport(report); err != nil {
			e.log.Error().Err(err).Str("cycle_id", report.CycleID).Msg("Failed to persist cycle report")
		}
	}

	e.log.Info().
		Str("cycle_id", report.CycleID).
		Int("accounts", report.AccountsEvaluated).
		Int("bailouts", report.BailoutsExecuted).
		Int("margin_calls", report.MarginCalls).
		Bool("halted", report.Halted).
		Msg("Maintenance pass complete")

	return report, nil
}
