package engine

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marginmesh/riskcore/internal/bailout"
	"github.com/marginmesh/riskcore/internal/ledger"
	"github.com/marginmesh/riskcore/internal/oracle"
	"github.com/marginmesh/riskcore/internal/registry"
	"github.com/marginmesh/riskcore/internal/types"
)

func dec(s string) sdkmath.LegacyDec { return sdkmath.LegacyMustNewDecFromStr(s) }

type harness struct {
	engine *Engine
	ledger *ledger.InMemory
	pool   *bailout.Pool
	source *oracle.SnapshotSource
	now    time.Time
	clock  *time.Time
}

func quotesAt(asOf time.Time) map[types.AssetID]types.PriceQuote {
	return map[types.AssetID]types.PriceQuote{
		"uatom": {Asset: "uatom", Price: dec("1"), AsOf: asOf},
		"uusdc": {Asset: "uusdc", Price: dec("1"), AsOf: asOf},
	}
}

func newHarness(t *testing.T, genesis map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec) *harness {
	t.Helper()

	defaultCurve := types.RateCurve{BaseRate: dec("0.02"), Slope1: dec("0.1"), Slope2: dec("1"), Kink: dec("0.8")}
	reg, err := registry.NewInMemoryRegistry([]types.Asset{
		{ID: "uatom", Symbol: "ATOM", Precision: 6, CollateralDiscount: dec("0.8"), DebtWeight: dec("1")},
		{ID: "uusdc", Symbol: "USDC", Precision: 2, CollateralDiscount: dec("1"), DebtWeight: dec("1")},
	}, nil, defaultCurve)
	require.NoError(t, err)

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	source := oracle.NewSnapshotSource(quotesAt(now))
	l := ledger.NewInMemory(genesis)

	thresholds := types.Thresholds{Initial: dec("1.2"), Maintenance: dec("1.0"), Critical: dec("0.9")}
	pool, err := bailout.NewPool(l, thresholds, dec("100"), 5*time.Minute)
	require.NoError(t, err)

	e, err := New(Config{
		Registry:    reg,
		Oracle:      source,
		Ledger:      l,
		Pool:        pool,
		Thresholds:  thresholds,
		MaxPriceAge: 5 * time.Minute,
		Clock:       func() time.Time { return clock },
		AuditTrail:  false,
	})
	require.NoError(t, err)

	return &harness{engine: e, ledger: l, pool: pool, source: source, now: now, clock: &clock}
}

func standardGenesis() map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec {
	return map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"alice": {"uatom": dec("100"), "uusdc": dec("-90")}, // ratio 80/90, bailout-eligible
		"bob":   {"uusdc": dec("200"), "uatom": dec("-50")}, // ratio 200/50, healthy
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestEvaluateAccount(t *testing.T) {
	h := newHarness(t, standardGenesis())

	snapshot, riskState, err := h.engine.EvaluateAccount("bob")
	require.NoError(t, err)
	assert.Equal(t, types.RiskStateHealthy, riskState)
	assert.True(t, snapshot.DiscountedCollateral.Equal(dec("200")))
	assert.True(t, snapshot.Debt.Equal(dec("50")))

	_, riskState, err = h.engine.EvaluateAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, types.RiskStateSubjectToBailout, riskState)

	state, ok := h.engine.LastKnownState("alice")
	require.True(t, ok)
	assert.Equal(t, types.RiskStateSubjectToBailout, state)
}

func TestEvaluateAccountUnknown(t *testing.T) {
	h := newHarness(t, standardGenesis())
	_, _, err := h.engine.EvaluateAccount("nobody")
	require.ErrorIs(t, err, types.ErrUnknownAccount)
}

func TestEvaluateAccountStalePriceKeepsLastState(t *testing.T) {
	h := newHarness(t, standardGenesis())

	_, riskState, err := h.engine.EvaluateAccount("alice")
	require.NoError(t, err)
	require.Equal(t, types.RiskStateSubjectToBailout, riskState)

	// Feed goes stale; the evaluation fails hard and the previously observed
	// state survives untouched.
	h.source.Replace(quotesAt(h.now.Add(-time.Hour)))

	_, lastState, err := h.engine.EvaluateAccount("alice")
	require.ErrorIs(t, err, types.ErrStalePrice)
	assert.Equal(t, types.RiskStateSubjectToBailout, lastState)

	state, ok := h.engine.LastKnownState("alice")
	require.True(t, ok)
	assert.Equal(t, types.RiskStateSubjectToBailout, state)
}

func TestTriggerBailout(t *testing.T) {
	h := newHarness(t, standardGenesis())

	event, err := h.engine.TriggerBailout("alice")
	require.NoError(t, err)
	assert.True(t, event.NetValue.Equal(dec("-10")))

	emptied, err := h.ledger.ReadBalances("alice")
	require.NoError(t, err)
	assert.Empty(t, emptied)

	state, ok := h.engine.LastKnownState("alice")
	require.True(t, ok)
	assert.Equal(t, types.RiskStateHealthy, state)

	// Second trigger: the account is already clean.
	_, err = h.engine.TriggerBailout("alice")
	require.ErrorIs(t, err, types.ErrNotInsolvent)
}

func TestTriggerBailoutFailureRestoresLastState(t *testing.T) {
	h := newHarness(t, standardGenesis())

	_, riskState, err := h.engine.EvaluateAccount("bob")
	require.NoError(t, err)
	require.Equal(t, types.RiskStateHealthy, riskState)

	_, err = h.engine.TriggerBailout("bob")
	require.ErrorIs(t, err, types.ErrNotInsolvent)

	state, ok := h.engine.LastKnownState("bob")
	require.True(t, ok)
	assert.Equal(t, types.RiskStateHealthy, state, "failed trigger must not leave the transient state behind")
}

func TestDepositAndWithdrawRoundTrip(t *testing.T) {
	h := newHarness(t, map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"carol": {"uusdc": dec("1000")},
	})

	deposit, err := h.engine.DepositToPool("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("500")})
	require.NoError(t, err)
	assert.True(t, deposit.SharesDelta.Equal(dec("500")))

	withdraw, err := h.engine.WithdrawFromPool("carol", dec("500"))
	require.NoError(t, err)
	assert.True(t, withdraw.SharesDelta.Equal(dec("-500")))

	carol, err := h.ledger.ReadBalances("carol")
	require.NoError(t, err)
	assert.True(t, carol["uusdc"].Equal(dec("1000")))
	require.NoError(t, h.ledger.CheckConservation())
}

func TestCurrentRatesAtZeroUtilizationReturnsBase(t *testing.T) {
	h := newHarness(t, map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"carol": {"uusdc": dec("1000")},
	})

	table := h.engine.CurrentRates()
	require.Contains(t, table, types.AssetID("uusdc"))
	assert.True(t, table["uusdc"].Equal(dec("0.02")), "got %s", table["uusdc"])
}

func TestCurrentRatesReflectsUtilization(t *testing.T) {
	h := newHarness(t, map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"supplier": {"uatom": dec("100")},
		"borrower": {"uatom": dec("-50"), "uusdc": dec("200")},
	})

	// Utilization 0.5 below the 0.8 kink: 0.02 + 0.5*0.1.
	table := h.engine.CurrentRates()
	require.Contains(t, table, types.AssetID("uatom"))
	assert.True(t, table["uatom"].Equal(dec("0.07")), "got %s", table["uatom"])
}

func TestMaintenancePass(t *testing.T) {
	h := newHarness(t, standardGenesis())

	report, err := h.engine.MaintenancePass()
	require.NoError(t, err)

	assert.Equal(t, 2, report.AccountsEvaluated)
	assert.Equal(t, 0, report.EvaluationErrors)
	assert.Equal(t, 1, report.BailoutsExecuted)
	assert.False(t, report.Halted)
	assert.NotEmpty(t, report.CycleID)

	_, riskState, err := h.engine.EvaluateAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, types.RiskStateHealthy, riskState)
	require.NoError(t, h.ledger.CheckConservation())
}

func TestMaintenancePassCountsEvaluationErrors(t *testing.T) {
	h := newHarness(t, standardGenesis())
	h.source.Replace(quotesAt(h.now.Add(-time.Hour)))

	report, err := h.engine.MaintenancePass()
	require.NoError(t, err)
	assert.Equal(t, 2, report.AccountsEvaluated)
	assert.Equal(t, 2, report.EvaluationErrors)
	assert.Equal(t, 0, report.BailoutsExecuted)

	// Nothing moved while the feed was stale.
	alice, err := h.ledger.ReadBalances("alice")
	require.NoError(t, err)
	assert.True(t, alice["uatom"].Equal(dec("100")))
}

func TestMaintenancePassAccruesInterest(t *testing.T) {
	h := newHarness(t, map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"supplier": {"uatom": dec("100")},
		"borrower": {"uatom": dec("-50"), "uusdc": dec("200")},
	})

	// Advance a full year so the 7% rate at utilization 0.5 is easy to read.
	*h.clock = h.now.Add(365 * 24 * time.Hour)
	h.source.Replace(quotesAt(*h.clock))

	_, err := h.engine.MaintenancePass()
	require.NoError(t, err)

	borrower, err := h.ledger.ReadBalances("borrower")
	require.NoError(t, err)
	assert.True(t, borrower["uatom"].Equal(dec("-53.5")), "got %s", borrower["uatom"])

	supplier, err := h.ledger.ReadBalances("supplier")
	require.NoError(t, err)
	assert.True(t, supplier["uatom"].Equal(dec("103.5")), "got %s", supplier["uatom"])
	require.NoError(t, h.ledger.CheckConservation())
}

func TestHaltedSurfacesPoolState(t *testing.T) {
	h := newHarness(t, standardGenesis())
	assert.False(t, h.engine.Halted())
}

func TestPoolSummary(t *testing.T) {
	h := newHarness(t, map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"carol": {"uusdc": dec("1000")},
	})

	_, err := h.engine.DepositToPool("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("500")})
	require.NoError(t, err)

	summary, err := h.engine.PoolSummary()
	require.NoError(t, err)
	assert.True(t, summary.NetValue.Equal(dec("500")))
	assert.True(t, summary.TotalShares.Equal(dec("500")))
	assert.Equal(t, 1, summary.Providers)
	assert.False(t, summary.Halted)
}
