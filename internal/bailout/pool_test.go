package bailout

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marginmesh/riskcore/internal/ledger"
	"github.com/marginmesh/riskcore/internal/types"
)

func dec(s string) sdkmath.LegacyDec { return sdkmath.LegacyMustNewDecFromStr(s) }

var poolTestNow = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ledger *ledger.InMemory
	pool   *Pool
	assets map[types.AssetID]types.Asset
	quotes map[types.AssetID]types.PriceQuote
	now    time.Time
}

func defaultThresholds() types.Thresholds {
	return types.Thresholds{Initial: dec("1.2"), Maintenance: dec("1.0"), Critical: dec("0.9")}
}

func newFixture(t *testing.T, thresholds types.Thresholds, genesis map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec) *fixture {
	t.Helper()
	l := ledger.NewInMemory(genesis)
	p, err := NewPool(l, thresholds, dec("100"), 5*time.Minute)
	require.NoError(t, err)
	return &fixture{
		ledger: l,
		pool:   p,
		assets: map[types.AssetID]types.Asset{
			"uatom": {ID: "uatom", Symbol: "ATOM", Precision: 6, CollateralDiscount: dec("0.8"), DebtWeight: dec("1")},
			"uusdc": {ID: "uusdc", Symbol: "USDC", Precision: 2, CollateralDiscount: dec("1"), DebtWeight: dec("1")},
		},
		quotes: map[types.AssetID]types.PriceQuote{
			"uatom": {Asset: "uatom", Price: dec("1"), AsOf: poolTestNow},
			"uusdc": {Asset: "uusdc", Price: dec("1"), AsOf: poolTestNow},
		},
		now: poolTestNow,
	}
}

// insolventGenesis holds alice with a margin ratio of 80/90, below the 0.9
// critical threshold, plus a counterparty so the ledger sums are realistic.
func insolventGenesis() map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec {
	return map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"alice": {"uatom": dec("100"), "uusdc": dec("-90")},
		"carol": {"uusdc": dec("1000")},
	}
}

func TestBailOutAbsorbsInsolventPortfolio(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	event, err := f.pool.BailOut("alice", f.quotes, f.assets, f.now)
	require.NoError(t, err)

	assert.Equal(t, "bailout", event.Kind)
	assert.Equal(t, types.AccountID("alice"), event.Account)
	assert.True(t, event.NetValue.Equal(dec("-10")), "net %s", event.NetValue)
	assert.True(t, event.SharesDelta.IsZero(), "a negative-net bailout mints nothing")

	emptied, err := f.ledger.ReadBalances("alice")
	require.NoError(t, err)
	assert.Empty(t, emptied)

	poolBalances, err := f.ledger.ReadBalances(types.PoolAccountID)
	require.NoError(t, err)
	assert.True(t, poolBalances["uatom"].Equal(dec("100")))
	assert.True(t, poolBalances["uusdc"].Equal(dec("-90")), "debt is absorbed, not forgiven")

	require.NoError(t, f.ledger.CheckConservation())
	assert.False(t, f.pool.Halted())
}

func TestBailOutRejectsSolventAccount(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	_, err := f.pool.BailOut("carol", f.quotes, f.assets, f.now)
	require.ErrorIs(t, err, types.ErrNotInsolvent)
}

func TestBailOutIsIdempotent(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	_, err := f.pool.BailOut("alice", f.quotes, f.assets, f.now)
	require.NoError(t, err)

	// The emptied account is Healthy, so a second trigger refuses to act.
	_, err = f.pool.BailOut("alice", f.quotes, f.assets, f.now)
	require.ErrorIs(t, err, types.ErrNotInsolvent)
}

func TestBailOutRejectsPoolAccount(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	_, err := f.pool.BailOut(types.PoolAccountID, f.quotes, f.assets, f.now)
	require.ErrorIs(t, err, types.ErrNotInsolvent)
}

func TestBailOutStalePriceLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	stale := map[types.AssetID]types.PriceQuote{
		"uatom": {Asset: "uatom", Price: dec("1"), AsOf: f.now.Add(-time.Hour)},
		"uusdc": {Asset: "uusdc", Price: dec("1"), AsOf: f.now.Add(-time.Hour)},
	}
	_, err := f.pool.BailOut("alice", stale, f.assets, f.now)
	require.ErrorIs(t, err, types.ErrStalePrice)

	balances, err := f.ledger.ReadBalances("alice")
	require.NoError(t, err)
	assert.True(t, balances["uatom"].Equal(dec("100")))
	assert.True(t, balances["uusdc"].Equal(dec("-90")))
	assert.False(t, f.pool.Halted())
}

func TestBailOutPositiveNetMintsShares(t *testing.T) {
	// With a critical threshold above 1, an account can be bailout-eligible
	// while its discounted net value is still positive. The residual value is
	// credited back as pool shares instead of being confiscated.
	thresholds := types.Thresholds{Initial: dec("1.3"), Maintenance: dec("1.2"), Critical: dec("1.1")}
	f := newFixture(t, thresholds, map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"bob":   {"uatom": dec("100"), "uusdc": dec("-75")}, // ratio 80/75, net +5
		"carol": {"uusdc": dec("1000")},
	})

	event, err := f.pool.BailOut("bob", f.quotes, f.assets, f.now)
	require.NoError(t, err)

	assert.True(t, event.NetValue.Equal(dec("5")))
	assert.True(t, event.SharesDelta.Equal(dec("5")), "minted at value-per-share 1 on an empty pool")
	assert.True(t, f.pool.Shares("bob").Equal(dec("5")))
	assert.True(t, f.pool.TotalShares().Equal(dec("5")))
}

func TestBailOutLossDilutesValuePerShare(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	// Carol funds the buffer first: 500 uusdc at value-per-share 1.
	depositEvent, err := f.pool.Deposit("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("500")}, f.quotes, f.assets, f.now)
	require.NoError(t, err)
	require.True(t, depositEvent.SharesDelta.Equal(dec("500")))

	event, err := f.pool.BailOut("alice", f.quotes, f.assets, f.now)
	require.NoError(t, err)

	// The absorbed shortfall of 10 lowers the share price, never the count.
	assert.True(t, event.ValuePerShareBefore.Equal(dec("1")))
	assert.True(t, event.ValuePerShareAfter.Equal(dec("0.98")), "got %s", event.ValuePerShareAfter)
	assert.True(t, f.pool.TotalShares().Equal(dec("500")))

	summary, err := f.pool.Summary(f.quotes, f.assets, f.now)
	require.NoError(t, err)
	assert.True(t, summary.NetValue.Equal(dec("490")))
	assert.True(t, summary.ValuePerShare.Equal(dec("0.98")))
	assert.Equal(t, 1, summary.Providers)
}

func TestDepositMintsAtCurrentValuePerShare(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	_, err := f.pool.Deposit("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("500")}, f.quotes, f.assets, f.now)
	require.NoError(t, err)
	_, err = f.pool.BailOut("alice", f.quotes, f.assets, f.now)
	require.NoError(t, err)

	// Value-per-share is now 0.98, so 98 of value buys exactly 100 shares.
	event, err := f.pool.Deposit("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("98")}, f.quotes, f.assets, f.now)
	require.NoError(t, err)
	assert.True(t, event.SharesDelta.Equal(dec("100")), "got %s", event.SharesDelta)
	assert.True(t, f.pool.Shares("carol").Equal(dec("600")))
}

func TestDepositFirstTimerBelowMinimum(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	_, err := f.pool.Deposit("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("50")}, f.quotes, f.assets, f.now)
	require.ErrorIs(t, err, types.ErrBelowMinimumDeposit)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	_, err := f.pool.Deposit("carol", nil, f.quotes, f.assets, f.now)
	require.Error(t, err)

	_, err = f.pool.Deposit("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("-5")}, f.quotes, f.assets, f.now)
	require.Error(t, err)

	_, err = f.pool.Deposit("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("5000")}, f.quotes, f.assets, f.now)
	require.Error(t, err, "deposit exceeding held balance")

	_, err = f.pool.Deposit(types.PoolAccountID, map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("100")}, f.quotes, f.assets, f.now)
	require.Error(t, err)
}

func TestDepositMustLeaveDepositorHealthy(t *testing.T) {
	f := newFixture(t, defaultThresholds(), map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"carol": {"uusdc": dec("200"), "uatom": dec("-100")},
		"bob":   {"uatom": dec("500")},
	})

	// Depositing 150 uusdc would leave ratio 50/100 and strand the provider
	// below maintenance.
	_, err := f.pool.Deposit("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("150")}, f.quotes, f.assets, f.now)
	require.Error(t, err)

	balances, err := f.ledger.ReadBalances("carol")
	require.NoError(t, err)
	assert.True(t, balances["uusdc"].Equal(dec("200")), "failed deposit must not move funds")
}

func TestWithdrawPaysProRataSliceIncludingDebt(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	_, err := f.pool.Deposit("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("500")}, f.quotes, f.assets, f.now)
	require.NoError(t, err)
	_, err = f.pool.BailOut("alice", f.quotes, f.assets, f.now)
	require.NoError(t, err)

	// Pool now holds 410 uusdc (500 - 90 absorbed debt) and 100 uatom.
	event, err := f.pool.Withdraw("carol", dec("500"), f.quotes, f.assets, f.now)
	require.NoError(t, err)
	assert.True(t, event.SharesDelta.Equal(dec("-500")))

	carol, err := f.ledger.ReadBalances("carol")
	require.NoError(t, err)
	assert.True(t, carol["uusdc"].Equal(dec("910")), "got %s", carol["uusdc"])
	assert.True(t, carol["uatom"].Equal(dec("100")), "got %s", carol["uatom"])

	poolBalances, err := f.ledger.ReadBalances(types.PoolAccountID)
	require.NoError(t, err)
	assert.Empty(t, poolBalances)

	assert.Equal(t, 0, f.pool.Providers(), "zero shares deregisters the provider")
	assert.True(t, f.pool.TotalShares().IsZero())
	require.NoError(t, f.ledger.CheckConservation())
}

func TestWithdrawTruncatesToAssetPrecision(t *testing.T) {
	f := newFixture(t, defaultThresholds(), map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"dave": {"uatom": dec("100")},
		"bob":  {"uusdc": dec("500")},
	})

	_, err := f.pool.Deposit("dave", map[types.AssetID]sdkmath.LegacyDec{"uatom": dec("100")}, f.quotes, f.assets, f.now)
	require.NoError(t, err)
	require.True(t, f.pool.Shares("dave").Equal(dec("80")), "100 uatom at discount 0.8")

	// Withdrawing a third of the shares entitles dave to a third of the
	// pool's 100 uatom, truncated to the asset's 6-decimal lot size.
	third := dec("80").Quo(dec("3"))
	_, err = f.pool.Withdraw("dave", third, f.quotes, f.assets, f.now)
	require.NoError(t, err)

	dave, err := f.ledger.ReadBalances("dave")
	require.NoError(t, err)
	assert.True(t, dave["uatom"].Equal(dec("33.333333")), "got %s", dave["uatom"])
	require.NoError(t, f.ledger.CheckConservation())
}

func TestWithdrawInsufficientShares(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	_, err := f.pool.Deposit("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("500")}, f.quotes, f.assets, f.now)
	require.NoError(t, err)

	_, err = f.pool.Withdraw("carol", dec("501"), f.quotes, f.assets, f.now)
	require.ErrorIs(t, err, types.ErrInsufficientShares)

	_, err = f.pool.Withdraw("carol", sdkmath.LegacyZeroDec(), f.quotes, f.assets, f.now)
	require.ErrorIs(t, err, types.ErrInsufficientShares)

	_, err = f.pool.Withdraw("stranger", dec("1"), f.quotes, f.assets, f.now)
	require.ErrorIs(t, err, types.ErrInsufficientShares)
}

func TestWithdrawCorruptShareAccountingHaltsPool(t *testing.T) {
	f := newFixture(t, defaultThresholds(), map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec{
		"dave": {"uatom": dec("100")},
		"bob":  {"uusdc": dec("500")},
	})

	_, err := f.pool.Deposit("dave", map[types.AssetID]sdkmath.LegacyDec{"uatom": dec("100")}, f.quotes, f.assets, f.now)
	require.NoError(t, err)

	// Simulate corrupted share accounting: an entitlement larger than the
	// whole pool. The underflow guard must latch the halt flag.
	f.pool.shares["ghost"] = dec("800")
	_, err = f.pool.Withdraw("ghost", dec("800"), f.quotes, f.assets, f.now)
	require.ErrorIs(t, err, types.ErrPoolUnderflow)
	assert.True(t, f.pool.Halted())

	_, err = f.pool.BailOut("dave", f.quotes, f.assets, f.now)
	require.ErrorIs(t, err, types.ErrBailoutsHalted)

	f.pool.Resume()
	assert.False(t, f.pool.Halted())
	assert.NoError(t, f.pool.HaltReason(), "resume clears the latched reason")
}

func TestValuePerShare(t *testing.T) {
	f := newFixture(t, defaultThresholds(), insolventGenesis())

	// Empty pool prices shares at 1.
	assert.True(t, f.pool.ValuePerShare(sdkmath.LegacyZeroDec()).Equal(dec("1")))

	_, err := f.pool.Deposit("carol", map[types.AssetID]sdkmath.LegacyDec{"uusdc": dec("500")}, f.quotes, f.assets, f.now)
	require.NoError(t, err)

	assert.True(t, f.pool.ValuePerShare(dec("500")).Equal(dec("1")))
	assert.True(t, f.pool.ValuePerShare(dec("250")).Equal(dec("0.5")))

	// A wiped-out pool falls back to 1 so minting stays well-defined.
	assert.True(t, f.pool.ValuePerShare(dec("-10")).Equal(dec("1")))
}
