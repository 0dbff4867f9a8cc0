package types

import "errors"

// Error taxonomy shared across the core. Validation errors are recoverable
// by the caller after correcting the condition; ErrPoolUnderflow and
// ErrInvalidRiskTransition indicate an accounting bug, halt further bailout
// processing and must surface to operators.
var (
	// ErrStalePrice: a quote for an asset with a non-zero balance is older
	// than the configured max age, or missing entirely.
	ErrStalePrice = errors.New("price quote is stale or missing")
	// ErrUnknownAsset: a balance references an asset absent from the
	// registry snapshot.
	ErrUnknownAsset = errors.New("asset is not in the registry snapshot")
	// ErrUnknownAccount: the ledger has no record of the account.
	ErrUnknownAccount = errors.New("account is not in the ledger")
	// ErrArithmeticOverflow: a fixed-point operation saturated. The
	// saturated value is still returned; this error is only produced where a
	// saturated result cannot be used safely.
	ErrArithmeticOverflow = errors.New("fixed-point arithmetic saturated")
	// ErrNotInsolvent: bailout preconditions unmet at execution time.
	ErrNotInsolvent = errors.New("account is not subject to bailout")
	// ErrInsufficientShares: withdrawal of more pool shares than held.
	ErrInsufficientShares = errors.New("insufficient pool shares")
	// ErrPoolUnderflow: a pool balance would go negative. Fatal.
	ErrPoolUnderflow = errors.New("buffer pool balance underflow")
	// ErrInvalidRiskTransition: post-bailout state failed its invariant
	// check. Fatal.
	ErrInvalidRiskTransition = errors.New("risk state inconsistent with post-bailout balances")
	// ErrBailoutsHalted: a prior fatal error latched the halt flag; operator
	// intervention required.
	ErrBailoutsHalted = errors.New("bailout processing is halted")
	// ErrBelowMinimumDeposit: a first-time provider deposit is below the
	// configured registration minimum.
	ErrBelowMinimumDeposit = errors.New("deposit below minimum provider collateral")

	// Configuration validation errors.
	ErrInvalidAssetParams = errors.New("asset parameters out of range")
	ErrInvalidThresholds  = errors.New("margin thresholds out of range")
	ErrInvalidRateCurve   = errors.New("rate curve parameters out of range")
)
