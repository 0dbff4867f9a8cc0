/*

This file contains the buffer pool reporting types: the audit record emitted
for every executed bailout and the pool summary served to callers.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// BailoutEvent is the audit record of one executed bailout or pool
// operation. Persisted to the history store; never read back into live
// state.
type BailoutEvent struct {
	EventID string    `json:"event_id"`
	Account AccountID `json:"account"`
	// Kind is "bailout", "deposit" or "withdraw".
	Kind string `json:"kind"`

	// NetValue is the discounted net value of the portfolio moved.
	NetValue sdkmath.LegacyDec `json:"net_value"`
	// SharesDelta is positive for minted shares, negative for burned.
	SharesDelta sdkmath.LegacyDec `json:"shares_delta"`

	ValuePerShareBefore sdkmath.LegacyDec `json:"value_per_share_before"`
	ValuePerShareAfter  sdkmath.LegacyDec `json:"value_per_share_after"`

	Timestamp time.Time `json:"timestamp"`
}

// PoolSummary is the read-only view of the buffer pool.
type PoolSummary struct {
	Balances      map[AssetID]sdkmath.LegacyDec `json:"balances"`
	TotalShares   sdkmath.LegacyDec             `json:"total_shares"`
	NetValue      sdkmath.LegacyDec             `json:"net_value"`
	ValuePerShare sdkmath.LegacyDec             `json:"value_per_share"`
	Providers     int                           `json:"providers"`
	Halted        bool                          `json:"halted"`
	AsOf          time.Time                     `json:"as_of"`
}
