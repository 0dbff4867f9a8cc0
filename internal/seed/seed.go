// Package seed loads the startup snapshot: registered assets, their rate
// curves and the genesis balance ledger. In a full deployment these arrive
// from the chain runtime; the file form keeps the engine runnable and
// reproducible on its own.
package seed

import (
	"encoding/json"
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"

	"github.com/marginmesh/riskcore/internal/types"
)

// Snapshot is the parsed seed file.
type Snapshot struct {
	Assets []types.Asset                     `json:"assets"`
	Curves map[types.AssetID]types.RateCurve `json:"curves,omitempty"`

	// Balances maps account -> asset -> signed amount. Negative amounts are
	// debt. The buffer pool account may be seeded like any other.
	Balances map[types.AccountID]map[types.AssetID]sdkmath.LegacyDec `json:"balances"`
}

// Load reads and validates a seed file.
func Load(path string) (Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}

	if len(snap.Assets) == 0 {
		return Snapshot{}, fmt.Errorf("seed file %s registers no assets", path)
	}
	known := make(map[types.AssetID]struct{}, len(snap.Assets))
	for _, a := range snap.Assets {
		if err := a.Validate(); err != nil {
			return Snapshot{}, fmt.Errorf("seed asset %s: %w", a.ID, err)
		}
		known[a.ID] = struct{}{}
	}
	for account, vector := range snap.Balances {
		for asset := range vector {
			if _, ok := known[asset]; !ok {
				return Snapshot{}, fmt.Errorf("seed balance for %s: %w: %s", account, types.ErrUnknownAsset, asset)
			}
		}
	}
	return snap, nil
}
