// Package oracle is the price feed collaborator. The core never fetches a
// price mid-computation: a complete quote snapshot is assembled before each
// evaluation begins. Staleness is judged by the valuator against its
// configured max age, never here, and never by substituting a zero or
// last-known price.
package oracle

import (
	"fmt"

	"github.com/marginmesh/riskcore/internal/types"
)

// PriceSource abstracts the oracle collaborator.
type PriceSource interface {
	// GetPrice returns the latest quote for the asset. A missing quote is an
	// error, not a zero price.
	GetPrice(id types.AssetID) (types.PriceQuote, error)
}

// SnapshotSource serves quotes from a fixed in-memory snapshot. The snapshot
// is replaced wholesale between ticks; it is never partially updated.
type SnapshotSource struct {
	quotes map[types.AssetID]types.PriceQuote
}

// NewSnapshotSource copies the given quotes into a snapshot.
func NewSnapshotSource(quotes map[types.AssetID]types.PriceQuote) *SnapshotSource {
	cp := make(map[types.AssetID]types.PriceQuote, len(quotes))
	for id, q := range quotes {
		cp[id] = q
	}
	return &SnapshotSource{quotes: cp}
}

func (s *SnapshotSource) GetPrice(id types.AssetID) (types.PriceQuote, error) {
	q, ok := s.quotes[id]
	if !ok {
		return types.PriceQuote{}, fmt.Errorf("%w: no quote for %s", types.ErrStalePrice, id)
	}
	if q.Price.IsNil() || !q.Price.IsPositive() {
		return types.PriceQuote{}, fmt.Errorf("%w: non-positive quote for %s", types.ErrStalePrice, id)
	}
	return q, nil
}

// Replace swaps in a new complete snapshot.
func (s *SnapshotSource) Replace(quotes map[types.AssetID]types.PriceQuote) {
	cp := make(map[types.AssetID]types.PriceQuote, len(quotes))
	for id, q := range quotes {
		cp[id] = q
	}
	s.quotes = cp
}
