// Package registry is the asset registry collaborator: per-asset risk
// discounts, debt weights, lot precision and rate curves. New assets are
// added at runtime, so behavior is data-driven lookup rather than per-asset
// subtypes.
package registry

import (
	"fmt"

	"github.com/marginmesh/riskcore/internal/fixed"
	"github.com/marginmesh/riskcore/internal/types"
)

// AssetRegistry abstracts the registry collaborator so the core can be fed
// either the in-memory snapshot implementation or a live adapter.
type AssetRegistry interface {
	// Get returns the asset metadata, or types.ErrUnknownAsset.
	Get(id types.AssetID) (types.Asset, error)
	// Curve returns the asset's rate curve, or types.ErrUnknownAsset.
	Curve(id types.AssetID) (types.RateCurve, error)
	// Assets returns all registered assets in ascending ID order.
	Assets() []types.Asset
}

// InMemoryRegistry is a snapshot registry. It is mutated only between
// evaluation ticks by whatever feeds it; the core treats it as immutable
// during a call.
type InMemoryRegistry struct {
	assets map[types.AssetID]types.Asset
	curves map[types.AssetID]types.RateCurve

	// defaultCurve applies to assets without a dedicated curve.
	defaultCurve types.RateCurve
}

// NewInMemoryRegistry validates and indexes the given assets. Assets without
// an entry in curves fall back to defaultCurve.
func NewInMemoryRegistry(assets []types.Asset, curves map[types.AssetID]types.RateCurve, defaultCurve types.RateCurve) (*InMemoryRegistry, error) {
	if err := defaultCurve.Validate(); err != nil {
		return nil, fmt.Errorf("default rate curve: %w", err)
	}
	r := &InMemoryRegistry{
		assets:       make(map[types.AssetID]types.Asset, len(assets)),
		curves:       make(map[types.AssetID]types.RateCurve, len(curves)),
		defaultCurve: defaultCurve,
	}
	for _, a := range assets {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("asset %s: %w", a.ID, err)
		}
		if _, dup := r.assets[a.ID]; dup {
			return nil, fmt.Errorf("asset %s: duplicate registration", a.ID)
		}
		r.assets[a.ID] = a
	}
	for id, c := range curves {
		if _, known := r.assets[id]; !known {
			return nil, fmt.Errorf("curve for %s: %w", id, types.ErrUnknownAsset)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("curve for %s: %w", id, err)
		}
		r.curves[id] = c
	}
	return r, nil
}

func (r *InMemoryRegistry) Get(id types.AssetID) (types.Asset, error) {
	a, ok := r.assets[id]
	if !ok {
		return types.Asset{}, fmt.Errorf("%w: %s", types.ErrUnknownAsset, id)
	}
	return a, nil
}

func (r *InMemoryRegistry) Curve(id types.AssetID) (types.RateCurve, error) {
	if _, ok := r.assets[id]; !ok {
		return types.RateCurve{}, fmt.Errorf("%w: %s", types.ErrUnknownAsset, id)
	}
	if c, ok := r.curves[id]; ok {
		return c, nil
	}
	return r.defaultCurve, nil
}

func (r *InMemoryRegistry) Assets() []types.Asset {
	out := make([]types.Asset, 0, len(r.assets))
	for _, id := range fixed.SortedKeys(r.assets) {
		out = append(out, r.assets[id])
	}
	return out
}
