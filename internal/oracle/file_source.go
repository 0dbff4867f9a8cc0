package oracle

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/marginmesh/riskcore/internal/logger"
	"github.com/marginmesh/riskcore/internal/types"
)

var oracleLogger = logger.GetForComponent("oracle_file_source")

// FileSource reloads a JSON price file into a fresh snapshot on demand. It
// stands in for a live oracle adapter: the file carries timestamped quotes,
// so a feed that stops updating fails valuations through the normal
// staleness check instead of silently pinning prices.
type FileSource struct {
	path     string
	snapshot *SnapshotSource
}

// NewFileSource loads the initial snapshot from path.
func NewFileSource(path string) (*FileSource, error) {
	fs := &FileSource{path: path, snapshot: NewSnapshotSource(nil)}
	if err := fs.Reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Reload re-reads the price file and replaces the snapshot wholesale.
func (f *FileSource) Reload() error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("failed to read price feed %s: %w", f.path, err)
	}

	var quotes []types.PriceQuote
	if err := json.Unmarshal(raw, &quotes); err != nil {
		return fmt.Errorf("failed to parse price feed %s: %w", f.path, err)
	}

	byAsset := make(map[types.AssetID]types.PriceQuote, len(quotes))
	for _, q := range quotes {
		if q.Asset == "" {
			return fmt.Errorf("price feed %s: quote with empty asset id", f.path)
		}
		byAsset[q.Asset] = q
	}
	f.snapshot.Replace(byAsset)

	oracleLogger.Debug().Int("quotes", len(byAsset)).Msg("Price feed reloaded")
	return nil
}

func (f *FileSource) GetPrice(id types.AssetID) (types.PriceQuote, error) {
	return f.snapshot.GetPrice(id)
}
