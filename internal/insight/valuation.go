package insight

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"cryptofolio/pkg/models"
)

// QuoteMissingError reports that valuation was requested for an asset the
// quote snapshot does not cover. Fatal for value-dependent computation, but
// detectors that need no quotes keep running.
type QuoteMissingError struct {
	AssetID string
}

func (e *QuoteMissingError) Error() string {
	return fmt.Sprintf("no quote for asset %s", e.AssetID)
}

// valuation is the per-run value breakdown of the active holdings
type valuation struct {
	total    decimal.Decimal
	values   []decimal.Decimal // parallel to holdings slice
	weights  []float64         // value / total, 0 when total is 0
	holdings []models.Holding
}

// valuate computes market values and weights for the given holdings, in a
// deterministic (wallet, asset) order. Zero-quantity holdings must already be
// filtered out by the caller.
func valuate(holdings []models.Holding, assets map[string]models.Asset) (*valuation, error) {
	sorted := make([]models.Holding, len(holdings))
	copy(sorted, holdings)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].WalletID != sorted[j].WalletID {
			return sorted[i].WalletID < sorted[j].WalletID
		}
		return sorted[i].AssetID < sorted[j].AssetID
	})

	v := &valuation{
		total:    decimal.Zero,
		values:   make([]decimal.Decimal, len(sorted)),
		weights:  make([]float64, len(sorted)),
		holdings: sorted,
	}

	for i, h := range sorted {
		asset, ok := assets[h.AssetID]
		if !ok {
			return nil, &QuoteMissingError{AssetID: h.AssetID}
		}
		v.values[i] = h.MarketValue(asset.CurrentPrice)
		v.total = v.total.Add(v.values[i])
	}

	if v.total.IsZero() {
		return v, nil
	}

	totalF := models.ToFloat64(v.total)
	for i := range v.values {
		v.weights[i] = models.ToFloat64(v.values[i]) / totalF
	}

	return v, nil
}
