// Package workers contains the periodic background jobs: quote refresh,
// snapshot recording, insight regeneration and alert checking.
package workers

import (
	"context"

	"go.uber.org/zap"

	"cryptofolio/pkg/logger"
	"cryptofolio/pkg/models"
)

// AssetRegistry is the stored asset catalog the quote worker refreshes
type AssetRegistry interface {
	ListAssetIDs(ctx context.Context) ([]string, error)
	UpdateAssetQuote(ctx context.Context, assetID string, quote models.Quote) error
}

// QuoteSource provides current market quotes
type QuoteSource interface {
	GetQuotes(ctx context.Context, assetIDs []string) (map[string]models.Quote, error)
}

// QuotesWorker keeps the asset registry's stored prices fresh so reads that
// skip the live source still see recent data
type QuotesWorker struct {
	registry AssetRegistry
	source   QuoteSource
}

// NewQuotesWorker creates new quote refresh worker
func NewQuotesWorker(registry AssetRegistry, source QuoteSource) *QuotesWorker {
	return &QuotesWorker{registry: registry, source: source}
}

func (w *QuotesWorker) Name() string {
	return "quotes_refresh"
}

// Run refreshes stored quotes for every registered asset
func (w *QuotesWorker) Run(ctx context.Context) error {
	assetIDs, err := w.registry.ListAssetIDs(ctx)
	if err != nil {
		return err
	}
	if len(assetIDs) == 0 {
		return nil
	}

	quotes, err := w.source.GetQuotes(ctx, assetIDs)
	if err != nil {
		return err
	}

	updated := 0
	for assetID, quote := range quotes {
		if err := w.registry.UpdateAssetQuote(ctx, assetID, quote); err != nil {
			logger.Warn("failed to store quote",
				zap.String("asset_id", assetID),
				zap.Error(err),
			)
			continue
		}
		updated++
	}

	logger.Debug("asset quotes refreshed",
		zap.Int("requested", len(assetIDs)),
		zap.Int("updated", updated),
	)

	return nil
}
