package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cryptofolio/internal/snapshot"
	"cryptofolio/pkg/logger"
)

// AssetLister enumerates registered assets for snapshotting
type AssetLister interface {
	ListAssetIDs(ctx context.Context) ([]string, error)
}

// PriceSnapshotStore persists price observations
type PriceSnapshotStore interface {
	SavePriceSnapshots(ctx context.Context, snapshots []snapshot.PriceSnapshot) error
}

// SnapshotWorker records a price observation per registered asset. The
// resulting series backs historical charts without replaying external APIs.
type SnapshotWorker struct {
	assets AssetLister
	source QuoteSource
	store  PriceSnapshotStore
}

// NewSnapshotWorker creates new price snapshot worker
func NewSnapshotWorker(assets AssetLister, source QuoteSource, store PriceSnapshotStore) *SnapshotWorker {
	return &SnapshotWorker{assets: assets, source: source, store: store}
}

func (w *SnapshotWorker) Name() string {
	return "price_snapshots"
}

// Run records one price snapshot per registered asset
func (w *SnapshotWorker) Run(ctx context.Context) error {
	assetIDs, err := w.assets.ListAssetIDs(ctx)
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

	snapshots := snapshot.FromQuotes(quotes, time.Now())
	if err := w.store.SavePriceSnapshots(ctx, snapshots); err != nil {
		return err
	}

	logger.Debug("price snapshots recorded",
		zap.Int("count", len(snapshots)),
	)

	return nil
}
