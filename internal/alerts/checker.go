package alerts

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cryptofolio/pkg/logger"
	"cryptofolio/pkg/models"
)

// QuoteSource provides current quotes for the alerted assets
type QuoteSource interface {
	GetQuotes(ctx context.Context, assetIDs []string) (map[string]models.Quote, error)
}

// AssetStore loads asset metadata for notification text
type AssetStore interface {
	GetAssets(ctx context.Context, assetIDs []string) (map[string]models.Asset, error)
}

// Notifier delivers triggered alerts to the user
type Notifier interface {
	SendPriceAlert(alert *models.PriceAlert, asset models.Asset, price models.Quote) error
}

// Checker evaluates active price alerts against current quotes
type Checker struct {
	repo     *Repository
	quotes   QuoteSource
	assets   AssetStore
	notifier Notifier
}

// NewChecker creates new alert checker. notifier may be nil, in which case
// alerts still trigger but nothing is delivered.
func NewChecker(repo *Repository, quotes QuoteSource, assets AssetStore, notifier Notifier) *Checker {
	return &Checker{
		repo:     repo,
		quotes:   quotes,
		assets:   assets,
		notifier: notifier,
	}
}

// CheckAll evaluates every active alert once and returns how many triggered
func (c *Checker) CheckAll(ctx context.Context) (int, error) {
	alerts, err := c.repo.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	if len(alerts) == 0 {
		return 0, nil
	}

	assetIDs := uniqueAssetIDs(alerts)

	quotes, err := c.quotes.GetQuotes(ctx, assetIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch quotes for alerts: %w", err)
	}

	assets, err := c.assets.GetAssets(ctx, assetIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to load assets for alerts: %w", err)
	}

	triggered := 0
	for i := range alerts {
		alert := &alerts[i]

		quote, ok := quotes[alert.AssetID]
		if !ok {
			logger.Warn("no quote for alerted asset, skipping",
				zap.String("alert_id", alert.ID),
				zap.String("asset_id", alert.AssetID),
			)
			continue
		}

		if !Crossed(alert, quote.Price) {
			continue
		}

		// The row-level guard decides the winner if several checkers race.
		won, err := c.repo.MarkTriggered(ctx, alert.ID)
		if err != nil {
			logger.Error("failed to mark alert triggered",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
			continue
		}
		if !won {
			continue
		}

		triggered++
		logger.Info("price alert triggered",
			zap.String("alert_id", alert.ID),
			zap.String("asset_id", alert.AssetID),
			zap.String("direction", string(alert.Direction)),
			zap.String("target", alert.TargetPrice.String()),
			zap.String("price", quote.Price.String()),
		)

		if c.notifier != nil {
			if err := c.notifier.SendPriceAlert(alert, assets[alert.AssetID], quote); err != nil {
				logger.Error("failed to deliver price alert",
					zap.String("alert_id", alert.ID),
					zap.Error(err),
				)
			}
		}
	}

	return triggered, nil
}

// Crossed reports whether the current price satisfies the alert condition
func Crossed(alert *models.PriceAlert, price decimal.Decimal) bool {
	switch alert.Direction {
	case models.AlertAbove:
		return price.GreaterThanOrEqual(alert.TargetPrice)
	case models.AlertBelow:
		return price.LessThanOrEqual(alert.TargetPrice)
	}
	return false
}

func uniqueAssetIDs(alerts []models.PriceAlert) []string {
	seen := make(map[string]struct{}, len(alerts))
	ids := make([]string, 0, len(alerts))
	for _, a := range alerts {
		if _, ok := seen[a.AssetID]; ok {
			continue
		}
		seen[a.AssetID] = struct{}{}
		ids = append(ids, a.AssetID)
	}
	return ids
}
