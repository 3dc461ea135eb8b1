package workers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cryptofolio/internal/portfolio"
	"cryptofolio/internal/snapshot"
	"cryptofolio/pkg/logger"
	"cryptofolio/pkg/models"
)

// OrganizationLister enumerates organizations with portfolio activity
type OrganizationLister interface {
	ListOrganizationIDs(ctx context.Context) ([]string, error)
}

// Refresher recomputes one organization's portfolio and insights
type Refresher interface {
	Refresh(ctx context.Context, orgID string) (*portfolio.RefreshResult, error)
}

// PortfolioSnapshotStore persists portfolio valuation points
type PortfolioSnapshotStore interface {
	SavePortfolioSnapshot(ctx context.Context, s snapshot.PortfolioSnapshot) error
}

// InsightsWorker periodically refreshes every organization's holdings and
// insights, recording a portfolio valuation point along the way
type InsightsWorker struct {
	orgs      OrganizationLister
	service   Refresher
	snapshots PortfolioSnapshotStore
}

// NewInsightsWorker creates new insight regeneration worker. snapshots may be
// nil when no snapshot store is configured.
func NewInsightsWorker(orgs OrganizationLister, service Refresher, snapshots PortfolioSnapshotStore) *InsightsWorker {
	return &InsightsWorker{orgs: orgs, service: service, snapshots: snapshots}
}

func (w *InsightsWorker) Name() string {
	return "insights_refresh"
}

// Run refreshes every organization. One failing organization does not stop
// the others.
func (w *InsightsWorker) Run(ctx context.Context) error {
	orgIDs, err := w.orgs.ListOrganizationIDs(ctx)
	if err != nil {
		return err
	}

	for _, orgID := range orgIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		res, err := w.service.Refresh(ctx, orgID)
		if err != nil {
			logger.Error("portfolio refresh failed",
				zap.String("org_id", orgID),
				zap.Error(err),
			)
			continue
		}

		w.record(ctx, orgID, res.Summary)
	}

	return nil
}

func (w *InsightsWorker) record(ctx context.Context, orgID string, summary models.PortfolioSummary) {
	if w.snapshots == nil {
		return
	}

	err := w.snapshots.SavePortfolioSnapshot(ctx, snapshot.PortfolioSnapshot{
		Timestamp:            time.Now(),
		OrganizationID:       orgID,
		TotalValueUSD:        summary.TotalValue.InexactFloat64(),
		TotalInvestedUSD:     summary.TotalInvested.InexactFloat64(),
		UnrealizedPnLUSD:     summary.UnrealizedPnL.InexactFloat64(),
		RealizedPnLUSD:       summary.RealizedPnL.InexactFloat64(),
		DiversificationScore: int32(summary.DiversificationScore),
		HoldingCount:         int32(summary.HoldingCount),
	})
	if err != nil {
		logger.Warn("failed to record portfolio snapshot",
			zap.String("org_id", orgID),
			zap.Error(err),
		)
	}
}
