// Package portfolio wires the ledger, quote source and insight engine into
// one refresh flow per organization.
package portfolio

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"cryptofolio/internal/insight"
	"cryptofolio/internal/ledger"
	"cryptofolio/pkg/logger"
	"cryptofolio/pkg/models"
)

// TransactionStore reads the transaction stream and writes derived holdings
type TransactionStore interface {
	ListTransactions(ctx context.Context, orgID string) ([]models.Transaction, error)
	ListOrganizationIDs(ctx context.Context) ([]string, error)
	SaveHoldings(ctx context.Context, orgID string, holdings map[models.HoldingKey]*models.Holding) error
	GetAssets(ctx context.Context, assetIDs []string) (map[string]models.Asset, error)
}

// InsightStore persists engine runs
type InsightStore interface {
	SaveRun(ctx context.Context, orgID string, insights []models.Insight) error
}

// QuoteSource provides current market quotes
type QuoteSource interface {
	GetQuotes(ctx context.Context, assetIDs []string) (map[string]models.Quote, error)
}

// NarrativeGenerator produces AI-written insights; optional
type NarrativeGenerator interface {
	GenerateNarrative(ctx context.Context, summary *models.PortfolioSummary, holdings []*models.Holding, assets map[string]models.Asset) ([]models.Insight, error)
}

// InsightNotifier delivers high-severity findings; optional
type InsightNotifier interface {
	SendInsightAlert(insight models.Insight) error
}

// Service runs the portfolio refresh flow: fold the ledger, value the result,
// generate insights and persist everything
type Service struct {
	store            TransactionStore
	insights         InsightStore
	quotes           QuoteSource
	engine           *insight.Engine
	narrative        NarrativeGenerator
	notifier         InsightNotifier
	narrativeTimeout time.Duration
}

// Option configures optional service collaborators
type Option func(*Service)

// WithNarrative attaches an AI narrative generator with its own timeout
func WithNarrative(gen NarrativeGenerator, timeout time.Duration) Option {
	return func(s *Service) {
		s.narrative = gen
		s.narrativeTimeout = timeout
	}
}

// WithNotifier attaches a notifier for high-severity insights
func WithNotifier(n InsightNotifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// NewService creates new portfolio service
func NewService(store TransactionStore, insights InsightStore, quotes QuoteSource, engine *insight.Engine, opts ...Option) *Service {
	s := &Service{
		store:            store,
		insights:         insights,
		quotes:           quotes,
		engine:           engine,
		narrativeTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RefreshResult is what one refresh produced
type RefreshResult struct {
	Summary  models.PortfolioSummary
	Holdings []models.Holding
	Insights []models.Insight
}

// Refresh recomputes the organization's portfolio from its transaction stream
// and regenerates insights. A failed narrative generator or notifier never
// fails the refresh; a failed quote fetch degrades it to ledger-only state.
func (s *Service) Refresh(ctx context.Context, orgID string) (*RefreshResult, error) {
	txs, err := s.store.ListTransactions(ctx, orgID)
	if err != nil {
		return nil, err
	}

	holdings, results, err := ledger.Fold(txs)
	if err != nil {
		// An oversell mid-stream still yields a consistent prefix state;
		// corrupt input does not.
		var insufficient *ledger.InsufficientBalanceError
		if !errors.As(err, &insufficient) {
			return nil, err
		}
		logger.Warn("transaction stream overdraws a position, using state before it",
			zap.String("org_id", orgID),
			zap.String("transaction_id", insufficient.TransactionID),
		)
	}

	if err := s.store.SaveHoldings(ctx, orgID, holdings); err != nil {
		return nil, err
	}

	active := ledger.Active(holdings)
	assets, err := s.loadAssets(ctx, active)
	if err != nil {
		logger.Warn("quote refresh failed, skipping valuation and insights",
			zap.String("org_id", orgID),
			zap.Error(err),
		)
		return &RefreshResult{
			Summary:  summarize(holdings, active, nil, 0),
			Holdings: active,
		}, nil
	}

	score, err := insight.DiversificationScore(active, assets)
	if err != nil {
		logger.Warn("diversification score unavailable",
			zap.String("org_id", orgID),
			zap.Error(err),
		)
	}

	summary := summarize(holdings, active, assets, score)

	insights := s.engine.Generate(active, txs, assets)
	insights = s.mergeNarrative(ctx, insights, &summary, active, assets)

	for i := range insights {
		insights[i].OrganizationID = orgID
	}

	if err := s.insights.SaveRun(ctx, orgID, insights); err != nil {
		return nil, err
	}

	s.notifyHighSeverity(insights)

	logger.Info("portfolio refreshed",
		zap.String("org_id", orgID),
		zap.Int("transactions", len(results)),
		zap.Int("holdings", len(active)),
		zap.Int("insights", len(insights)),
		zap.Int("diversification_score", summary.DiversificationScore),
	)

	return &RefreshResult{
		Summary:  summary,
		Holdings: active,
		Insights: insights,
	}, nil
}

// RefreshAll refreshes every organization that has transactions. Failures are
// per-organization; one bad stream does not block the rest.
func (s *Service) RefreshAll(ctx context.Context) error {
	orgIDs, err := s.store.ListOrganizationIDs(ctx)
	if err != nil {
		return err
	}

	for _, orgID := range orgIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.Refresh(ctx, orgID); err != nil {
			logger.Error("portfolio refresh failed",
				zap.String("org_id", orgID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// loadAssets merges stored asset metadata with live quotes into the snapshot
// the engine consumes. The quote source errors when any asset cannot be
// quoted, which sends Refresh down its ledger-only degraded path.
func (s *Service) loadAssets(ctx context.Context, active []models.Holding) (map[string]models.Asset, error) {
	assetIDs := make([]string, 0, len(active))
	seen := make(map[string]struct{}, len(active))
	for _, h := range active {
		if _, ok := seen[h.AssetID]; ok {
			continue
		}
		seen[h.AssetID] = struct{}{}
		assetIDs = append(assetIDs, h.AssetID)
	}

	assets, err := s.store.GetAssets(ctx, assetIDs)
	if err != nil {
		return nil, err
	}

	quotes, err := s.quotes.GetQuotes(ctx, assetIDs)
	if err != nil {
		return nil, err
	}

	for assetID, quote := range quotes {
		asset, ok := assets[assetID]
		if !ok {
			// Asset absent from the registry; the quote alone still lets the
			// engine value the position.
			asset = models.Asset{ID: assetID, Symbol: assetID, Name: assetID}
		}
		asset.CurrentPrice = quote.Price
		asset.Change24h = quote.Change24h
		asset.UpdatedAt = time.Now()
		assets[assetID] = asset
	}

	return assets, nil
}

func (s *Service) mergeNarrative(ctx context.Context, local []models.Insight, summary *models.PortfolioSummary, active []models.Holding, assets map[string]models.Asset) []models.Insight {
	if s.narrative == nil {
		return local
	}

	nctx, cancel := context.WithTimeout(ctx, s.narrativeTimeout)
	defer cancel()

	holdings := make([]*models.Holding, len(active))
	for i := range active {
		holdings[i] = &active[i]
	}

	narrative, err := s.narrative.GenerateNarrative(nctx, summary, holdings, assets)
	if err != nil {
		logger.Warn("narrative generation failed, keeping local insights", zap.Error(err))
		return local
	}

	return insight.MergeNarrative(local, narrative)
}

func (s *Service) notifyHighSeverity(insights []models.Insight) {
	if s.notifier == nil {
		return
	}

	for _, in := range insights {
		if in.Severity != models.SeverityHigh {
			continue
		}
		if err := s.notifier.SendInsightAlert(in); err != nil {
			logger.Warn("insight alert delivery failed",
				zap.String("insight_id", in.ID),
				zap.Error(err),
			)
		}
	}
}

// summarize aggregates valuation totals. Realized PnL sums over all holdings
// including fully closed ones; market value only over active positions. When
// assets is nil no quotes were available and value fields stay zero.
func summarize(all map[models.HoldingKey]*models.Holding, active []models.Holding, assets map[string]models.Asset, score int) models.PortfolioSummary {
	summary := models.PortfolioSummary{
		DiversificationScore: score,
		HoldingCount:         len(active),
	}

	for _, h := range all {
		summary.RealizedPnL = summary.RealizedPnL.Add(h.RealizedPnL)
	}

	if assets == nil {
		return summary
	}

	for _, h := range active {
		asset, ok := assets[h.AssetID]
		if !ok {
			continue
		}
		summary.TotalValue = summary.TotalValue.Add(h.MarketValue(asset.CurrentPrice))
		summary.TotalInvested = summary.TotalInvested.Add(h.TotalInvested)
		summary.UnrealizedPnL = summary.UnrealizedPnL.Add(h.UnrealizedPnL(asset.CurrentPrice))
	}

	if !summary.TotalInvested.IsZero() {
		summary.UnrealizedPercent = models.ToFloat64(summary.UnrealizedPnL.Div(summary.TotalInvested)) * 100
	}

	return summary
}
