package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"cryptofolio/pkg/logger"
	"cryptofolio/pkg/models"
)

// PriceSnapshot is one recorded price observation
type PriceSnapshot struct {
	Timestamp time.Time `db:"timestamp"`
	AssetID   string    `db:"asset_id"`
	PriceUSD  float64   `db:"price_usd"`
	Change24h float64   `db:"change_24h"`
}

// PortfolioSnapshot is one recorded portfolio valuation
type PortfolioSnapshot struct {
	Timestamp            time.Time `db:"timestamp"`
	OrganizationID       string    `db:"organization_id"`
	TotalValueUSD        float64   `db:"total_value_usd"`
	TotalInvestedUSD     float64   `db:"total_invested_usd"`
	UnrealizedPnLUSD     float64   `db:"unrealized_pnl_usd"`
	RealizedPnLUSD       float64   `db:"realized_pnl_usd"`
	DiversificationScore int32     `db:"diversification_score"`
	HoldingCount         int32     `db:"holding_count"`
}

// ValuePoint is one point of the portfolio value series
type ValuePoint struct {
	Timestamp     time.Time `db:"timestamp"`
	TotalValueUSD float64   `db:"total_value_usd"`
}

// Repository stores time-series snapshots in ClickHouse
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new snapshot repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates snapshot tables if they do not exist
func (r *Repository) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS price_snapshots (
			timestamp DateTime,
			asset_id String,
			price_usd Float64,
			change_24h Float64
		) ENGINE = MergeTree()
		ORDER BY (asset_id, timestamp)
		TTL timestamp + INTERVAL 2 YEAR`,

		`CREATE TABLE IF NOT EXISTS portfolio_snapshots (
			timestamp DateTime,
			organization_id String,
			total_value_usd Float64,
			total_invested_usd Float64,
			unrealized_pnl_usd Float64,
			realized_pnl_usd Float64,
			diversification_score Int32,
			holding_count Int32
		) ENGINE = MergeTree()
		ORDER BY (organization_id, timestamp)
		TTL timestamp + INTERVAL 2 YEAR`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create snapshot table: %w", err)
		}
	}

	return nil
}

// SavePriceSnapshots records one observation per asset
func (r *Repository) SavePriceSnapshots(ctx context.Context, snapshots []PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	stmt, err := tx.Preparex(`
		INSERT INTO price_snapshots (timestamp, asset_id, price_usd, change_24h)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range snapshots {
		_, err = stmt.ExecContext(ctx,
			s.Timestamp,
			s.AssetID,
			s.PriceUSD,
			s.Change24h,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert price snapshot: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	logger.Debug("saved price snapshots",
		zap.Int("count", len(snapshots)),
	)

	return nil
}

// SavePortfolioSnapshot records one portfolio valuation point
func (r *Repository) SavePortfolioSnapshot(ctx context.Context, s PortfolioSnapshot) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO portfolio_snapshots
		(timestamp, organization_id, total_value_usd, total_invested_usd,
		 unrealized_pnl_usd, realized_pnl_usd, diversification_score, holding_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.Timestamp,
		s.OrganizationID,
		s.TotalValueUSD,
		s.TotalInvestedUSD,
		s.UnrealizedPnLUSD,
		s.RealizedPnLUSD,
		s.DiversificationScore,
		s.HoldingCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert portfolio snapshot: %w", err)
	}

	return nil
}

// ValueSeries returns the portfolio value history for charting, oldest first
func (r *Repository) ValueSeries(ctx context.Context, orgID string, since time.Time) ([]ValuePoint, error) {
	query := `
		SELECT timestamp, total_value_usd
		FROM portfolio_snapshots
		WHERE organization_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`

	var points []ValuePoint
	if err := r.db.SelectContext(ctx, &points, query, orgID, since); err != nil {
		return nil, fmt.Errorf("failed to load value series: %w", err)
	}

	return points, nil
}

// PriceSeries returns recorded prices for one asset, oldest first
func (r *Repository) PriceSeries(ctx context.Context, assetID string, since time.Time) ([]PriceSnapshot, error) {
	query := `
		SELECT timestamp, asset_id, price_usd, change_24h
		FROM price_snapshots
		WHERE asset_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`

	var snapshots []PriceSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, assetID, since); err != nil {
		return nil, fmt.Errorf("failed to load price series: %w", err)
	}

	return snapshots, nil
}

// FromQuotes converts a quote map into price snapshots at the given time
func FromQuotes(quotes map[string]models.Quote, at time.Time) []PriceSnapshot {
	snapshots := make([]PriceSnapshot, 0, len(quotes))
	for assetID, quote := range quotes {
		snapshots = append(snapshots, PriceSnapshot{
			Timestamp: at,
			AssetID:   assetID,
			PriceUSD:  quote.Price.InexactFloat64(),
			Change24h: quote.Change24h,
		})
	}
	return snapshots
}
