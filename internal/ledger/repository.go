package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"cryptofolio/pkg/models"
)

// Repository handles database operations for transactions, holdings and the
// asset registry
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new ledger repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// ========== Transaction Operations ==========

// RecordTransaction saves an immutable transaction event
func (r *Repository) RecordTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, organization_id, wallet_id, to_wallet_id, asset_id, type,
			quantity, price_per_unit_usd, fee_usd, exchange, notes,
			transaction_date, created_at
		) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12, $13)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID,
		tx.OrganizationID,
		tx.WalletID,
		tx.ToWalletID,
		tx.AssetID,
		string(tx.Type),
		tx.Quantity,
		tx.PricePerUnit,
		tx.Fee,
		tx.Exchange,
		tx.Notes,
		tx.Timestamp,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to record transaction: %w", err)
	}

	return nil
}

// ListTransactions returns the organization's full transaction stream in fold
// order: timestamp ascending, insertion order breaking ties. This is the total
// order the Fold contract requires.
func (r *Repository) ListTransactions(ctx context.Context, orgID string) ([]models.Transaction, error) {
	query := `
		SELECT
			id, organization_id, wallet_id, COALESCE(to_wallet_id, '') AS to_wallet_id,
			asset_id, type, quantity, price_per_unit_usd, fee_usd,
			COALESCE(exchange, '') AS exchange, COALESCE(notes, '') AS notes,
			transaction_date, created_at
		FROM transactions
		WHERE organization_id = $1
		ORDER BY transaction_date ASC, created_at ASC, id ASC
	`

	var txs []models.Transaction
	if err := r.db.SelectContext(ctx, &txs, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return txs, nil
}

// ListOrganizationIDs returns every organization that has transactions
func (r *Repository) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `SELECT DISTINCT organization_id FROM transactions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return ids, nil
}

// ========== Holding Operations ==========

// SaveHoldings replaces the organization's derived holdings cache. The
// transaction stream remains the source of truth; this table only avoids
// re-folding on every read.
func (r *Repository) SaveHoldings(ctx context.Context, orgID string, holdings map[models.HoldingKey]*models.Holding) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE organization_id = $1`, orgID); err != nil {
		return fmt.Errorf("failed to clear holdings: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO holdings (
			organization_id, wallet_id, asset_id,
			total_quantity, average_buy_price_usd, total_invested_usd, realized_pnl_usd,
			last_calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, h := range holdings {
		_, err := stmt.ExecContext(ctx,
			orgID,
			h.WalletID,
			h.AssetID,
			h.Quantity,
			h.AvgBuyPrice,
			h.TotalInvested,
			h.RealizedPnL,
			now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert holding %s/%s: %w", h.WalletID, h.AssetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit holdings: %w", err)
	}

	return nil
}

// ListHoldings returns the organization's cached holdings
func (r *Repository) ListHoldings(ctx context.Context, orgID string) ([]models.Holding, error) {
	query := `
		SELECT wallet_id, asset_id, total_quantity, average_buy_price_usd,
		       total_invested_usd, realized_pnl_usd
		FROM holdings
		WHERE organization_id = $1
		ORDER BY wallet_id, asset_id
	`

	var holdings []models.Holding
	if err := r.db.SelectContext(ctx, &holdings, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}

	return holdings, nil
}

// ========== Asset Registry Operations ==========

// GetAssets loads metadata for the given asset ids
func (r *Repository) GetAssets(ctx context.Context, assetIDs []string) (map[string]models.Asset, error) {
	if len(assetIDs) == 0 {
		return map[string]models.Asset{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, symbol, name, COALESCE(current_price_usd, 0) AS current_price_usd,
		       COALESCE(price_change_24h, 0) AS price_change_24h, updated_at
		FROM assets
		WHERE id IN (?)
	`, assetIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build asset query: %w", err)
	}

	var assets []models.Asset
	if err := r.db.SelectContext(ctx, &assets, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load assets: %w", err)
	}

	byID := make(map[string]models.Asset, len(assets))
	for _, a := range assets {
		byID[a.ID] = a
	}

	return byID, nil
}

// ListAssetIDs returns all registered asset ids
func (r *Repository) ListAssetIDs(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM assets ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list asset ids: %w", err)
	}
	return ids, nil
}

// UpdateAssetQuote refreshes the market snapshot for one asset
func (r *Repository) UpdateAssetQuote(ctx context.Context, assetID string, quote models.Quote) error {
	query := `
		UPDATE assets
		SET current_price_usd = $2, price_change_24h = $3, updated_at = $4
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, assetID, quote.Price, quote.Change24h, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update asset quote: %w", err)
	}

	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}
