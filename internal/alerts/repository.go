package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"cryptofolio/pkg/models"
)

// Repository handles database operations for price alerts
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new alerts repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Create saves a new price alert
func (r *Repository) Create(ctx context.Context, alert *models.PriceAlert) error {
	query := `
		INSERT INTO price_alerts (
			id, organization_id, asset_id, direction, target_price_usd,
			is_triggered, created_at
		) VALUES ($1, $2, $3, $4, $5, false, $6)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID,
		alert.OrganizationID,
		alert.AssetID,
		string(alert.Direction),
		alert.TargetPrice,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to create price alert: %w", err)
	}

	return nil
}

// ListActive returns all alerts that have not triggered yet
func (r *Repository) ListActive(ctx context.Context) ([]models.PriceAlert, error) {
	query := `
		SELECT id, organization_id, asset_id, direction, target_price_usd,
		       is_triggered, triggered_at, created_at
		FROM price_alerts
		WHERE is_triggered = false
		ORDER BY created_at ASC
	`

	var alerts []models.PriceAlert
	if err := r.db.SelectContext(ctx, &alerts, query); err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}

	return alerts, nil
}

// MarkTriggered records that an alert fired. An alert fires once; the
// is_triggered guard keeps concurrent checkers from double-notifying.
func (r *Repository) MarkTriggered(ctx context.Context, alertID string) (bool, error) {
	query := `
		UPDATE price_alerts
		SET is_triggered = true, triggered_at = $2
		WHERE id = $1 AND is_triggered = false
	`

	res, err := r.db.ExecContext(ctx, query, alertID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to mark alert triggered: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rows > 0, nil
}

// Delete removes an alert
func (r *Repository) Delete(ctx context.Context, alertID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM price_alerts WHERE id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return nil
}
