package insight

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"cryptofolio/pkg/models"
)

// Repository persists engine output and the caller-driven status lifecycle.
// The engine itself stays a pure function; persistence is injected around it.
type Repository struct {
	db *sqlx.DB
}

// NewRepository creates new insight repository
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// insightRow mirrors the insights table; the suggestion is stored as JSONB
type insightRow struct {
	ID             string          `db:"id"`
	OrganizationID string          `db:"organization_id"`
	Category       string          `db:"category"`
	Severity       string          `db:"severity"`
	Kind           string          `db:"kind"`
	Title          string          `db:"title"`
	Description    string          `db:"description"`
	Score          int             `db:"score"`
	Status         string          `db:"status"`
	Suggestion     json.RawMessage `db:"suggestion"`
	CreatedAt      time.Time       `db:"created_at"`
}

// SaveRun replaces the organization's unread insights with a fresh engine run.
// Read and applied insights are terminal and survive; only rows still in
// status new are superseded.
func (r *Repository) SaveRun(ctx context.Context, orgID string, insights []models.Insight) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM insights WHERE organization_id = $1 AND status = $2`,
		orgID, string(models.StatusNew),
	); err != nil {
		return fmt.Errorf("failed to clear previous run: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO insights (
			id, organization_id, category, severity, kind,
			title, description, score, status, suggestion, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (organization_id, id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, in := range insights {
		var suggestion []byte
		if in.Suggestion != nil {
			suggestion, err = json.Marshal(in.Suggestion)
			if err != nil {
				return fmt.Errorf("failed to marshal suggestion for %s: %w", in.ID, err)
			}
		}

		_, err := stmt.ExecContext(ctx,
			in.ID,
			orgID,
			string(in.Category),
			string(in.Severity),
			string(in.Kind),
			in.Title,
			in.Description,
			in.Score,
			string(models.StatusNew),
			suggestion,
			in.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert insight %s: %w", in.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insights: %w", err)
	}

	return nil
}

// ListActive returns undismissed insights, highest score first
func (r *Repository) ListActive(ctx context.Context, orgID string) ([]models.Insight, error) {
	return r.list(ctx, orgID, true)
}

// List returns all insights for the organization, highest score first
func (r *Repository) List(ctx context.Context, orgID string) ([]models.Insight, error) {
	return r.list(ctx, orgID, false)
}

func (r *Repository) list(ctx context.Context, orgID string, activeOnly bool) ([]models.Insight, error) {
	query := `
		SELECT id, organization_id, category, severity, kind,
		       title, description, score, status, suggestion, created_at
		FROM insights
		WHERE organization_id = $1
	`
	if activeOnly {
		query += ` AND status = 'new'`
	}
	query += ` ORDER BY score DESC, created_at DESC`

	var rows []insightRow
	if err := r.db.SelectContext(ctx, &rows, query, orgID); err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}

	insights := make([]models.Insight, 0, len(rows))
	for _, row := range rows {
		in := models.Insight{
			ID:             row.ID,
			OrganizationID: row.OrganizationID,
			Category:       models.InsightCategory(row.Category),
			Severity:       models.InsightSeverity(row.Severity),
			Kind:           models.InsightKind(row.Kind),
			Title:          row.Title,
			Description:    row.Description,
			Score:          row.Score,
			Status:         models.InsightStatus(row.Status),
			CreatedAt:      row.CreatedAt,
		}

		if len(row.Suggestion) > 0 {
			var suggestion models.Suggestion
			if err := json.Unmarshal(row.Suggestion, &suggestion); err != nil {
				return nil, fmt.Errorf("failed to unmarshal suggestion for %s: %w", row.ID, err)
			}
			in.Suggestion = &suggestion
		}

		insights = append(insights, in)
	}

	return insights, nil
}

// UpdateStatus applies a caller-driven status transition. Only new insights
// move, to read or applied; anything else is rejected.
func (r *Repository) UpdateStatus(ctx context.Context, orgID, id string, next models.InsightStatus) error {
	var current string
	err := r.db.GetContext(ctx, &current,
		`SELECT status FROM insights WHERE organization_id = $1 AND id = $2`, orgID, id)
	if err == sql.ErrNoRows {
		return fmt.Errorf("insight %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load insight status: %w", err)
	}

	if !models.InsightStatus(current).CanTransitionTo(next) {
		return fmt.Errorf("invalid status transition %s -> %s for insight %s", current, next, id)
	}

	// Guard against races: the row must still be in the status we read.
	res, err := r.db.ExecContext(ctx,
		`UPDATE insights SET status = $3 WHERE organization_id = $1 AND id = $2 AND status = $4`,
		orgID, id, string(next), current,
	)
	if err != nil {
		return fmt.Errorf("failed to update insight status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err == nil && rows == 0 {
		return fmt.Errorf("insight %s changed concurrently", id)
	}

	return nil
}
