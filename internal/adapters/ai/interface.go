package ai

import (
	"context"

	"cryptofolio/pkg/models"
)

// NarrativeGenerator produces free-form portfolio insights that complement
// the deterministic detectors. Implementations return a possibly empty slice;
// a failure here never blocks insight generation.
type NarrativeGenerator interface {
	GenerateNarrative(ctx context.Context, summary *models.PortfolioSummary, holdings []*models.Holding, assets map[string]models.Asset) ([]models.Insight, error)
}
