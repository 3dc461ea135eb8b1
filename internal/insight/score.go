package insight

import (
	"math"

	"cryptofolio/pkg/models"
)

// DiversificationScore rates the portfolio's spread on a 0-100 scale using an
// inverted Herfindahl-Hirschman Index plus a small breadth bonus of 2 points
// per distinct holding. A single-asset portfolio scores only the bonus; an
// equally-weighted N-asset portfolio approaches 100*(1-1/N) + 2N, clamped.
//
// Pure function of current holdings and the quote snapshot; zero-quantity
// holdings are ignored and an empty or worthless portfolio scores 0.
func DiversificationScore(holdings []models.Holding, assets map[string]models.Asset) (int, error) {
	active := activeOnly(holdings)
	if len(active) == 0 {
		return 0, nil
	}

	v, err := valuate(active, assets)
	if err != nil {
		return 0, err
	}
	if v.total.IsZero() {
		return 0, nil
	}

	hhi := 0.0
	for _, w := range v.weights {
		hhi += w * w
	}

	score := (1-hhi)*100 + float64(len(active))*2
	score = math.Max(0, math.Min(100, score))

	return int(math.Round(score)), nil
}

func activeOnly(holdings []models.Holding) []models.Holding {
	active := make([]models.Holding, 0, len(holdings))
	for _, h := range holdings {
		if h.Quantity.IsPositive() {
			active = append(active, h)
		}
	}
	return active
}
