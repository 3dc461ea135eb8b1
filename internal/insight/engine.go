// Package insight scores portfolio diversification and runs rule-based
// detectors over holdings, quotes and transaction history to produce ranked,
// actionable findings.
package insight

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cryptofolio/pkg/logger"
	"cryptofolio/pkg/models"
)

// Config holds detector thresholds. Zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// ConcentrationThreshold is the value weight above which (strictly) a
	// single position is flagged.
	ConcentrationThreshold float64
	// ConcentrationTarget is the weight a flagged position should be sold
	// down to.
	ConcentrationTarget float64
	// RebalanceDeviationThreshold is the relative deviation from the
	// equal-weight target above which (strictly) a rebalance is suggested.
	RebalanceDeviationThreshold float64
	// SevereDropThreshold flags the worst performer when its 24h change
	// falls below this value.
	SevereDropThreshold float64
	// OutperformMargin is how many points above the benchmark the best
	// performer must be to count as an opportunity.
	OutperformMargin float64
	// BenchmarkAssetID names the reference asset for relative performance.
	BenchmarkAssetID string
	// BenchmarkFallbackChange is used when the benchmark asset is not held.
	BenchmarkFallbackChange float64
	// MinTemporalTransactions gates the temporal detector: it runs only
	// when strictly more transactions than this exist.
	MinTemporalTransactions int
}

// DefaultConfig returns the stock detector thresholds
func DefaultConfig() Config {
	return Config{
		ConcentrationThreshold:      0.30,
		ConcentrationTarget:         0.25,
		RebalanceDeviationThreshold: 0.15,
		SevereDropThreshold:         -10,
		OutperformMargin:            5,
		BenchmarkAssetID:            "bitcoin",
		BenchmarkFallbackChange:     2.4,
		MinTemporalTransactions:     5,
	}
}

// rating fixes severity, kind and score per detector. Scores are deliberate
// constants, not computed from magnitude; magnitudes go into the description.
type rating struct {
	severity models.InsightSeverity
	kind     models.InsightKind
	score    int
}

var (
	ratingConcentration  = rating{models.SeverityHigh, models.KindWarning, 90}
	ratingBestPerformer  = rating{models.SeverityMedium, models.KindOpportunity, 75}
	ratingWorstPerformer = rating{models.SeverityHigh, models.KindWarning, 85}
	ratingRebalancing    = rating{models.SeverityMedium, models.KindInfo, 60}
	ratingTemporal       = rating{models.SeverityLow, models.KindInfo, 40}
)

var weekdays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Engine runs the local detectors. It is stateless and safe for concurrent
// use; each Generate call is a pure function of its inputs (plus timestamps).
type Engine struct {
	cfg Config
}

// NewEngine creates an insight engine with the given thresholds
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Generate runs all detectors and returns insights sorted by score descending,
// ties kept in detector emission order. A missing quote disables the
// value-dependent detectors but never the temporal one; detector failures are
// isolated from each other.
func (e *Engine) Generate(holdings []models.Holding, txs []models.Transaction, assets map[string]models.Asset) []models.Insight {
	insights := make([]models.Insight, 0, 8)
	now := time.Now()

	active := activeOnly(holdings)

	v, err := valuate(active, assets)
	if err != nil {
		logger.Warn("skipping value-dependent detectors", zap.Error(err))
	} else if !v.total.IsZero() {
		insights = append(insights, e.detectConcentration(v, assets, now)...)
		insights = append(insights, e.detectPerformance(v, assets, now)...)
		insights = append(insights, e.detectRebalancing(v, assets, now)...)
	}

	insights = append(insights, e.detectTemporal(txs, now)...)

	sortByScore(insights)
	return insights
}

// MergeNarrative appends externally generated narrative insights and re-sorts.
// The narrative slice may be nil; local results are never affected by a failed
// or absent narrative generator.
func MergeNarrative(local, narrative []models.Insight) []models.Insight {
	merged := make([]models.Insight, 0, len(local)+len(narrative))
	merged = append(merged, local...)
	merged = append(merged, narrative...)
	sortByScore(merged)
	return merged
}

// detectConcentration flags positions whose value weight strictly exceeds the
// threshold and suggests selling down to the target weight
func (e *Engine) detectConcentration(v *valuation, assets map[string]models.Asset, now time.Time) []models.Insight {
	var found []models.Insight

	for i, h := range v.holdings {
		weight := v.weights[i]
		if weight <= e.cfg.ConcentrationThreshold {
			continue
		}

		asset := assets[h.AssetID]
		excess := decimal.NewFromFloat(weight - e.cfg.ConcentrationTarget)
		sellQuantity := excess.Mul(v.total).Div(asset.CurrentPrice)

		found = append(found, models.Insight{
			ID:       fmt.Sprintf("conc-%s-%s", h.WalletID, h.AssetID),
			Category: models.CategoryConcentration,
			Severity: ratingConcentration.severity,
			Kind:     ratingConcentration.kind,
			Score:    ratingConcentration.score,
			Title:    fmt.Sprintf("High Concentration in %s", asset.Symbol),
			Description: fmt.Sprintf("%s represents %.1f%% of your portfolio. Consider diversifying to reduce specific asset risk.",
				asset.Name, weight*100),
			Status:    models.StatusNew,
			CreatedAt: now,
			Suggestion: &models.Suggestion{
				AssetID:  h.AssetID,
				Action:   models.ActionSell,
				Quantity: sellQuantity,
			},
		})
	}

	return found
}

// detectPerformance reports the single best performer beating the benchmark by
// the configured margin and the single worst performer below the drop
// threshold
func (e *Engine) detectPerformance(v *valuation, assets map[string]models.Asset, now time.Time) []models.Insight {
	if len(v.holdings) == 0 {
		return nil
	}

	benchmark := e.cfg.BenchmarkFallbackChange
	for _, h := range v.holdings {
		if h.AssetID == e.cfg.BenchmarkAssetID {
			benchmark = assets[h.AssetID].Change24h
			break
		}
	}

	// First holding wins ties; valuation order is deterministic.
	best, worst := 0, 0
	for i := range v.holdings {
		if assets[v.holdings[i].AssetID].Change24h > assets[v.holdings[best].AssetID].Change24h {
			best = i
		}
		if assets[v.holdings[i].AssetID].Change24h < assets[v.holdings[worst].AssetID].Change24h {
			worst = i
		}
	}

	var found []models.Insight

	if bestAsset := assets[v.holdings[best].AssetID]; bestAsset.Change24h >= benchmark+e.cfg.OutperformMargin {
		found = append(found, models.Insight{
			ID:       fmt.Sprintf("perf-best-%s", bestAsset.ID),
			Category: models.CategoryPerformance,
			Severity: ratingBestPerformer.severity,
			Kind:     ratingBestPerformer.kind,
			Score:    ratingBestPerformer.score,
			Title:    fmt.Sprintf("%s Outperforming Market", bestAsset.Symbol),
			Description: fmt.Sprintf("%s is up %.1f%% (24h), significantly beating the benchmark.",
				bestAsset.Name, bestAsset.Change24h),
			Status:    models.StatusNew,
			CreatedAt: now,
		})
	}

	if worstAsset := assets[v.holdings[worst].AssetID]; worstAsset.Change24h < e.cfg.SevereDropThreshold {
		found = append(found, models.Insight{
			ID:       fmt.Sprintf("perf-worst-%s", worstAsset.ID),
			Category: models.CategoryPerformance,
			Severity: ratingWorstPerformer.severity,
			Kind:     ratingWorstPerformer.kind,
			Score:    ratingWorstPerformer.score,
			Title:    fmt.Sprintf("Significant Drop in %s", worstAsset.Symbol),
			Description: fmt.Sprintf("%s has dropped %.1f%% in the last 24h. Review news or fundamentals.",
				worstAsset.Name, worstAsset.Change24h),
			Status:    models.StatusNew,
			CreatedAt: now,
		})
	}

	return found
}

// detectRebalancing flags holdings deviating from the equal-weight target by
// more than the relative threshold, with a buy/sell suggestion sized to reach
// the target exactly
func (e *Engine) detectRebalancing(v *valuation, assets map[string]models.Asset, now time.Time) []models.Insight {
	if len(v.holdings) < 2 {
		return nil
	}

	target := 1.0 / float64(len(v.holdings))
	targetValue := v.total.Mul(decimal.NewFromFloat(target))

	var found []models.Insight

	for i, h := range v.holdings {
		weight := v.weights[i]
		deviation := (weight - target) / target
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation <= e.cfg.RebalanceDeviationThreshold {
			continue
		}

		asset := assets[h.AssetID]
		overweight := weight > target

		action := models.ActionBuy
		direction := "underweight"
		if overweight {
			action = models.ActionSell
			direction = "overweight"
		}

		diffQuantity := v.values[i].Sub(targetValue).Abs().Div(asset.CurrentPrice)

		found = append(found, models.Insight{
			ID:       fmt.Sprintf("reb-%s-%s", h.WalletID, h.AssetID),
			Category: models.CategoryRebalancing,
			Severity: ratingRebalancing.severity,
			Kind:     ratingRebalancing.kind,
			Score:    ratingRebalancing.score,
			Title:    fmt.Sprintf("Rebalance Suggested: %s", asset.Symbol),
			Description: fmt.Sprintf("%s is %s by %.1f%% relative to equal-weight target.",
				asset.Symbol, direction, (weight-target)*100),
			Status:    models.StatusNew,
			CreatedAt: now,
			Suggestion: &models.Suggestion{
				AssetID:  h.AssetID,
				Action:   action,
				Quantity: diffQuantity,
			},
		})
	}

	return found
}

// detectTemporal reports the weekday the investor buys most often. Needs no
// quotes, so it runs even when valuation fails. Ties resolve to the earliest
// day index (Sunday first).
func (e *Engine) detectTemporal(txs []models.Transaction, now time.Time) []models.Insight {
	if len(txs) <= e.cfg.MinTemporalTransactions {
		return nil
	}

	var dayCounts [7]int
	buys := 0
	for i := range txs {
		if txs[i].Type == models.TxBuy {
			dayCounts[int(txs[i].Timestamp.Weekday())]++
			buys++
		}
	}
	if buys == 0 {
		return nil
	}

	bestDay := 0
	for day := 1; day < 7; day++ {
		if dayCounts[day] > dayCounts[bestDay] {
			bestDay = day
		}
	}

	return []models.Insight{{
		ID:       "temporal-activity",
		Category: models.CategoryTemporal,
		Severity: ratingTemporal.severity,
		Kind:     ratingTemporal.kind,
		Score:    ratingTemporal.score,
		Title:    "Activity Pattern Detected",
		Description: fmt.Sprintf("You tend to be most active on %ss. Historically, DCA strategies perform better mid-week.",
			weekdays[bestDay]),
		Status:    models.StatusNew,
		CreatedAt: now,
	}}
}

func sortByScore(insights []models.Insight) {
	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].Score > insights[j].Score
	})
}
