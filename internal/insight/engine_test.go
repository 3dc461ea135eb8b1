package insight

import (
	"math"
	"testing"
	"time"

	"cryptofolio/pkg/models"
)

// buyOn returns a buy transaction dated to the given weekday
func buyOn(id string, weekday time.Weekday) models.Transaction {
	// 2024-03-03 is a Sunday
	base := time.Date(2024, 3, 3, 10, 0, 0, 0, time.UTC)
	return models.Transaction{
		ID:        id,
		WalletID:  "w1",
		AssetID:   "bitcoin",
		Type:      models.TxBuy,
		Quantity:  dec(1),
		Timestamp: base.AddDate(0, 0, int(weekday)),
	}
}

func byCategory(insights []models.Insight, category models.InsightCategory) []models.Insight {
	var out []models.Insight
	for _, in := range insights {
		if in.Category == category {
			out = append(out, in)
		}
	}
	return out
}

func TestEngine_Concentration(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("exact threshold does not fire", func(t *testing.T) {
		holdings := []models.Holding{
			holding("w1", "a", 30, 1),
			holding("w1", "b", 70, 1),
		}
		assets := map[string]models.Asset{
			"a": asset("a", "AAA", "Asset A", 1, 0),
			"b": asset("b", "BBB", "Asset B", 1, 0),
		}

		found := byCategory(engine.Generate(holdings, nil, assets), models.CategoryConcentration)

		if len(found) != 1 {
			t.Fatalf("expected 1 concentration insight, got %d", len(found))
		}
		if found[0].Suggestion == nil || found[0].Suggestion.AssetID != "b" {
			t.Errorf("expected insight for asset b (70%%), got %+v", found[0].Suggestion)
		}
	})

	t.Run("just above threshold fires with sell-to-target suggestion", func(t *testing.T) {
		holdings := []models.Holding{
			holding("w1", "a", 31, 1),
			holding("w1", "b", 69, 1),
		}
		assets := map[string]models.Asset{
			"a": asset("a", "AAA", "Asset A", 1, 0),
			"b": asset("b", "BBB", "Asset B", 1, 0),
		}

		found := byCategory(engine.Generate(holdings, nil, assets), models.CategoryConcentration)

		if len(found) != 2 {
			t.Fatalf("expected 2 concentration insights, got %d", len(found))
		}
		for _, in := range found {
			if in.Score != 90 || in.Severity != models.SeverityHigh || in.Kind != models.KindWarning {
				t.Errorf("wrong rating: score=%d severity=%s kind=%s", in.Score, in.Severity, in.Kind)
			}
			if in.Suggestion.Action != models.ActionSell {
				t.Errorf("expected sell suggestion, got %s", in.Suggestion.Action)
			}
		}
		// Asset a at 31%: sell (0.31-0.25)*100/1 = 6 units
		if got := models.ToFloat64(found[0].Suggestion.Quantity); math.Abs(got-6) > 1e-9 {
			t.Errorf("expected sell quantity 6, got %f", got)
		}
	})

	t.Run("BTC-ETH scenario", func(t *testing.T) {
		// BTC 1 @ 60k = 75%, ETH 10 @ 2k = 25% of $80k total.
		holdings := []models.Holding{
			holding("w1", "bitcoin", 1, 50000),
			holding("w1", "ethereum", 10, 3000),
		}
		assets := map[string]models.Asset{
			"bitcoin":  asset("bitcoin", "BTC", "Bitcoin", 60000, 0),
			"ethereum": asset("ethereum", "ETH", "Ethereum", 2000, 0),
		}

		found := byCategory(engine.Generate(holdings, nil, assets), models.CategoryConcentration)

		if len(found) != 1 {
			t.Fatalf("expected 1 concentration insight, got %d", len(found))
		}
		if found[0].Suggestion.AssetID != "bitcoin" {
			t.Errorf("expected BTC flagged, got %s", found[0].Suggestion.AssetID)
		}
		// (0.75 - 0.25) * 80000 / 60000 = 0.666667 BTC
		got := models.ToFloat64(found[0].Suggestion.Quantity)
		if math.Abs(got-2.0/3.0) > 0.0001 {
			t.Errorf("expected sell quantity ~0.6667, got %f", got)
		}
	})
}

func TestEngine_Performance(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("single best performer above benchmark margin", func(t *testing.T) {
		holdings := []models.Holding{
			holding("w1", "bitcoin", 1, 50000),
			holding("w1", "solana", 100, 100),
			holding("w1", "cardano", 1000, 1),
		}
		assets := map[string]models.Asset{
			"bitcoin": asset("bitcoin", "BTC", "Bitcoin", 60000, 2),
			"solana":  asset("solana", "SOL", "Solana", 150, 12),
			"cardano": asset("cardano", "ADA", "Cardano", 1, 9),
		}

		found := byCategory(engine.Generate(holdings, nil, assets), models.CategoryPerformance)

		// Both SOL (+12) and ADA (+9) beat benchmark+5 (=7), but only
		// the single best is reported.
		if len(found) != 1 {
			t.Fatalf("expected 1 performance insight, got %d", len(found))
		}
		if found[0].ID != "perf-best-solana" {
			t.Errorf("expected perf-best-solana, got %s", found[0].ID)
		}
		if found[0].Score != 75 || found[0].Kind != models.KindOpportunity {
			t.Errorf("wrong rating: score=%d kind=%s", found[0].Score, found[0].Kind)
		}
	})

	t.Run("benchmark falls back when reference asset is not held", func(t *testing.T) {
		holdings := []models.Holding{holding("w1", "solana", 1, 100)}

		// Fallback benchmark 2.4: +7 misses 7.4, +8 clears it.
		for change, want := range map[float64]int{7: 0, 8: 1} {
			assets := map[string]models.Asset{
				"solana": asset("solana", "SOL", "Solana", 150, change),
			}
			found := byCategory(engine.Generate(holdings, nil, assets), models.CategoryPerformance)
			if len(found) != want {
				t.Errorf("change %.0f: expected %d insights, got %d", change, want, len(found))
			}
		}
	})

	t.Run("worst performer below drop threshold", func(t *testing.T) {
		holdings := []models.Holding{
			holding("w1", "bitcoin", 1, 50000),
			holding("w1", "dogecoin", 10000, 0.2),
		}
		assets := map[string]models.Asset{
			"bitcoin":  asset("bitcoin", "BTC", "Bitcoin", 60000, 2),
			"dogecoin": asset("dogecoin", "DOGE", "Dogecoin", 0.1, -12.5),
		}

		found := byCategory(engine.Generate(holdings, nil, assets), models.CategoryPerformance)

		if len(found) != 1 {
			t.Fatalf("expected 1 performance insight, got %d", len(found))
		}
		if found[0].ID != "perf-worst-dogecoin" {
			t.Errorf("expected perf-worst-dogecoin, got %s", found[0].ID)
		}
		if found[0].Score != 85 || found[0].Severity != models.SeverityHigh {
			t.Errorf("wrong rating: score=%d severity=%s", found[0].Score, found[0].Severity)
		}
	})

	t.Run("a drop at the threshold does not fire", func(t *testing.T) {
		holdings := []models.Holding{holding("w1", "bitcoin", 1, 50000)}
		assets := map[string]models.Asset{
			"bitcoin": asset("bitcoin", "BTC", "Bitcoin", 60000, -10),
		}

		found := byCategory(engine.Generate(holdings, nil, assets), models.CategoryPerformance)
		if len(found) != 0 {
			t.Errorf("expected no insight at exactly -10%%, got %d", len(found))
		}
	})
}

func TestEngine_Rebalancing(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("needs at least two holdings", func(t *testing.T) {
		holdings := []models.Holding{holding("w1", "bitcoin", 1, 50000)}
		assets := map[string]models.Asset{
			"bitcoin": asset("bitcoin", "BTC", "Bitcoin", 60000, 0),
		}

		found := byCategory(engine.Generate(holdings, nil, assets), models.CategoryRebalancing)
		if len(found) != 0 {
			t.Errorf("expected no rebalancing for single holding, got %d", len(found))
		}
	})

	t.Run("50/30/20 split", func(t *testing.T) {
		holdings := []models.Holding{
			holding("w1", "a", 50, 1),
			holding("w1", "b", 30, 1),
			holding("w1", "c", 20, 1),
		}
		assets := map[string]models.Asset{
			"a": asset("a", "AAA", "Asset A", 1, 0),
			"b": asset("b", "BBB", "Asset B", 1, 0),
			"c": asset("c", "CCC", "Asset C", 1, 0),
		}

		found := byCategory(engine.Generate(holdings, nil, assets), models.CategoryRebalancing)

		// Target 33.3%: 50% deviates by 50% (fires, overweight), 30%
		// deviates by 10% (quiet), 20% deviates by 40% (fires,
		// underweight).
		if len(found) != 2 {
			t.Fatalf("expected 2 rebalancing insights, got %d", len(found))
		}

		byAsset := map[string]models.Insight{}
		for _, in := range found {
			byAsset[in.Suggestion.AssetID] = in
		}
		if _, ok := byAsset["b"]; ok {
			t.Error("asset b at 10%% deviation must not fire")
		}

		a := byAsset["a"]
		if a.Suggestion.Action != models.ActionSell {
			t.Errorf("expected sell for overweight a, got %s", a.Suggestion.Action)
		}
		// 50 - 100/3 = 16.667 units at price 1
		if got := models.ToFloat64(a.Suggestion.Quantity); math.Abs(got-16.6667) > 0.001 {
			t.Errorf("expected ~16.6667, got %f", got)
		}

		c := byAsset["c"]
		if c.Suggestion.Action != models.ActionBuy {
			t.Errorf("expected buy for underweight c, got %s", c.Suggestion.Action)
		}
		if c.Score != 60 || c.Severity != models.SeverityMedium || c.Kind != models.KindInfo {
			t.Errorf("wrong rating: %+v", c)
		}
	})
}

func TestEngine_Temporal(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("requires more than five transactions", func(t *testing.T) {
		txs := []models.Transaction{
			buyOn("t1", time.Monday), buyOn("t2", time.Monday), buyOn("t3", time.Monday),
			buyOn("t4", time.Monday), buyOn("t5", time.Monday),
		}

		found := byCategory(engine.Generate(nil, txs, nil), models.CategoryTemporal)
		if len(found) != 0 {
			t.Errorf("expected no temporal insight at 5 transactions, got %d", len(found))
		}
	})

	t.Run("reports the most frequent buy day", func(t *testing.T) {
		txs := []models.Transaction{
			buyOn("t1", time.Monday), buyOn("t2", time.Monday), buyOn("t3", time.Monday),
			buyOn("t4", time.Friday), buyOn("t5", time.Friday), buyOn("t6", time.Saturday),
		}

		found := byCategory(engine.Generate(nil, txs, nil), models.CategoryTemporal)

		if len(found) != 1 {
			t.Fatalf("expected 1 temporal insight, got %d", len(found))
		}
		if found[0].Score != 40 || found[0].Severity != models.SeverityLow {
			t.Errorf("wrong rating: score=%d severity=%s", found[0].Score, found[0].Severity)
		}
		if want := "You tend to be most active on Mondays."; found[0].Description[:len(want)] != want {
			t.Errorf("unexpected description: %s", found[0].Description)
		}
	})

	t.Run("ties resolve to the earliest day index", func(t *testing.T) {
		txs := []models.Transaction{
			buyOn("t1", time.Sunday), buyOn("t2", time.Sunday), buyOn("t3", time.Wednesday),
			buyOn("t4", time.Wednesday), buyOn("t5", time.Friday), buyOn("t6", time.Saturday),
		}

		found := byCategory(engine.Generate(nil, txs, nil), models.CategoryTemporal)

		if len(found) != 1 {
			t.Fatalf("expected 1 temporal insight, got %d", len(found))
		}
		if want := "You tend to be most active on Sundays."; found[0].Description[:len(want)] != want {
			t.Errorf("expected Sunday to win the tie: %s", found[0].Description)
		}
	})

	t.Run("sells alone produce no pattern", func(t *testing.T) {
		txs := make([]models.Transaction, 6)
		for i := range txs {
			txs[i] = buyOn("t", time.Monday)
			txs[i].Type = models.TxSell
		}

		found := byCategory(engine.Generate(nil, txs, nil), models.CategoryTemporal)
		if len(found) != 0 {
			t.Errorf("expected no temporal insight without buys, got %d", len(found))
		}
	})
}

func TestEngine_RankingAndIsolation(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	t.Run("insights sort by score descending", func(t *testing.T) {
		// 60% BTC dropping hard + smaller positions + buy history:
		// concentration (90), worst performer (85), rebalancing (60),
		// temporal (40).
		holdings := []models.Holding{
			holding("w1", "bitcoin", 1, 50000),
			holding("w1", "ethereum", 10, 3000),
		}
		assets := map[string]models.Asset{
			"bitcoin":  asset("bitcoin", "BTC", "Bitcoin", 60000, -12),
			"ethereum": asset("ethereum", "ETH", "Ethereum", 2000, -2),
		}
		txs := []models.Transaction{
			buyOn("t1", time.Monday), buyOn("t2", time.Monday), buyOn("t3", time.Monday),
			buyOn("t4", time.Tuesday), buyOn("t5", time.Tuesday), buyOn("t6", time.Friday),
		}

		insights := engine.Generate(holdings, txs, assets)

		if len(insights) < 4 {
			t.Fatalf("expected at least 4 insights, got %d", len(insights))
		}
		for i := 1; i < len(insights); i++ {
			if insights[i].Score > insights[i-1].Score {
				t.Fatalf("insights out of order at %d: %d > %d", i, insights[i].Score, insights[i-1].Score)
			}
		}
		if insights[0].Category != models.CategoryConcentration {
			t.Errorf("expected concentration first, got %s", insights[0].Category)
		}
	})

	t.Run("missing quotes do not silence the temporal detector", func(t *testing.T) {
		holdings := []models.Holding{holding("w1", "bitcoin", 1, 50000)}
		txs := []models.Transaction{
			buyOn("t1", time.Monday), buyOn("t2", time.Monday), buyOn("t3", time.Monday),
			buyOn("t4", time.Monday), buyOn("t5", time.Monday), buyOn("t6", time.Monday),
		}

		insights := engine.Generate(holdings, txs, map[string]models.Asset{})

		if len(insights) != 1 {
			t.Fatalf("expected only the temporal insight, got %d", len(insights))
		}
		if insights[0].Category != models.CategoryTemporal {
			t.Errorf("expected temporal, got %s", insights[0].Category)
		}
	})

	t.Run("every generated insight starts as new", func(t *testing.T) {
		holdings := []models.Holding{
			holding("w1", "bitcoin", 1, 50000),
			holding("w1", "ethereum", 10, 3000),
		}
		assets := map[string]models.Asset{
			"bitcoin":  asset("bitcoin", "BTC", "Bitcoin", 60000, -12),
			"ethereum": asset("ethereum", "ETH", "Ethereum", 2000, -2),
		}

		for _, in := range engine.Generate(holdings, nil, assets) {
			if in.Status != models.StatusNew {
				t.Errorf("insight %s created with status %s", in.ID, in.Status)
			}
		}
	})
}

func TestMergeNarrative(t *testing.T) {
	local := []models.Insight{
		{ID: "conc-w1-a", Category: models.CategoryConcentration, Score: 90},
		{ID: "temporal-activity", Category: models.CategoryTemporal, Score: 40},
	}

	t.Run("nil narrative leaves local insights untouched", func(t *testing.T) {
		merged := MergeNarrative(local, nil)
		if len(merged) != 2 || merged[0].ID != "conc-w1-a" {
			t.Errorf("unexpected merge result: %+v", merged)
		}
	})

	t.Run("narrative insights interleave by score", func(t *testing.T) {
		narrative := []models.Insight{
			{ID: "narrative-1", Category: models.CategoryNarrative, Score: 95},
			{ID: "narrative-2", Category: models.CategoryNarrative, Score: 60},
		}

		merged := MergeNarrative(local, narrative)

		wantOrder := []string{"narrative-1", "conc-w1-a", "narrative-2", "temporal-activity"}
		for i, want := range wantOrder {
			if merged[i].ID != want {
				t.Errorf("position %d: expected %s, got %s", i, want, merged[i].ID)
			}
		}
	})
}

func TestInsightStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to models.InsightStatus
		allowed  bool
	}{
		{models.StatusNew, models.StatusRead, true},
		{models.StatusNew, models.StatusApplied, true},
		{models.StatusRead, models.StatusApplied, false},
		{models.StatusApplied, models.StatusNew, false},
		{models.StatusRead, models.StatusNew, false},
	}

	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.allowed, got)
		}
	}
}
