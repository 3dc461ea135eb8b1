package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"cryptofolio/pkg/models"
)

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func tx(id string, kind models.TransactionType, wallet, asset string, quantity, price, fee float64) models.Transaction {
	return models.Transaction{
		ID:           id,
		WalletID:     wallet,
		AssetID:      asset,
		Type:         kind,
		Quantity:     dec(quantity),
		PricePerUnit: dec(price),
		Fee:          dec(fee),
		Timestamp:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func mustHolding(t *testing.T, holdings map[models.HoldingKey]*models.Holding, wallet, asset string) *models.Holding {
	t.Helper()
	h, ok := holdings[models.HoldingKey{WalletID: wallet, AssetID: asset}]
	if !ok {
		t.Fatalf("no holding for wallet=%s asset=%s", wallet, asset)
	}
	return h
}

func TestFold_BuysOnly(t *testing.T) {
	holdings, results, err := Fold([]models.Transaction{
		tx("t1", models.TxBuy, "w1", "bitcoin", 1, 40000, 10),
		tx("t2", models.TxBuy, "w1", "bitcoin", 1, 60000, 10),
		tx("t3", models.TxBuy, "w1", "bitcoin", 2, 50000, 0),
	})
	if err != nil {
		t.Fatalf("Fold failed: %v", err)
	}

	h := mustHolding(t, holdings, "w1", "bitcoin")

	if !h.Quantity.Equal(dec(4)) {
		t.Errorf("expected quantity 4, got %s", h.Quantity)
	}
	// Value-weighted mean: (40000 + 60000 + 100000) / 4
	if !h.AvgBuyPrice.Equal(dec(50000)) {
		t.Errorf("expected avg price 50000, got %s", h.AvgBuyPrice)
	}
	if !h.TotalInvested.Equal(dec(200020)) {
		t.Errorf("expected invested 200020, got %s", h.TotalInvested)
	}
	if !h.RealizedPnL.IsZero() {
		t.Errorf("buys must not realize PnL, got %s", h.RealizedPnL)
	}
	for _, r := range results {
		if !r.RealizedPnL.IsZero() {
			t.Errorf("transaction %s realized %s on a buy", r.TransactionID, r.RealizedPnL)
		}
	}
}

func TestFold_AirdropAndStakingCredit(t *testing.T) {
	holdings, _, err := Fold([]models.Transaction{
		tx("t1", models.TxBuy, "w1", "ethereum", 10, 3000, 0),
		tx("t2", models.TxAirdrop, "w1", "ethereum", 2, 0, 0),
		tx("t3", models.TxStaking, "w1", "ethereum", 1, 0, 0),
	})
	if err != nil {
		t.Fatalf("Fold failed: %v", err)
	}

	h := mustHolding(t, holdings, "w1", "ethereum")

	if !h.Quantity.Equal(dec(13)) {
		t.Errorf("expected quantity 13, got %s", h.Quantity)
	}
	// Zero-price credits dilute the average: 30000 / 13
	want := dec(30000).Div(dec(13))
	if !h.AvgBuyPrice.Equal(want) {
		t.Errorf("expected avg price %s, got %s", want, h.AvgBuyPrice)
	}
	if !h.TotalInvested.Equal(dec(30000)) {
		t.Errorf("expected invested 30000, got %s", h.TotalInvested)
	}
}

func TestFold_Sell(t *testing.T) {
	t.Run("realizes against average cost and keeps avg price", func(t *testing.T) {
		holdings, results, err := Fold([]models.Transaction{
			tx("t1", models.TxBuy, "w1", "bitcoin", 2, 50000, 0),
			tx("t2", models.TxSell, "w1", "bitcoin", 1, 60000, 100),
		})
		if err != nil {
			t.Fatalf("Fold failed: %v", err)
		}

		h := mustHolding(t, holdings, "w1", "bitcoin")

		if !h.Quantity.Equal(dec(1)) {
			t.Errorf("expected quantity 1, got %s", h.Quantity)
		}
		if !h.AvgBuyPrice.Equal(dec(50000)) {
			t.Errorf("sell changed avg price: %s", h.AvgBuyPrice)
		}
		// 1 * (60000 - 50000) - 100
		if !h.RealizedPnL.Equal(dec(9900)) {
			t.Errorf("expected realized 9900, got %s", h.RealizedPnL)
		}
		if !results[1].RealizedPnL.Equal(dec(9900)) {
			t.Errorf("expected per-tx delta 9900, got %s", results[1].RealizedPnL)
		}
	})

	t.Run("closing the position resets invested capital", func(t *testing.T) {
		holdings, _, err := Fold([]models.Transaction{
			tx("t1", models.TxBuy, "w1", "bitcoin", 2, 50000, 0),
			tx("t2", models.TxSell, "w1", "bitcoin", 2, 55000, 0),
		})
		if err != nil {
			t.Fatalf("Fold failed: %v", err)
		}

		h := mustHolding(t, holdings, "w1", "bitcoin")

		if !h.Quantity.IsZero() {
			t.Errorf("expected zero quantity, got %s", h.Quantity)
		}
		if !h.TotalInvested.IsZero() {
			t.Errorf("expected invested reset to zero, got %s", h.TotalInvested)
		}
		// Average price is retained informationally
		if !h.AvgBuyPrice.Equal(dec(50000)) {
			t.Errorf("expected avg price kept at 50000, got %s", h.AvgBuyPrice)
		}
	})

	t.Run("overselling is rejected without partial application", func(t *testing.T) {
		holdings, results, err := Fold([]models.Transaction{
			tx("t1", models.TxBuy, "w1", "bitcoin", 1, 50000, 0),
			tx("t2", models.TxSell, "w1", "bitcoin", 2, 60000, 0),
			tx("t3", models.TxBuy, "w1", "bitcoin", 1, 50000, 0),
		})
		if err == nil {
			t.Fatal("expected insufficient balance error")
		}

		var insErr *InsufficientBalanceError
		if !errors.As(err, &insErr) {
			t.Fatalf("expected InsufficientBalanceError, got %T", err)
		}
		if insErr.TransactionID != "t2" {
			t.Errorf("expected offending transaction t2, got %s", insErr.TransactionID)
		}
		if !insErr.Requested.Equal(dec(2)) || !insErr.Available.Equal(dec(1)) {
			t.Errorf("expected requested=2 available=1, got %s/%s", insErr.Requested, insErr.Available)
		}

		// The committed prefix stops before the rejected transaction:
		// holding state is exactly what t1 produced, t3 never applied.
		h := mustHolding(t, holdings, "w1", "bitcoin")
		if !h.Quantity.Equal(dec(1)) {
			t.Errorf("expected quantity 1 after rejected sell, got %s", h.Quantity)
		}
		if !h.RealizedPnL.IsZero() {
			t.Errorf("rejected sell realized PnL: %s", h.RealizedPnL)
		}
		if len(results) != 1 {
			t.Errorf("expected 1 applied result, got %d", len(results))
		}
	})
}

func TestFold_Transfer(t *testing.T) {
	t.Run("moves quantity at source average price without PnL", func(t *testing.T) {
		transfer := tx("t2", models.TxTransfer, "w1", "bitcoin", 1, 0, 0)
		transfer.ToWalletID = "w2"

		holdings, results, err := Fold([]models.Transaction{
			tx("t1", models.TxBuy, "w1", "bitcoin", 2, 50000, 0),
			transfer,
		})
		if err != nil {
			t.Fatalf("Fold failed: %v", err)
		}

		src := mustHolding(t, holdings, "w1", "bitcoin")
		dst := mustHolding(t, holdings, "w2", "bitcoin")

		if !src.Quantity.Equal(dec(1)) || !dst.Quantity.Equal(dec(1)) {
			t.Errorf("expected 1/1 split, got %s/%s", src.Quantity, dst.Quantity)
		}
		if !dst.AvgBuyPrice.Equal(dec(50000)) {
			t.Errorf("destination must inherit source avg price, got %s", dst.AvgBuyPrice)
		}
		// Portfolio-wide quantity invariant under transfer
		total := src.Quantity.Add(dst.Quantity)
		if !total.Equal(dec(2)) {
			t.Errorf("transfer changed total quantity: %s", total)
		}
		for _, r := range results {
			if !r.RealizedPnL.IsZero() {
				t.Errorf("transfer realized PnL: %s", r.RealizedPnL)
			}
		}
		// Invested capital moves proportionally
		if !src.TotalInvested.Equal(dec(50000)) || !dst.TotalInvested.Equal(dec(50000)) {
			t.Errorf("expected invested 50000/50000, got %s/%s", src.TotalInvested, dst.TotalInvested)
		}
	})

	t.Run("rejects transfer exceeding source balance", func(t *testing.T) {
		transfer := tx("t2", models.TxTransfer, "w1", "bitcoin", 5, 0, 0)
		transfer.ToWalletID = "w2"

		holdings, _, err := Fold([]models.Transaction{
			tx("t1", models.TxBuy, "w1", "bitcoin", 1, 50000, 0),
			transfer,
		})

		var insErr *InsufficientBalanceError
		if !errors.As(err, &insErr) {
			t.Fatalf("expected InsufficientBalanceError, got %v", err)
		}

		src := mustHolding(t, holdings, "w1", "bitcoin")
		if !src.Quantity.Equal(dec(1)) {
			t.Errorf("rejected transfer mutated source: %s", src.Quantity)
		}
	})
}

func TestFold_Validation(t *testing.T) {
	cases := []struct {
		name  string
		tx    models.Transaction
		field string
	}{
		{"zero quantity", tx("t1", models.TxBuy, "w1", "bitcoin", 0, 100, 0), "quantity"},
		{"negative fee", tx("t1", models.TxBuy, "w1", "bitcoin", 1, 100, -1), "fee"},
		{"negative price", tx("t1", models.TxBuy, "w1", "bitcoin", 1, -100, 0), "price_per_unit"},
		{"unknown type", tx("t1", "swap", "w1", "bitcoin", 1, 100, 0), "type"},
		{"empty wallet", tx("t1", models.TxBuy, "", "bitcoin", 1, 100, 0), "wallet_id"},
		{"empty asset", tx("t1", models.TxBuy, "w1", "", 1, 100, 0), "asset_id"},
		{"transfer without destination", tx("t1", models.TxTransfer, "w1", "bitcoin", 1, 0, 0), "to_wallet_id"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			holdings, _, err := Fold([]models.Transaction{tc.tx})

			var valErr *ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if valErr.Field != tc.field {
				t.Errorf("expected field %s, got %s", tc.field, valErr.Field)
			}
			if holdings != nil {
				t.Error("validation failure must not produce holdings")
			}
		})
	}

	t.Run("malformed stream is rejected before folding", func(t *testing.T) {
		// The valid first transaction must not be applied when a later
		// one fails validation.
		holdings, _, err := Fold([]models.Transaction{
			tx("t1", models.TxBuy, "w1", "bitcoin", 1, 100, 0),
			tx("t2", models.TxBuy, "w1", "bitcoin", -1, 100, 0),
		})
		if err == nil {
			t.Fatal("expected validation error")
		}
		if holdings != nil {
			t.Error("expected no holdings for malformed stream")
		}
	})
}

func TestFold_UnrealizedScenario(t *testing.T) {
	// Two holdings: BTC 1 @ avg 50k (quote 60k), ETH 10 @ avg 3k (quote 2k).
	holdings, _, err := Fold([]models.Transaction{
		tx("t1", models.TxBuy, "w1", "bitcoin", 1, 50000, 0),
		tx("t2", models.TxBuy, "w1", "ethereum", 10, 3000, 0),
	})
	if err != nil {
		t.Fatalf("Fold failed: %v", err)
	}

	btc := mustHolding(t, holdings, "w1", "bitcoin")
	eth := mustHolding(t, holdings, "w1", "ethereum")

	btcPnL := btc.UnrealizedPnL(dec(60000))
	ethPnL := eth.UnrealizedPnL(dec(2000))

	if !btcPnL.Equal(dec(10000)) {
		t.Errorf("expected BTC unrealized +10000, got %s", btcPnL)
	}
	if !ethPnL.Equal(dec(-10000)) {
		t.Errorf("expected ETH unrealized -10000, got %s", ethPnL)
	}
	if !btcPnL.Add(ethPnL).IsZero() {
		t.Errorf("expected net unrealized 0, got %s", btcPnL.Add(ethPnL))
	}
}

func TestHolding_UnrealizedPercent(t *testing.T) {
	h := models.Holding{
		Quantity:      dec(1),
		AvgBuyPrice:   dec(50000),
		TotalInvested: decimal.Zero,
	}

	if got := h.UnrealizedPercent(dec(60000)); got != 0 {
		t.Errorf("expected 0%% with zero invested, got %f", got)
	}

	h.TotalInvested = dec(50000)
	if got := h.UnrealizedPercent(dec(60000)); got != 20 {
		t.Errorf("expected 20%%, got %f", got)
	}
}

func TestActive(t *testing.T) {
	holdings, _, err := Fold([]models.Transaction{
		tx("t1", models.TxBuy, "w1", "bitcoin", 1, 50000, 0),
		tx("t2", models.TxBuy, "w1", "ethereum", 1, 3000, 0),
		tx("t3", models.TxSell, "w1", "ethereum", 1, 3000, 0),
	})
	if err != nil {
		t.Fatalf("Fold failed: %v", err)
	}

	active := Active(holdings)
	if len(active) != 1 {
		t.Fatalf("expected 1 active holding, got %d", len(active))
	}
	if active[0].AssetID != "bitcoin" {
		t.Errorf("expected bitcoin to remain active, got %s", active[0].AssetID)
	}
}
