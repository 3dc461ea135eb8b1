// Package ledger folds an ordered transaction stream into per-(wallet, asset)
// holdings with average-cost accounting and realized PnL.
package ledger

import (
	"github.com/shopspring/decimal"

	"cryptofolio/pkg/models"
)

// Result reports the outcome of one applied transaction. RealizedPnL is
// non-zero only for sells.
type Result struct {
	TransactionID string
	RealizedPnL   decimal.Decimal
}

// Fold applies the transaction stream, in the order given, to an empty book.
//
// The caller is responsible for supplying a total order (sorted by timestamp,
// stable for equal timestamps); Fold does not re-sort.
//
// The whole stream is validated before any transaction is applied, so a
// malformed stream produces a *ValidationError and no holdings. A sell or
// transfer exceeding the available quantity stops the fold with an
// *InsufficientBalanceError: the returned holdings then reflect every
// transaction strictly before the rejected one, and the rejected transaction
// has no effect. Callers wanting different recovery re-submit a corrected
// stream.
func Fold(txs []models.Transaction) (map[models.HoldingKey]*models.Holding, []Result, error) {
	for i := range txs {
		if err := validate(&txs[i]); err != nil {
			return nil, nil, err
		}
	}

	holdings := make(map[models.HoldingKey]*models.Holding)
	results := make([]Result, 0, len(txs))

	for i := range txs {
		tx := &txs[i]

		realized, err := apply(holdings, tx)
		if err != nil {
			return holdings, results, err
		}

		results = append(results, Result{TransactionID: tx.ID, RealizedPnL: realized})
	}

	return holdings, results, nil
}

// validate rejects malformed transactions before folding
func validate(tx *models.Transaction) error {
	switch {
	case !tx.Type.Valid():
		return &ValidationError{TransactionID: tx.ID, Field: "type", Reason: "is unknown"}
	case tx.WalletID == "":
		return &ValidationError{TransactionID: tx.ID, Field: "wallet_id", Reason: "is empty"}
	case tx.AssetID == "":
		return &ValidationError{TransactionID: tx.ID, Field: "asset_id", Reason: "is empty"}
	case !tx.Quantity.IsPositive():
		return &ValidationError{TransactionID: tx.ID, Field: "quantity", Reason: "must be positive"}
	case tx.PricePerUnit.IsNegative():
		return &ValidationError{TransactionID: tx.ID, Field: "price_per_unit", Reason: "must not be negative"}
	case tx.Fee.IsNegative():
		return &ValidationError{TransactionID: tx.ID, Field: "fee", Reason: "must not be negative"}
	}

	if tx.Type == models.TxTransfer {
		if tx.ToWalletID == "" {
			return &ValidationError{TransactionID: tx.ID, Field: "to_wallet_id", Reason: "is required for transfers"}
		}
		if tx.ToWalletID == tx.WalletID {
			return &ValidationError{TransactionID: tx.ID, Field: "to_wallet_id", Reason: "must differ from wallet_id"}
		}
	}

	return nil
}

// apply mutates the book with one transaction and returns its realized PnL delta
func apply(holdings map[models.HoldingKey]*models.Holding, tx *models.Transaction) (decimal.Decimal, error) {
	h := get(holdings, models.HoldingKey{WalletID: tx.WalletID, AssetID: tx.AssetID})

	switch {
	case tx.Type.Credits():
		credit(h, tx.Quantity, tx.PricePerUnit, tx.Fee)
		return decimal.Zero, nil

	case tx.Type == models.TxSell:
		if tx.Quantity.GreaterThan(h.Quantity) {
			return decimal.Zero, insufficient(tx, h)
		}

		// Realized PnL is measured against average cost basis; the
		// average price never changes on a sell.
		realized := tx.Quantity.Mul(tx.PricePerUnit.Sub(h.AvgBuyPrice)).Sub(tx.Fee)
		h.RealizedPnL = h.RealizedPnL.Add(realized)
		h.Quantity = h.Quantity.Sub(tx.Quantity)
		if h.Quantity.IsZero() {
			// Fully closed position: invested capital resets, the
			// average price stays for display.
			h.TotalInvested = decimal.Zero
		}
		return realized, nil

	default: // transfer
		if tx.Quantity.GreaterThan(h.Quantity) {
			return decimal.Zero, insufficient(tx, h)
		}

		// A transfer is cost-basis-neutral: the destination receives the
		// quantity at the source's average price and a proportional share
		// of invested capital moves with it. No PnL is realized.
		movedInvested := h.TotalInvested.Mul(tx.Quantity).Div(h.Quantity)

		dst := get(holdings, models.HoldingKey{WalletID: tx.ToWalletID, AssetID: tx.AssetID})
		credit(dst, tx.Quantity, h.AvgBuyPrice, decimal.Zero)
		dst.TotalInvested = dst.TotalInvested.Sub(tx.Quantity.Mul(h.AvgBuyPrice)).Add(movedInvested)

		h.Quantity = h.Quantity.Sub(tx.Quantity)
		h.TotalInvested = h.TotalInvested.Sub(movedInvested)
		return decimal.Zero, nil
	}
}

// credit applies a quantity increase at the given unit price, recomputing the
// weighted-average buy price
func credit(h *models.Holding, quantity, price, fee decimal.Decimal) {
	newQuantity := h.Quantity.Add(quantity)
	h.AvgBuyPrice = h.Quantity.Mul(h.AvgBuyPrice).Add(quantity.Mul(price)).Div(newQuantity)
	h.Quantity = newQuantity
	h.TotalInvested = h.TotalInvested.Add(quantity.Mul(price)).Add(fee)
}

func get(holdings map[models.HoldingKey]*models.Holding, key models.HoldingKey) *models.Holding {
	if h, ok := holdings[key]; ok {
		return h
	}
	h := &models.Holding{
		WalletID:      key.WalletID,
		AssetID:       key.AssetID,
		Quantity:      decimal.Zero,
		AvgBuyPrice:   decimal.Zero,
		TotalInvested: decimal.Zero,
		RealizedPnL:   decimal.Zero,
	}
	holdings[key] = h
	return h
}

func insufficient(tx *models.Transaction, h *models.Holding) error {
	return &InsufficientBalanceError{
		TransactionID: tx.ID,
		WalletID:      tx.WalletID,
		AssetID:       tx.AssetID,
		Requested:     tx.Quantity,
		Available:     h.Quantity,
	}
}

// Active filters out zero-quantity holdings; closed positions are kept in the
// book but never participate in valuation or insight detection.
func Active(holdings map[models.HoldingKey]*models.Holding) []models.Holding {
	active := make([]models.Holding, 0, len(holdings))
	for _, h := range holdings {
		if h.Quantity.IsPositive() {
			active = append(active, *h)
		}
	}
	return active
}
