package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError reports a malformed transaction, rejected before folding
type ValidationError struct {
	TransactionID string
	Field         string
	Reason        string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction %s: %s %s", e.TransactionID, e.Field, e.Reason)
}

// InsufficientBalanceError reports a sell or transfer exceeding the quantity
// currently held for the targeted (wallet, asset) pair
type InsufficientBalanceError struct {
	TransactionID string
	WalletID      string
	AssetID       string
	Requested     decimal.Decimal
	Available     decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for transaction %s: wallet %s asset %s requested %s available %s",
		e.TransactionID, e.WalletID, e.AssetID, e.Requested.String(), e.Available.String())
}
