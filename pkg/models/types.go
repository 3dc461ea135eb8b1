package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of portfolio event
type TransactionType string

const (
	TxBuy      TransactionType = "buy"
	TxSell     TransactionType = "sell"
	TxTransfer TransactionType = "transfer"
	TxAirdrop  TransactionType = "airdrop"
	TxStaking  TransactionType = "staking"
)

// Valid reports whether t is a known transaction type
func (t TransactionType) Valid() bool {
	switch t {
	case TxBuy, TxSell, TxTransfer, TxAirdrop, TxStaking:
		return true
	}
	return false
}

// Credits reports whether the transaction adds quantity to its wallet.
// Buys, airdrops and staking rewards all accrue at the stated unit price.
func (t TransactionType) Credits() bool {
	return t == TxBuy || t == TxAirdrop || t == TxStaking
}

// InsightCategory tags which detector produced an insight
type InsightCategory string

const (
	CategoryConcentration InsightCategory = "concentration"
	CategoryPerformance   InsightCategory = "performance"
	CategoryRebalancing   InsightCategory = "rebalancing"
	CategoryTemporal      InsightCategory = "temporal"
	CategoryNarrative     InsightCategory = "narrative"
)

// InsightSeverity represents insight importance level
type InsightSeverity string

const (
	SeverityLow    InsightSeverity = "low"
	SeverityMedium InsightSeverity = "medium"
	SeverityHigh   InsightSeverity = "high"
)

// InsightKind represents the tone of an insight
type InsightKind string

const (
	KindWarning     InsightKind = "warning"
	KindOpportunity InsightKind = "opportunity"
	KindInfo        InsightKind = "info"
)

// InsightStatus represents consumer-driven insight lifecycle
type InsightStatus string

const (
	StatusNew     InsightStatus = "new"
	StatusRead    InsightStatus = "read"
	StatusApplied InsightStatus = "applied"
)

// CanTransitionTo reports whether the status change is allowed.
// Only new insights move, to either read (dismissed) or applied (acted on);
// both are terminal.
func (s InsightStatus) CanTransitionTo(next InsightStatus) bool {
	return s == StatusNew && (next == StatusRead || next == StatusApplied)
}

// SuggestedAction represents the action attached to an actionable insight
type SuggestedAction string

const (
	ActionBuy  SuggestedAction = "buy"
	ActionSell SuggestedAction = "sell"
)

// AlertDirection represents which way a price alert triggers
type AlertDirection string

const (
	AlertAbove AlertDirection = "above"
	AlertBelow AlertDirection = "below"
)

// Quote is the externally supplied market data for one asset
type Quote struct {
	Price     decimal.Decimal `json:"price"`
	Change24h float64         `json:"change_24h"`
}

// Asset is an immutable per-evaluation snapshot of asset identity and market
// data. ID is the CoinGecko identifier (e.g. "bitcoin").
type Asset struct {
	ID           string          `json:"id" db:"id"`
	Symbol       string          `json:"symbol" db:"symbol"`
	Name         string          `json:"name" db:"name"`
	CurrentPrice decimal.Decimal `json:"current_price" db:"current_price_usd"`
	Change24h    float64         `json:"change_24h" db:"price_change_24h"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Transaction is an immutable portfolio event. Ordering by Timestamp is
// significant for ledger folding; events with equal timestamps keep the order
// the caller supplied.
type Transaction struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	WalletID       string          `json:"wallet_id" db:"wallet_id"`
	ToWalletID     string          `json:"to_wallet_id,omitempty" db:"to_wallet_id"`
	AssetID        string          `json:"asset_id" db:"asset_id"`
	Type           TransactionType `json:"type" db:"type"`
	Quantity       decimal.Decimal `json:"quantity" db:"quantity"`
	PricePerUnit   decimal.Decimal `json:"price_per_unit" db:"price_per_unit_usd"`
	Fee            decimal.Decimal `json:"fee" db:"fee_usd"`
	Exchange       string          `json:"exchange,omitempty" db:"exchange"`
	Notes          string          `json:"notes,omitempty" db:"notes"`
	Timestamp      time.Time       `json:"timestamp" db:"transaction_date"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// HoldingKey identifies a position: one asset in one wallet
type HoldingKey struct {
	WalletID string
	AssetID  string
}

// Holding is the derived position state for one (wallet, asset) pair.
// It is recomputable from the transaction stream; the database copy is a cache.
type Holding struct {
	WalletID      string          `json:"wallet_id" db:"wallet_id"`
	AssetID       string          `json:"asset_id" db:"asset_id"`
	Quantity      decimal.Decimal `json:"quantity" db:"total_quantity"`
	AvgBuyPrice   decimal.Decimal `json:"avg_buy_price" db:"average_buy_price_usd"`
	TotalInvested decimal.Decimal `json:"total_invested" db:"total_invested_usd"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl" db:"realized_pnl_usd"`
}

// Key returns the holding's (wallet, asset) identity
func (h *Holding) Key() HoldingKey {
	return HoldingKey{WalletID: h.WalletID, AssetID: h.AssetID}
}

// MarketValue returns quantity valued at the given price
func (h *Holding) MarketValue(price decimal.Decimal) decimal.Decimal {
	return h.Quantity.Mul(price)
}

// UnrealizedPnL returns paper profit against average cost basis
func (h *Holding) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	return h.Quantity.Mul(price.Sub(h.AvgBuyPrice))
}

// UnrealizedPercent returns unrealized PnL relative to invested capital,
// 0 when nothing is invested
func (h *Holding) UnrealizedPercent(price decimal.Decimal) float64 {
	if h.TotalInvested.IsZero() {
		return 0
	}
	return ToFloat64(h.UnrealizedPnL(price).Div(h.TotalInvested)) * 100
}

// Suggestion is the actionable part of an insight
type Suggestion struct {
	AssetID  string          `json:"asset_id"`
	Action   SuggestedAction `json:"action"`
	Quantity decimal.Decimal `json:"quantity"`
}

// Insight is a scored finding about the portfolio. The engine always creates
// insights with StatusNew; status is mutated only by the consumer.
type Insight struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	Category       InsightCategory `json:"category" db:"category"`
	Severity       InsightSeverity `json:"severity" db:"severity"`
	Kind           InsightKind     `json:"kind" db:"kind"`
	Title          string          `json:"title" db:"title"`
	Description    string          `json:"description" db:"description"`
	Score          int             `json:"score" db:"score"`
	Status         InsightStatus   `json:"status" db:"status"`
	Suggestion     *Suggestion     `json:"suggestion,omitempty"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// PriceAlert represents a user-defined price threshold watch
type PriceAlert struct {
	ID             string          `json:"id" db:"id"`
	OrganizationID string          `json:"organization_id" db:"organization_id"`
	AssetID        string          `json:"asset_id" db:"asset_id"`
	Direction      AlertDirection  `json:"direction" db:"direction"`
	TargetPrice    decimal.Decimal `json:"target_price" db:"target_price_usd"`
	Triggered      bool            `json:"triggered" db:"is_triggered"`
	TriggeredAt    *time.Time      `json:"triggered_at,omitempty" db:"triggered_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// PortfolioSummary aggregates current portfolio valuation
type PortfolioSummary struct {
	TotalValue           decimal.Decimal `json:"total_value"`
	TotalInvested        decimal.Decimal `json:"total_invested"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPercent    float64         `json:"unrealized_pnl_percent"`
	RealizedPnL          decimal.Decimal `json:"realized_pnl"`
	DiversificationScore int             `json:"diversification_score"`
	HoldingCount         int             `json:"holding_count"`
}
