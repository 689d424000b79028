// Package model defines the core domain types shared across the trust engine.
// All monetary values and token amounts use shopspring/decimal — never
// float64 for money. Amounts are integer token base units; direction is
// encoded by the transaction type, never by sign.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a position. A position opens
// with its first inflow and closes exactly once, when its balance returns
// to zero. CLOSED is terminal.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// TransactionType enumerates the four ways a position's balance can move.
type TransactionType string

const (
	TxBuy         TransactionType = "BUY"
	TxSell        TransactionType = "SELL"
	TxTransferIn  TransactionType = "TRANSFER_IN"
	TxTransferOut TransactionType = "TRANSFER_OUT"
)

// Inflow reports whether the type increases the position balance.
func (t TransactionType) Inflow() bool {
	return t == TxBuy || t == TxTransferIn
}

// Outflow reports whether the type decreases the position balance.
func (t TransactionType) Outflow() bool {
	return t == TxSell || t == TxTransferOut
}

// Valid reports whether t is one of the four known transaction types.
func (t TransactionType) Valid() bool {
	return t.Inflow() || t.Outflow()
}

// Position is a tracked holding of one token by one entity. Only the
// ledger mutates Balance/Status; everything else treats positions as
// read-only values.
type Position struct {
	ID               string              `json:"id"`
	EntityID         string              `json:"entity_id"`
	Chain            string              `json:"chain"`
	TokenAddress     string              `json:"token_address"`
	WalletAddress    string              `json:"wallet_address"`
	Balance          decimal.Decimal     `json:"balance"` // token base units, >= 0
	Status           PositionStatus      `json:"status"`
	IsSimulation     bool                `json:"is_simulation"`
	InitialPrice     decimal.Decimal     `json:"initial_price"`
	CurrentPrice     decimal.NullDecimal `json:"current_price"`
	RecommendationID string              `json:"recommendation_id"`
	CreatedAt        time.Time           `json:"created_at"`
	ClosedAt         *time.Time          `json:"closed_at,omitempty"`
}

// Transaction is an immutable record of one balance movement on a
// position. Once recorded, transactions are never modified or deleted.
type Transaction struct {
	ID              string          `json:"id"`
	PositionID      string          `json:"position_id"`
	Type            TransactionType `json:"type"`
	Amount          decimal.Decimal `json:"amount"` // base units, always >= 0
	Price           decimal.Decimal `json:"price"`  // token price at execution time
	IsSimulation    bool            `json:"is_simulation"`
	Timestamp       time.Time       `json:"timestamp"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
}

// TokenPerformance is the market snapshot for one token, keyed by
// (chain, address). One record exists per distinct asset no matter how
// many positions reference it; refreshes are last-write-wins.
type TokenPerformance struct {
	Chain    string `json:"chain"`
	Address  string `json:"address"`
	Name     string `json:"name,omitempty"`
	Symbol   string `json:"symbol,omitempty"`
	Decimals int    `json:"decimals,omitempty"`

	// Live market fields. Price is null when the feed had no data — a
	// data gap, not a zero price.
	Price            decimal.NullDecimal `json:"price"`
	Price24hChange   float64             `json:"price_24h_change"`
	Volume           float64             `json:"volume"`
	Volume24hChange  float64             `json:"volume_24h_change"`
	Liquidity        float64             `json:"liquidity"`
	Holders          int64               `json:"holders"`
	Holders24hChange float64             `json:"holders_24h_change"`

	// Risk flags.
	RugPull          bool `json:"rug_pull"`
	IsScam           bool `json:"is_scam"`
	SustainedGrowth  bool `json:"sustained_growth"`
	RapidDump        bool `json:"rapid_dump"`
	SuspiciousVolume bool `json:"suspicious_volume"`

	ValidationTrust float64   `json:"validation_trust"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Entity is a recommendation source: a user or community member whose
// calls originated positions.
type Entity struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	Username string `json:"username,omitempty"`
}

// RecommenderMetrics aggregates the historical outcomes of one
// recommendation source. Mutated only by the trust scorer, after a
// position tied to that recommender closes.
type RecommenderMetrics struct {
	EntityID             string          `json:"entity_id"`
	Platform             string          `json:"platform"`
	TotalRecommendations int64           `json:"total_recommendations"`
	SuccessfulRecs       int64           `json:"successful_recs"`
	FailedTrades         int64           `json:"failed_trades"`
	TotalProfit          decimal.Decimal `json:"total_profit"`
	AvgTokenPerformance  float64         `json:"avg_token_performance"` // mean realized PnL percent
	ConsistencyScore     float64         `json:"consistency_score"`     // in [0,1]
	TrustScore           float64         `json:"trust_score"`           // in [0,1]
	CreatedAt            time.Time       `json:"created_at"`
	LastUpdated          time.Time       `json:"last_updated"`
}

// RecommenderMetricsHistory is an immutable snapshot of a recommender's
// metrics at a point in time. Never rewritten once appended; used for
// trend queries.
type RecommenderMetricsHistory struct {
	ID        string             `json:"id"`
	EntityID  string             `json:"entity_id"`
	Metrics   RecommenderMetrics `json:"metrics"`
	Timestamp time.Time          `json:"timestamp"`
}
