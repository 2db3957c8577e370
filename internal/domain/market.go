package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus represents the lifecycle state of a binary market.
type MarketStatus string

const (
	MarketStatusActive    MarketStatus = "active"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Terminal reports whether the market has reached a final state.
func (s MarketStatus) Terminal() bool {
	return s == MarketStatusResolved || s == MarketStatusCancelled
}

// Market is a cached copy of an on-chain binary-outcome market. The contract
// is the source of truth; rows here are synced from the MarketFactory and
// enriched with derived stats.
type Market struct {
	ID int64

	// On-chain identifiers (bytes32 as 0x-prefixed hex).
	ConditionID string
	QuestionID  string

	OracleAddress   string
	CollateralToken string

	// Conditional-token ERC-1155 position IDs (uint256 as decimal strings).
	YesTokenID string
	NoTokenID  string

	Title       string
	Description string
	Category    string

	// Resolution.
	ResolutionTime int64 // unix seconds
	Status         MarketStatus
	YesPayout      *int // 0 or 1, set after resolution
	NoPayout       *int

	// Derived stats, advisory only: never consulted by the matching engine.
	YesPrice    *decimal.Decimal
	NoPrice     *decimal.Decimal
	Volume24h   *big.Int // settled collateral units, trailing 24h
	TotalVolume *big.Int // settled collateral units, lifetime

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenSide returns which outcome a token id belongs to, or "" when the
// token is not part of this market.
func (m Market) TokenSide(tokenID string) string {
	switch tokenID {
	case "":
		return ""
	case m.YesTokenID:
		return "yes"
	case m.NoTokenID:
		return "no"
	}
	return ""
}

// MarketStats is the derived per-market summary pushed to the signal bus and
// cached for fast reads.
type MarketStats struct {
	ConditionID string           `json:"condition_id"`
	YesPrice    *decimal.Decimal `json:"yes_price,omitempty"`
	NoPrice     *decimal.Decimal `json:"no_price,omitempty"`
	Volume24h   string           `json:"volume_24h"`
	TotalVolume string           `json:"total_volume"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Position is a wallet's balance of one outcome token, read straight from
// the conditional-token contract.
type Position struct {
	ConditionID string
	TokenID     string
	Outcome     string // "yes" or "no"
	Title       string
	Balance     *big.Int
}
