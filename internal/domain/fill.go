package domain

import (
	"math/big"
	"time"
)

// FillStatus tracks a fill's settlement progress. A fill is created PENDING
// and moves exactly once to SETTLED or FAILED; both are terminal.
type FillStatus string

const (
	FillStatusPending FillStatus = "pending"
	FillStatusSettled FillStatus = "settled"
	FillStatusFailed  FillStatus = "failed"
)

// Valid reports whether the status is a known settlement state.
func (s FillStatus) Valid() bool {
	switch s {
	case FillStatusPending, FillStatusSettled, FillStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the fill can no longer change state.
func (s FillStatus) Terminal() bool {
	return s == FillStatusSettled || s == FillStatusFailed
}

// Fill is an immutable record of one crossing between a maker order and a
// taker order. TokenAmount, CollateralAmount and Fee never change after
// creation; only Status, TxHash and SettledAt progress as the settlement
// pipeline executes the fill on-chain.
type Fill struct {
	ID int64

	MakerOrderID int64
	TakerOrderID int64

	// Denormalized for audit and wallet-scoped queries.
	Maker string
	Taker string

	TokenAmount      *big.Int
	CollateralAmount *big.Int
	Fee              *big.Int

	Status    FillStatus
	TxHash    string // on-chain transaction hash, set only on SETTLED
	SettledAt *time.Time

	CreatedAt time.Time
}

// Match is one crossing computed by the matching engine, before any state
// has been touched. The lifecycle service turns each Match into a Fill and
// a pair of filled-amount/status updates, applied in one transaction.
type Match struct {
	MakerOrderID int64
	Maker        string
	Taker        string

	TokenAmount      *big.Int // outcome tokens transferred
	CollateralAmount *big.Int // collateral transferred, at the maker's price
	Fee              *big.Int // protocol fee on the collateral leg, taker pays

	MakerExhausted bool // fill consumed the maker order's remaining quantity
	TakerExhausted bool // fill consumed the taker order's remaining quantity
}
