package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// BookPrecision is the number of decimal places price levels are quantized
// to before aggregation, so orders differing only in sub-unit rounding
// collapse into the same level.
const BookPrecision = 6

// PriceLevel is one aggregated price level of a book side. Price is the
// quantized collateral-per-token price; Size is the total remaining token
// quantity resting at that price across Count orders.
type PriceLevel struct {
	Price decimal.Decimal
	Size  *big.Int
	Count int
}

// BookSnapshot is the aggregated order book for one outcome token.
//
// Bids are sorted by descending price, asks ascending, both truncated to the
// requested depth. Mid is the average of the best bid and best ask and is
// nil, not zero, whenever either side is empty.
type BookSnapshot struct {
	TokenID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Mid       *decimal.Decimal
	Timestamp time.Time
}

// BestBid returns the highest bid level, or nil when there are no bids.
func (s BookSnapshot) BestBid() *PriceLevel {
	if len(s.Bids) == 0 {
		return nil
	}
	return &s.Bids[0]
}

// BestAsk returns the lowest ask level, or nil when there are no asks.
func (s BookSnapshot) BestAsk() *PriceLevel {
	if len(s.Asks) == 0 {
		return nil
	}
	return &s.Asks[0]
}

// MarketBook pairs the YES and NO token books of one market.
type MarketBook struct {
	ConditionID string
	Yes         BookSnapshot
	No          BookSnapshot
}
