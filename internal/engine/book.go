package engine

import (
	"math/big"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

var two = decimal.NewFromInt(2)

type levelAgg struct {
	price decimal.Decimal
	size  *big.Int
	count int
}

// Snapshot aggregates resting orders into a depth-limited view of one
// token's book. Orders at the same price after quantizing to BookPrecision
// decimal places merge into a single level; fully filled orders are
// ignored. A depth of zero or less keeps every level.
//
// Mid is the midpoint of the best bid and ask, present only when both sides
// have liquidity.
func Snapshot(tokenID string, orders []domain.Order, depth int, now time.Time) domain.BookSnapshot {
	bidLevels := make(map[string]*levelAgg)
	askLevels := make(map[string]*levelAgg)

	for i := range orders {
		o := &orders[i]
		remaining := Remaining(o)
		if remaining.Sign() <= 0 {
			continue
		}
		price := decimal.NewFromBigRat(Price(o), domain.BookPrecision)
		levels := askLevels
		if o.Side == domain.OrderSideBuy {
			levels = bidLevels
		}
		key := price.String()
		lv := levels[key]
		if lv == nil {
			lv = &levelAgg{price: price, size: new(big.Int)}
			levels[key] = lv
		}
		lv.size.Add(lv.size, remaining)
		lv.count++
	}

	snap := domain.BookSnapshot{
		TokenID:   tokenID,
		Bids:      sortLevels(bidLevels, true, depth),
		Asks:      sortLevels(askLevels, false, depth),
		Timestamp: now,
	}
	if len(snap.Bids) > 0 && len(snap.Asks) > 0 {
		mid := snap.Bids[0].Price.Add(snap.Asks[0].Price).DivRound(two, domain.BookPrecision)
		snap.Mid = &mid
	}
	return snap
}

func sortLevels(levels map[string]*levelAgg, descending bool, depth int) []domain.PriceLevel {
	if len(levels) == 0 {
		return nil
	}
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lv := range levels {
		out = append(out, domain.PriceLevel{Price: lv.price, Size: lv.size, Count: lv.count})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price.Cmp(out[j].Price) > 0
		}
		return out[i].Price.Cmp(out[j].Price) < 0
	})
	if depth > 0 && len(out) > depth {
		out = out[:depth]
	}
	return out
}
